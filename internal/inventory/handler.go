package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-dms/meridian-dms/internal/auth"
	"github.com/meridian-dms/meridian-dms/internal/platform/httpx"
	"github.com/meridian-dms/meridian-dms/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mw       auth.Middleware
	validate *validator.Validate
}

// NewHandler constructs an inventory handler.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny("inventory.view"))
		r.Get("/lots", h.handleListLots)
		r.Get("/lots/{id}", h.handleGetLot)
		r.Get("/lots/{id}/reconcile", h.handleReconcileLot)
		r.Get("/units/{id}", h.handleGetUnit)
		r.Get("/units/{id}/provenance", h.handleProvenance)
		r.Get("/transfers", h.handleListTransfers)
		r.Get("/reconcile", h.handleReconcileAll)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll("inventory.edit"))
		r.Post("/lots", h.handleCreateLot)
		r.Post("/lots/{id}/units", h.handleCreateUnits)
		r.Patch("/lots/{id}/counters", h.handleUpdateCounters)
		r.Post("/units/{id}/reserve", h.handleReserve)
		r.Post("/units/{id}/release", h.handleRelease)
		r.Post("/units/{id}/sell", h.handleSell)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll("inventory.transfer"))
		r.Post("/transfers", h.handleTransfer)
	})
}

type serialDTO struct {
	ChassisNo string `json:"chassis_no"`
	EngineNo  string `json:"engine_no"`
}

type createLotRequest struct {
	BranchID     int64       `json:"branch_id" validate:"required"`
	ItemID       int64       `json:"item_id" validate:"required"`
	SupplierID   int64       `json:"supplier_id"`
	DateReceived string      `json:"date_received"`
	Cost         float64     `json:"cost" validate:"gte=0"`
	SRP          float64     `json:"srp" validate:"gte=0"`
	Color        string      `json:"color"`
	DRNumber     string      `json:"dr_number"`
	SINumber     string      `json:"si_number"`
	Remarks      string      `json:"remarks"`
	BeginningQty int         `json:"beginning_qty" validate:"gte=0"`
	PurchasedQty int         `json:"purchased_qty" validate:"gte=0"`
	Serials      []serialDTO `json:"serials"`
}

type createUnitsRequest struct {
	Serials []serialDTO `json:"serials" validate:"required,min=1"`
}

type counterUpdateRequest struct {
	TransferredQty *int `json:"transferred_qty"`
	SoldQty        *int `json:"sold_qty"`
}

type transferRequest struct {
	UnitID     int64  `json:"unit_id" validate:"required"`
	ToBranchID int64  `json:"to_branch_id" validate:"required"`
	Remarks    string `json:"remarks"`
	RefCode    string `json:"ref_code"`
}

func toSerials(dtos []serialDTO) []Serial {
	serials := make([]Serial, 0, len(dtos))
	for _, d := range dtos {
		serials = append(serials, Serial{ChassisNo: d.ChassisNo, EngineNo: d.EngineNo})
	}
	return serials
}

func (h *Handler) handleCreateLot(w http.ResponseWriter, r *http.Request) {
	var req createLotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateLotInput{
		BranchID:     req.BranchID,
		ItemID:       req.ItemID,
		SupplierID:   req.SupplierID,
		Cost:         req.Cost,
		SRP:          req.SRP,
		Color:        req.Color,
		DRNumber:     req.DRNumber,
		SINumber:     req.SINumber,
		Remarks:      req.Remarks,
		BeginningQty: req.BeginningQty,
		PurchasedQty: req.PurchasedQty,
		Serials:      toSerials(req.Serials),
		ActorID:      auth.CurrentUserID(r.Context()),
	}
	if req.DateReceived != "" {
		received, err := time.Parse("2006-01-02", req.DateReceived)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date_received must be YYYY-MM-DD")
			return
		}
		input.DateReceived = received
	}

	lot, err := h.service.CreateLot(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lot)
}

func (h *Handler) handleListLots(w http.ResponseWriter, r *http.Request) {
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branch_id"), 10, 64)
	if err != nil || branchID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch_id is required")
		return
	}
	lots, err := h.service.GetLotsForBranch(r.Context(), branchID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lots)
}

func (h *Handler) handleGetLot(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	unit, err := h.service.GetUnit(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) handleCreateUnits(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req createUnitsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	units, err := h.service.CreateUnits(r.Context(), id, toSerials(req.Serials), auth.CurrentUserID(r.Context()))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, units)
}

func (h *Handler) handleUpdateCounters(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req counterUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	lot, err := h.service.UpdateCounters(r.Context(), id, CounterUpdate{
		TransferredQty: req.TransferredQty,
		SoldQty:        req.SoldQty,
		ActorID:        auth.CurrentUserID(r.Context()),
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.MarkReserved)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.Release)
}

func (h *Handler) handleSell(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.MarkSold)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actor int64) (Unit, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	unit, err := fn(r.Context(), id, auth.CurrentUserID(r.Context()))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.TransferUnit(r.Context(), TransferInput{
		UnitID:     req.UnitID,
		ToBranchID: req.ToBranchID,
		Remarks:    req.Remarks,
		RefCode:    req.RefCode,
		ActorID:    auth.CurrentUserID(r.Context()),
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := TransferFilter{Search: q.Get("q")}
	if raw := q.Get("branch_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch_id must be numeric")
			return
		}
		filter.BranchID = id
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		filter.To = to
	}
	views, err := h.service.ListTransferredUnits(r.Context(), filter)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) handleProvenance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	cursor := h.service.ProvenanceChain(id)
	var steps []ProvenanceStep
	for {
		step, more, err := cursor.Next(r.Context())
		if err != nil {
			h.respondErr(w, err)
			return
		}
		if !more {
			break
		}
		steps = append(steps, step)
	}
	httpx.JSON(w, http.StatusOK, steps)
}

func (h *Handler) handleReconcileLot(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	counts, err := h.service.Reconcile(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, counts)
}

func (h *Handler) handleReconcileAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ReconcileAll(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnitNotFound), errors.Is(err, ErrLotNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateSerial):
		httpx.Problem(w, http.StatusConflict, "Duplicate Serial", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrSameBranch):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrCounterOverflow):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Counter Mismatch", err.Error())
	default:
		h.logger.Error("inventory request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
