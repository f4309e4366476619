package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-dms/meridian-dms/internal/auth"
	"github.com/meridian-dms/meridian-dms/internal/inventory"
	"github.com/meridian-dms/meridian-dms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for procurement.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mw       auth.Middleware
	validate *validator.Validate
}

// NewHandler constructs a procurement handler.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny("procurement.view"))
		r.Get("/orders/{id}", h.handleGetPO)
		r.Get("/orders/{id}/payments", h.handleListPayments)
		r.Get("/payables", h.handleListPayables)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll("procurement.edit"))
		r.Post("/orders", h.handleCreatePO)
		r.Post("/orders/{id}/approve", h.handleApprove)
		r.Post("/orders/{id}/cancel", h.handleCancel)
		r.Post("/orders/{id}/receive", h.handleReceive)
		r.Post("/orders/{id}/payments", h.handleRecordPayment)
	})
}

type poLineDTO struct {
	ItemID   int64   `json:"item_id" validate:"required"`
	Qty      int     `json:"qty" validate:"required,gt=0"`
	UnitCost float64 `json:"unit_cost" validate:"gte=0"`
	SRP      float64 `json:"srp" validate:"gte=0"`
	Color    string  `json:"color"`
}

type createPORequest struct {
	Number       string      `json:"number"`
	SupplierID   int64       `json:"supplier_id" validate:"required"`
	BranchID     int64       `json:"branch_id" validate:"required"`
	ExpectedDate string      `json:"expected_date"`
	Note         string      `json:"note"`
	Lines        []poLineDTO `json:"lines" validate:"required,min=1,dive"`
}

type receiveRequest struct {
	DRNumber string `json:"dr_number"`
	SINumber string `json:"si_number"`
	Serials  map[string][]struct {
		ChassisNo string `json:"chassis_no"`
		EngineNo  string `json:"engine_no"`
	} `json:"serials"`
}

type paymentRequest struct {
	Number string  `json:"number"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) handleCreatePO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreatePOInput{
		Number:     req.Number,
		SupplierID: req.SupplierID,
		BranchID:   req.BranchID,
		Note:       req.Note,
		ActorID:    auth.CurrentUserID(r.Context()),
	}
	if req.ExpectedDate != "" {
		expected, err := time.Parse("2006-01-02", req.ExpectedDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expected_date must be YYYY-MM-DD")
			return
		}
		input.ExpectedDate = expected
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, POLineInput{
			ItemID: l.ItemID, Qty: l.Qty, UnitCost: l.UnitCost, SRP: l.SRP, Color: l.Color,
		})
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) handleGetPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	po, lines, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"po": po, "lines": lines})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.ApprovePurchaseOrder(r.Context(), id, auth.CurrentUserID(r.Context())); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelPurchaseOrder(r.Context(), id, auth.CurrentUserID(r.Context())); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	input := ReceiveInput{
		POID:     id,
		DRNumber: req.DRNumber,
		SINumber: req.SINumber,
		ActorID:  auth.CurrentUserID(r.Context()),
		Serials:  map[int64][]inventory.Serial{},
	}
	for rawLineID, serials := range req.Serials {
		lineID, err := strconv.ParseInt(rawLineID, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "serial keys must be line IDs")
			return
		}
		for _, s := range serials {
			input.Serials[lineID] = append(input.Serials[lineID], inventory.Serial{
				ChassisNo: s.ChassisNo, EngineNo: s.EngineNo,
			})
		}
	}
	lots, err := h.service.ReceivePurchaseOrder(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lots)
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), PaymentInput{POID: id, Number: req.Number, Amount: req.Amount})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) handleListPayables(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListPayables(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
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
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrOverpayment):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, inventory.ErrDuplicateSerial):
		httpx.Problem(w, http.StatusConflict, "Duplicate Serial", err.Error())
	default:
		h.logger.Error("procurement request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
