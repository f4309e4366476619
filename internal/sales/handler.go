package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-dms/meridian-dms/internal/auth"
	"github.com/meridian-dms/meridian-dms/internal/inventory"
	"github.com/meridian-dms/meridian-dms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mw       auth.Middleware
	validate *validator.Validate
}

// NewHandler constructs a sales handler.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny("sales.view"))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Get("/overdue", h.handleOverdue)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll("sales.edit"))
		r.Post("/", h.handleRecord)
		r.Post("/{id}/payments", h.handlePayment)
	})
}

type recordSaleRequest struct {
	Number          string  `json:"number"`
	UnitID          int64   `json:"unit_id" validate:"required"`
	CustomerName    string  `json:"customer_name" validate:"required"`
	CustomerPhone   string  `json:"customer_phone"`
	CustomerAddress string  `json:"customer_address"`
	Price           float64 `json:"price" validate:"required,gt=0"`
	DownPayment     float64 `json:"down_payment" validate:"gte=0"`
	TermMonths      int     `json:"term_months" validate:"gte=0,lte=60"`
}

type paymentRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sale, schedule, err := h.service.RecordSale(r.Context(), RecordSaleInput{
		Number:          req.Number,
		UnitID:          req.UnitID,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
		Price:           req.Price,
		DownPayment:     req.DownPayment,
		TermMonths:      req.TermMonths,
		ActorID:         auth.CurrentUserID(r.Context()),
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"sale": sale, "schedule": schedule})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sale, schedule, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sale": sale, "schedule": schedule})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branch_id"), 10, 64)
	if err != nil || branchID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch_id is required")
		return
	}
	sales, err := h.service.ListSalesForBranch(r.Context(), branchID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sales)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
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
	touched, err := h.service.PostPayment(r.Context(), PaymentInput{
		SaleID:  id,
		Amount:  req.Amount,
		ActorID: auth.CurrentUserID(r.Context()),
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, touched)
}

func (h *Handler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListOverdue(r.Context())
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
	case errors.Is(err, ErrNotFound), errors.Is(err, inventory.ErrUnitNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrOverpayment), errors.Is(err, ErrCompleted),
		errors.Is(err, inventory.ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("sales request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
