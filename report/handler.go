package report

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-dms/meridian-dms/internal/auth"
	"github.com/meridian-dms/meridian-dms/internal/platform/httpx"
)

// Handler manages report endpoints.
type Handler struct {
	logger  *slog.Logger
	builder *Builder
	pdf     *Client
	mw      auth.Middleware
}

// NewHandler creates a report handler. The PDF client may be nil when no
// Gotenberg endpoint is configured.
func NewHandler(logger *slog.Logger, builder *Builder, pdf *Client, mw auth.Middleware) *Handler {
	return &Handler{logger: logger, builder: builder, pdf: pdf, mw: mw}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny("inventory.view"))
		r.Get("/movement", h.movementJSON)
		r.Get("/movement.csv", h.movementCSV)
		r.Get("/movement.pdf", h.movementPDF)
	})
	r.Get("/ping", h.ping)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "pdf rendering not configured")
		return
	}
	if err := h.pdf.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "pdf renderer unreachable")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) movement(w http.ResponseWriter, r *http.Request) (MovementReport, bool) {
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branch_id"), 10, 64)
	if err != nil || branchID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch_id is required")
		return MovementReport{}, false
	}
	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return MovementReport{}, false
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return MovementReport{}, false
		}
	}
	rep, err := h.builder.Movement(r.Context(), branchID, from, to)
	if err != nil {
		h.logger.Error("build movement report", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return MovementReport{}, false
	}
	return rep, true
}

func (h *Handler) movementJSON(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.movement(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

func (h *Handler) movementCSV(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.movement(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=movement.csv")
	if err := WriteCSV(w, rep); err != nil {
		h.logger.Error("stream movement csv", slog.Any("error", err))
	}
}

func (h *Handler) movementPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "pdf rendering not configured")
		return
	}
	rep, ok := h.movement(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := WriteHTML(&buf, rep); err != nil {
		h.logger.Error("render movement html", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), buf.String())
	if err != nil {
		h.logger.Error("render movement pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "pdf renderer failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=movement.pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
