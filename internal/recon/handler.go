package recon

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meatflow/meatflow/internal/identity"
	"github.com/meatflow/meatflow/internal/platform/httpx"
	"github.com/meatflow/meatflow/internal/shared"
)

// Handler manages reconciliation endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   identity.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz identity.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermReconcileRun))
		r.Post("/sales-orders/{id}/reconcile", h.reconcile)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermReconcileView))
		r.Get("/sales-orders/{id}/reconciliation", h.latest)
	})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	report, err := h.service.Reconcile(r.Context(), id)
	if err != nil {
		h.logger.Error("reconcile failed", slog.Int64("sales_order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	report, err := h.service.Latest(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
