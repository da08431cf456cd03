package salesorder

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meatflow/meatflow/internal/identity"
	"github.com/meatflow/meatflow/internal/platform/httpx"
	"github.com/meatflow/meatflow/internal/shared"
)

// Handler exposes read endpoints. Sales orders are created by confirming an
// order sheet, never directly.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   identity.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz identity.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers sales order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermSalesOrderView))
		r.Get("/sales-orders", h.list)
		r.Get("/sales-orders/{id}", h.get)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListSalesOrdersRequest{}
	if v := r.URL.Query().Get("recon_status"); v != "" {
		status := ReconStatus(v)
		if !status.IsValid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown recon_status")
			return
		}
		req.ReconStatus = &status
	}
	if v := r.URL.Query().Get("customer"); v != "" {
		req.Customer = &v
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		req.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		req.Offset, _ = strconv.Atoi(v)
	}

	orders, total, err := h.service.List(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sales_orders": orders,
		"total":        total,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
