package ordersheet

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meatflow/meatflow/internal/identity"
	"github.com/meatflow/meatflow/internal/platform/httpx"
	"github.com/meatflow/meatflow/internal/shared"
)

// Handler manages order sheet endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	authz    identity.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz identity.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		authz:    authz,
	}
}

// MountRoutes registers order sheet routes. The submit endpoint is outside
// the permission groups: the invite token is the customer's only credential.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/order-sheets/submit", h.submit)

	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermSheetView))
		r.Get("/order-sheets", h.list)
		r.Get("/order-sheets/{id}", h.get)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermSheetCreate))
		r.Post("/order-sheets", h.create)
		r.Put("/order-sheets/{id}", h.update)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermSheetDispatch))
		r.Post("/order-sheets/{id}/dispatch", h.dispatch)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermSheetReview))
		r.Post("/order-sheets/{id}/revise", h.revise)
		r.Post("/order-sheets/{id}/transitions", h.transition)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermSheetConfirm))
		r.Post("/order-sheets/{id}/confirm", h.confirm)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermSheetClose))
		r.Post("/order-sheets/{id}/close", h.close)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderSheetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actor := shared.ActorFromContext(r.Context())
	sheet, err := h.service.Create(r.Context(), *actor, req)
	if err != nil {
		h.logger.Error("create order sheet failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sheet)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListOrderSheetsRequest{}
	if v := r.URL.Query().Get("status"); v != "" {
		status := SheetStatus(v)
		if !status.IsValid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status")
			return
		}
		req.Status = &status
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

	sheets, total, err := h.service.List(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"order_sheets": sheets,
		"total":        total,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}

	sheet, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}

	var req UpdateOrderSheetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	sheet, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}

	actor := shared.ActorFromContext(r.Context())
	sheet, err := h.service.Dispatch(r.Context(), id, *actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	sheet, err := h.service.SubmitViaToken(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) revise(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}

	var req ReviseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actor := shared.ActorFromContext(r.Context())
	sheet, err := h.service.Revise(r.Context(), id, *actor, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}

	actor := shared.ActorFromContext(r.Context())
	sheet, err := h.service.Confirm(r.Context(), id, *actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}

	actor := shared.ActorFromContext(r.Context())
	sheet, err := h.service.Close(r.Context(), id, *actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

// transition is the generic edge request for callers that track expected
// state themselves.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actor := shared.ActorFromContext(r.Context())
	sheet, err := h.service.RequestTransition(r.Context(), id, SheetStatus(req.From), SheetStatus(req.To), *actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) sheetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}
