package document

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meatflow/meatflow/internal/identity"
	"github.com/meatflow/meatflow/internal/platform/httpx"
	"github.com/meatflow/meatflow/internal/shared"
)

// maxUploadBytes bounds workbook uploads; real exports are well under 1 MB.
const maxUploadBytes = 8 << 20

// Handler manages document ingestion endpoints.
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

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermDocumentUpload))
		r.Post("/documents", h.upload)
		r.Post("/documents/xlsx", h.uploadXLSX)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermDocumentView))
		r.Get("/documents/{id}", h.get)
		r.Get("/sales-orders/{id}/documents", h.listBySalesOrder)
	})
}

// upload accepts an already-decoded cell grid as JSON.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actor := shared.ActorFromContext(r.Context())
	doc, err := h.service.Upload(r.Context(), req, actor.ID)
	if err != nil {
		h.logger.Error("upload document failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

// uploadXLSX accepts a multipart workbook and decodes it into a grid before
// handing it to the same upload path.
func (h *Handler) uploadXLSX(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid multipart form")
		return
	}

	salesOrderID, err := strconv.ParseInt(r.FormValue("sales_order_id"), 10, 64)
	if err != nil || salesOrderID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sales_order_id is required")
		return
	}
	docType := DocType(r.FormValue("doc_type"))
	if !docType.IsValid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("unknown doc_type %q", docType))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "read upload")
		return
	}

	rows, err := DecodeXLSX(content)
	if err != nil {
		h.logger.Warn("decode workbook failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "workbook could not be decoded")
		return
	}

	fileName := header.Filename
	req := UploadRequest{
		SalesOrderID: salesOrderID,
		DocType:      docType,
		FileName:     &fileName,
		Rows:         rows,
	}

	actor := shared.ActorFromContext(r.Context())
	doc, err := h.service.Upload(r.Context(), req, actor.ID)
	if err != nil {
		h.logger.Error("upload workbook failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) listBySalesOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	docs, err := h.service.ListBySalesOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": docs})
}
