package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/logistics-billing/internal/platform/httpx"
)

// UploadService is the contract the HTTP layer depends on.
type UploadService interface {
	Ingest(ctx context.Context, req IngestRequest) (IngestResult, error)
	Delete(ctx context.Context, scope DeleteScope) (DeleteResult, error)
	ListUploads(ctx context.Context, filter ListFilter) (Page[UploadLog], error)
	ListRejected(ctx context.Context, filter RejectedFilter) (Page[RejectedRow], error)
	ExportRejected(ctx context.Context, uploadID string, w io.Writer) (UploadLog, error)
}

// Handler serves upload, history and delete endpoints.
type Handler struct {
	logger   *slog.Logger
	service  UploadService
	maxBytes int64
}

// NewHandler constructs Handler. maxBytes caps the request body.
func NewHandler(logger *slog.Logger, service UploadService, maxBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &Handler{logger: logger, service: service, maxBytes: maxBytes}
}

// MountRoutes registers upload endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(20, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "upload rate exceeded")
		}),
	)

	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/api/uploads/{kind}", h.handleUpload)
		gr.Delete("/api/data", h.handleDelete)
	})
	r.Get("/api/uploads", h.handleList)
	r.Get("/api/uploads/{id}/rejected", h.handleRejected)
	r.Get("/api/uploads/{id}/rejected.xlsx", h.handleRejectedExport)
	r.Get("/api/rejected-rows", h.handleAllRejected)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		h.respondBodyError(w, err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.respondBodyError(w, err)
		return
	}
	replace, err := parseBool(firstNonEmpty(r.URL.Query().Get("replace"), r.FormValue("replace")))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "replace must be a boolean")
		return
	}

	res, err := h.service.Ingest(r.Context(), IngestRequest{
		Kind:     kind,
		FileName: header.Filename,
		Data:     data,
		Replace:  replace,
	})
	if err != nil {
		h.respond(w, "ingest upload", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{}
	if raw := q.Get("fileType"); raw != "" {
		kind, err := ParseKind(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.FileType = kind
	}
	if raw := strings.ToUpper(strings.TrimSpace(q.Get("status"))); raw != "" {
		if raw != string(StatusSuccess) && raw != string(StatusFailed) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "status must be SUCCESS or FAILED")
			return
		}
		filter.Status = Status(raw)
	}
	var err error
	if filter.Limit, filter.Offset, err = window(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListUploads(r.Context(), filter)
	if err != nil {
		h.respond(w, "list uploads", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleRejected(w http.ResponseWriter, r *http.Request) {
	h.listRejected(w, r, RejectedFilter{UploadID: chi.URLParam(r, "id")})
}

func (h *Handler) handleAllRejected(w http.ResponseWriter, r *http.Request) {
	filter := RejectedFilter{UploadID: strings.TrimSpace(r.URL.Query().Get("uploadId"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("fileType")); raw != "" {
		kind, err := ParseKind(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.FileType = kind
	}
	h.listRejected(w, r, filter)
}

func (h *Handler) listRejected(w http.ResponseWriter, r *http.Request, filter RejectedFilter) {
	var err error
	filter.Limit, filter.Offset, err = window(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListRejected(r.Context(), filter)
	if err != nil {
		h.respond(w, "list rejected rows", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleRejectedExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var buf bytes.Buffer
	upload, err := h.service.ExportRejected(r.Context(), id, &buf)
	if err != nil {
		h.respond(w, "export rejected rows", err)
		return
	}
	base := strings.TrimSuffix(upload.FileName, ".xlsx")
	if base == "" {
		base = id
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"-rejected.xlsx"))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream rejected workbook", slog.Any("error", err))
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope, err := ParseScope(r.URL.Query().Get("type"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Delete(r.Context(), scope)
	if err != nil {
		h.respond(w, "delete facts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) respond(w http.ResponseWriter, op string, err error) {
	if dup, ok := IsDuplicate(err); ok {
		httpx.ProblemWith(w, http.StatusConflict, "Duplicate", dup.Error(), map[string]any{"existingUploadId": dup.ExistingID})
		return
	}
	if IsFileError(err) {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable File", err.Error())
		return
	}
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) respondBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "File Too Large", fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed multipart body")
}

func window(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: limit must be an integer", httpx.ErrValidation)
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("%w: offset must be a non-negative integer", httpx.ErrValidation)
	}
	return limit, offset, nil
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
