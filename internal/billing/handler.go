package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/logistics-billing/internal/platform/httpx"
)

const requestTimeout = 5 * time.Second

// InvoiceService is the contract the HTTP layer depends on.
type InvoiceService interface {
	Assemble(ctx context.Context, month string) (BillingData, error)
}

// Handler serves the billing endpoints.
type Handler struct {
	logger  *slog.Logger
	service InvoiceService
	now     func() time.Time
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service InvoiceService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// MountRoutes registers billing endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/api/billing", h.handleBilling)
	r.Get("/api/billing/export.csv", h.handleCSV)
}

func (h *Handler) month(r *http.Request) string {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		month = h.now().UTC().Format("2006-01")
	}
	return month
}

func (h *Handler) handleBilling(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	data, err := h.service.Assemble(ctx, h.month(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	data, err := h.service.Assemble(ctx, h.month(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, data); err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"billing-%s.csv\"", data.Month))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream billing csv", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if !errors.Is(err, ErrInvalidMonth) {
		h.logger.Error("assemble billing", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
