package aggregation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/logistics-billing/internal/platform/httpx"
)

// Enqueuer hands rebuilds to the background worker.
type Enqueuer interface {
	EnqueueRebuild(ctx context.Context, from, to time.Time) (string, error)
}

// Rebuilder runs a rebuild in-process.
type Rebuilder interface {
	Rebuild(ctx context.Context, from, to time.Time) (int, error)
}

// Handler exposes the rebuild endpoint.
type Handler struct {
	logger   *slog.Logger
	queue    Enqueuer
	inline   Rebuilder
	validate *validator.Validate
}

// NewHandler constructs Handler. With a nil queue rebuilds run inline.
func NewHandler(logger *slog.Logger, queue Enqueuer, inline Rebuilder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, queue: queue, inline: inline, validate: validator.New()}
}

// MountRoutes registers the rebuild endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/api/aggregation/rebuild", h.handleRebuild)
}

type rebuildRequest struct {
	From string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `json:"to" validate:"omitempty,datetime=2006-01-02"`
}

func (req rebuildRequest) bounds() (from, to time.Time) {
	if req.From != "" {
		from, _ = time.Parse(time.DateOnly, req.From)
	}
	if req.To != "" {
		to, _ = time.Parse(time.DateOnly, req.To)
	}
	return from, to
}

func (h *Handler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to must be YYYY-MM-DD")
		return
	}
	from, to := req.bounds()
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to precedes from")
		return
	}

	if h.queue != nil {
		id, err := h.queue.EnqueueRebuild(r.Context(), from, to)
		if err != nil {
			h.respondError(w, "enqueue rebuild", err)
			return
		}
		h.logger.Info("rebuild enqueued", slog.String("task_id", id), slog.String("from", req.From), slog.String("to", req.To))
		httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": id})
		return
	}
	if h.inline == nil {
		h.respondError(w, "rebuild", fmt.Errorf("aggregation: no rebuild backend configured"))
		return
	}
	days, err := h.inline.Rebuild(r.Context(), from, to)
	if err != nil {
		h.respondError(w, "rebuild", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"days": days})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrBusy) && !errors.Is(err, httpx.ErrDuplicate) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
