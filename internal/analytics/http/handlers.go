package analytichttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/logistics-billing/internal/analytics"
	"github.com/odyssey-erp/logistics-billing/internal/analytics/export"
	"github.com/odyssey-erp/logistics-billing/internal/platform/httpx"
	"github.com/odyssey-erp/logistics-billing/internal/revenue"
)

const requestTimeout = 5 * time.Second

// AnalyticsService defines the dashboard data contract used by the handler.
type AnalyticsService interface {
	GetKPISummary(ctx context.Context, filter analytics.KPIFilter) (analytics.KPISummary, error)
	GetInboundKPI(ctx context.Context, r analytics.Range) (analytics.InboundKPI, error)
	GetDailySeries(ctx context.Context, r analytics.Range, mode revenue.Mode) ([]analytics.DailyPoint, error)
	GetMonthlyRevenue(ctx context.Context, filter analytics.MonthlyFilter) ([]analytics.MonthlyPoint, error)
}

// Handler serves the dashboard read endpoints.
type Handler struct {
	logger   *slog.Logger
	service  AnalyticsService
	validate *validator.Validate
	csvPool  sync.Pool
	now      func() time.Time
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service AnalyticsService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		now:      time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type rangeQuery struct {
	From string `validate:"omitempty,datetime=2006-01-02"`
	To   string `validate:"omitempty,datetime=2006-01-02"`
	Mode string `validate:"omitempty,oneof=marginal flat"`
}

type monthQuery struct {
	From string `validate:"omitempty,datetime=2006-01"`
	To   string `validate:"omitempty,datetime=2006-01"`
	Mode string `validate:"omitempty,oneof=marginal flat"`
}

type rangeFilter struct {
	Range analytics.Range
	Mode  revenue.Mode
}

func (h *Handler) check(q any) error {
	err := h.validate.Struct(q)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return fmt.Errorf("%w: invalid %s", httpx.ErrValidation, strings.Join(fields, ", "))
}

func modeOf(raw string) revenue.Mode {
	if raw == "" {
		return revenue.ModeMarginal
	}
	return revenue.Mode(raw)
}

// parseRange reads from/to/mode. Missing bounds default to month-to-date.
func (h *Handler) parseRange(r *http.Request) (rangeFilter, error) {
	values := r.URL.Query()
	q := rangeQuery{
		From: strings.TrimSpace(values.Get("from")),
		To:   strings.TrimSpace(values.Get("to")),
		Mode: strings.ToLower(strings.TrimSpace(values.Get("mode"))),
	}
	if err := h.check(q); err != nil {
		return rangeFilter{}, err
	}
	to := h.now().UTC()
	if q.To != "" {
		to, _ = time.Parse(time.DateOnly, q.To)
	}
	from := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	if q.From != "" {
		from, _ = time.Parse(time.DateOnly, q.From)
	}
	rng, err := analytics.NewRange(from, to)
	if err != nil {
		return rangeFilter{}, err
	}
	return rangeFilter{Range: rng, Mode: modeOf(q.Mode)}, nil
}

func (h *Handler) parseMonths(r *http.Request) (analytics.MonthlyFilter, error) {
	values := r.URL.Query()
	q := monthQuery{
		From: strings.TrimSpace(values.Get("from")),
		To:   strings.TrimSpace(values.Get("to")),
		Mode: strings.ToLower(strings.TrimSpace(values.Get("mode"))),
	}
	if err := h.check(q); err != nil {
		return analytics.MonthlyFilter{}, err
	}
	filter := analytics.MonthlyFilter{Mode: modeOf(q.Mode)}
	if q.From != "" {
		filter.From, _ = time.Parse("2006-01", q.From)
	}
	if q.To != "" {
		filter.To, _ = time.Parse("2006-01", q.To)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return analytics.MonthlyFilter{}, fmt.Errorf("%w: range ends before it starts", httpx.ErrValidation)
	}
	return filter, nil
}

func (h *Handler) handleKPI(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseRange(r)
	if err != nil {
		h.respondError(w, "parse kpi filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	summary, err := h.service.GetKPISummary(ctx, analytics.KPIFilter{Range: f.Range, Mode: f.Mode})
	if err != nil {
		h.respondError(w, "load kpi", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleInboundKPI(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseRange(r)
	if err != nil {
		h.respondError(w, "parse inbound filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	kpi, err := h.service.GetInboundKPI(ctx, f.Range)
	if err != nil {
		h.respondError(w, "load inbound kpi", err)
		return
	}
	httpx.JSON(w, http.StatusOK, kpi)
}

func (h *Handler) handleDaily(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseRange(r)
	if err != nil {
		h.respondError(w, "parse daily filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	points, err := h.service.GetDailySeries(ctx, f.Range, f.Mode)
	if err != nil {
		h.respondError(w, "load daily series", err)
		return
	}
	httpx.JSON(w, http.StatusOK, points)
}

func (h *Handler) handleMonthly(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseMonths(r)
	if err != nil {
		h.respondError(w, "parse monthly filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	points, err := h.service.GetMonthlyRevenue(ctx, filter)
	if err != nil {
		h.respondError(w, "load monthly revenue", err)
		return
	}
	httpx.JSON(w, http.StatusOK, points)
}

// Dashboard bundles every card of one range.
type Dashboard struct {
	From    string                 `json:"from"`
	To      string                 `json:"to"`
	KPI     analytics.KPISummary   `json:"kpi"`
	Inbound analytics.InboundKPI   `json:"inbound"`
	Daily   []analytics.DailyPoint `json:"daily"`
}

func (h *Handler) loadDashboard(ctx context.Context, f rangeFilter) (Dashboard, error) {
	data := Dashboard{
		From: f.Range.From.Format(time.DateOnly),
		To:   f.Range.To.Format(time.DateOnly),
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := h.service.GetKPISummary(ctx, analytics.KPIFilter{Range: f.Range, Mode: f.Mode})
		if err != nil {
			return err
		}
		data.KPI = summary
		return nil
	})
	g.Go(func() error {
		kpi, err := h.service.GetInboundKPI(ctx, f.Range)
		if err != nil {
			return err
		}
		data.Inbound = kpi
		return nil
	})
	g.Go(func() error {
		points, err := h.service.GetDailySeries(ctx, f.Range, f.Mode)
		if err != nil {
			return err
		}
		data.Daily = points
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return data, nil
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseRange(r)
	if err != nil {
		h.respondError(w, "parse dashboard filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	data, err := h.loadDashboard(ctx, f)
	if err != nil {
		h.respondError(w, "load dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseRange(r)
	if err != nil {
		h.respondError(w, "parse export filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	data, err := h.loadDashboard(ctx, f)
	if err != nil {
		h.respondError(w, "load dashboard", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	period := data.From + ".." + data.To
	if err := export.WriteKPICSV(buf, data.KPI, data.Inbound, period); err != nil {
		h.respondError(w, "write kpi csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteDailyCSV(buf, data.Daily); err != nil {
		h.respondError(w, "write daily csv", err)
		return
	}

	filename := fmt.Sprintf("daily-%s-%s.csv", data.From, data.To)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

func (h *Handler) handleMonthlyCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseMonths(r)
	if err != nil {
		h.respondError(w, "parse monthly filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	points, err := h.service.GetMonthlyRevenue(ctx, filter)
	if err != nil {
		h.respondError(w, "load monthly revenue", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"monthly-revenue.csv\"")
	if err := export.WriteMonthlyCSV(w, points); err != nil {
		h.logger.Error("stream monthly csv", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
