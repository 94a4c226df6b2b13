package analytichttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/logistics-billing/internal/analytics"
	"github.com/odyssey-erp/logistics-billing/internal/revenue"
)

type stubService struct {
	mu      sync.Mutex
	summary analytics.KPISummary
	inbound analytics.InboundKPI
	daily   []analytics.DailyPoint
	monthly []analytics.MonthlyPoint
	err     error

	lastKPI     analytics.KPIFilter
	lastRange   analytics.Range
	lastMode    revenue.Mode
	lastMonthly analytics.MonthlyFilter
}

func (s *stubService) GetKPISummary(ctx context.Context, filter analytics.KPIFilter) (analytics.KPISummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKPI = filter
	return s.summary, s.err
}

func (s *stubService) GetInboundKPI(ctx context.Context, r analytics.Range) (analytics.InboundKPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRange = r
	return s.inbound, s.err
}

func (s *stubService) GetDailySeries(ctx context.Context, r analytics.Range, mode revenue.Mode) ([]analytics.DailyPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRange, s.lastMode = r, mode
	return s.daily, s.err
}

func (s *stubService) GetMonthlyRevenue(ctx context.Context, filter analytics.MonthlyFilter) ([]analytics.MonthlyPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMonthly = filter
	return s.monthly, s.err
}

func newTestRouter(svc AnalyticsService) http.Handler {
	h := NewHandler(nil, svc)
	h.WithNow(func() time.Time { return time.Date(2025, 3, 18, 15, 4, 0, 0, time.UTC) })
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	router.ServeHTTP(rr, req)
	return rr
}

func TestKPIDefaultsToMonthToDate(t *testing.T) {
	svc := &stubService{summary: analytics.KPISummary{GrossSale: 10}}
	rr := get(newTestRouter(svc), "/api/kpi")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if !svc.lastKPI.Range.From.Equal(want) {
		t.Fatalf("from = %s, want %s", svc.lastKPI.Range.From, want)
	}
	if !svc.lastKPI.Range.To.Equal(time.Date(2025, 3, 18, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected to %s", svc.lastKPI.Range.To)
	}
	if svc.lastKPI.Mode != revenue.ModeMarginal {
		t.Fatalf("unexpected mode %q", svc.lastKPI.Mode)
	}
	var body analytics.KPISummary
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.GrossSale != 10 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestDailyPassesRangeAndMode(t *testing.T) {
	svc := &stubService{daily: []analytics.DailyPoint{{Date: "2025-01-02"}}}
	rr := get(newTestRouter(svc), "/api/daily?from=2025-01-01&to=2025-01-31&mode=FLAT")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if svc.lastMode != revenue.ModeFlat {
		t.Fatalf("unexpected mode %q", svc.lastMode)
	}
	if svc.lastRange.Days() != 31 {
		t.Fatalf("unexpected range %+v", svc.lastRange)
	}
}

func TestInvalidFiltersReturnBadRequest(t *testing.T) {
	router := newTestRouter(&stubService{})
	for _, target := range []string{
		"/api/kpi?from=2025-02-30",
		"/api/kpi?from=01-02-2025",
		"/api/daily?mode=tiered",
		"/api/inbound-kpi?from=2025-03-10&to=2025-03-01",
		"/api/monthly-revenue?from=2025-13",
		"/api/monthly-revenue?from=2025-06&to=2025-01",
	} {
		rr := get(router, target)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/problem+json") {
			t.Fatalf("%s: unexpected content type %q", target, ct)
		}
	}
}

func TestMonthlyOpenBounds(t *testing.T) {
	svc := &stubService{monthly: []analytics.MonthlyPoint{{Month: "2025-01", Label: "Jan 2025"}}}
	router := newTestRouter(svc)
	rr := get(router, "/api/monthly-revenue")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !svc.lastMonthly.From.IsZero() || !svc.lastMonthly.To.IsZero() {
		t.Fatalf("expected open bounds, got %+v", svc.lastMonthly)
	}

	rr = get(router, "/api/monthly-revenue?from=2024-04&to=2025-03&mode=flat")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if svc.lastMonthly.From.Month() != time.April || svc.lastMonthly.Mode != revenue.ModeFlat {
		t.Fatalf("unexpected filter %+v", svc.lastMonthly)
	}
}

func TestDashboardCombinesCards(t *testing.T) {
	svc := &stubService{
		summary: analytics.KPISummary{GrossSale: 5},
		inbound: analytics.InboundKPI{InboundTotals: analytics.InboundTotals{InvoiceCount: 2}},
		daily:   []analytics.DailyPoint{{Date: "2025-03-01"}},
	}
	rr := get(newTestRouter(svc), "/api/dashboard?from=2025-03-01&to=2025-03-07")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body Dashboard
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.From != "2025-03-01" || body.To != "2025-03-07" || body.KPI.GrossSale != 5 || body.Inbound.InvoiceCount != 2 || len(body.Daily) != 1 {
		t.Fatalf("unexpected dashboard %+v", body)
	}
}

func TestServiceErrorReturnsInternal(t *testing.T) {
	rr := get(newTestRouter(&stubService{err: errors.New("boom")}), "/api/dashboard")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Fatalf("internal error leaked: %s", rr.Body.String())
	}
}

func TestCSVExport(t *testing.T) {
	svc := &stubService{daily: []analytics.DailyPoint{{Date: "2025-03-01", GrossSale: 12.5}}}
	rr := get(newTestRouter(svc), "/api/daily/export.csv?from=2025-03-01&to=2025-03-02")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "daily-2025-03-01-2025-03-02.csv") {
		t.Fatalf("unexpected disposition %q", got)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "2025-03-01,12.50") {
		t.Fatalf("daily row missing: %s", body)
	}
	if !strings.Contains(body, "Period,2025-03-01..2025-03-02") {
		t.Fatalf("period row missing: %s", body)
	}
}

func TestCSVExportRateLimited(t *testing.T) {
	router := newTestRouter(&stubService{})
	var last int
	for i := 0; i < 11; i++ {
		last = get(router, "/api/monthly-revenue/export.csv").Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", last)
	}
}
