package analytics

import (
	"context"
	"time"

	"github.com/odyssey-erp/logistics-billing/internal/aggregation"
	"github.com/odyssey-erp/logistics-billing/internal/revenue"
)

// DailyPoint is one day of the outbound series.
type DailyPoint struct {
	Date         string  `json:"date"`
	GrossSale    float64 `json:"grossSale"`
	Revenue      float64 `json:"revenue"`
	InvoiceCount int     `json:"invoiceCount"`
	InvoiceQty   float64 `json:"invoiceQty"`
	Boxes        float64 `json:"boxes"`
	InboundQty   float64 `json:"inboundQty"`
	InboundBoxes float64 `json:"inboundBoxes"`
}

// GetDailySeries returns the stored daily summaries of r with per-day revenue.
func (s *Service) GetDailySeries(ctx context.Context, r Range, mode revenue.Mode) ([]DailyPoint, error) {
	if mode == "" {
		mode = revenue.ModeMarginal
	}
	return cached(ctx, s.cache, keyDaily(r, mode), func(ctx context.Context) ([]DailyPoint, error) {
		rows, err := s.repo.DailySummaries(ctx, r.From, r.End())
		if err != nil {
			return nil, err
		}
		points := make([]DailyPoint, 0, len(rows))
		for _, d := range rows {
			points = append(points, DailyPoint{
				Date:         d.Day.UTC().Format(time.DateOnly),
				GrossSale:    d.GrossSale,
				Revenue:      s.table.Revenue(d.GrossSale, mode),
				InvoiceCount: d.OutboundInvoices,
				InvoiceQty:   d.OutboundQty,
				Boxes:        d.OutboundBoxes,
				InboundQty:   d.InboundQty,
				InboundBoxes: d.InboundBoxes,
			})
		}
		return points, nil
	})
}

// MonthlyFilter bounds the monthly series. Zero bounds are open.
type MonthlyFilter struct {
	From time.Time
	To   time.Time
	Mode revenue.Mode
}

// MonthlyPoint is one month of the revenue series.
type MonthlyPoint struct {
	Month        string    `json:"date"`
	Label        string    `json:"label"`
	GrossSale    float64   `json:"grossSale"`
	Revenue      float64   `json:"revenue"`
	LastRecalcAt time.Time `json:"lastRecalcAt"`
}

// GetMonthlyRevenue returns the stored monthly snapshots, picking the revenue
// figure that matches the requested mode.
func (s *Service) GetMonthlyRevenue(ctx context.Context, filter MonthlyFilter) ([]MonthlyPoint, error) {
	mode := filter.Mode
	if mode == "" {
		mode = revenue.ModeMarginal
	}
	var from, to time.Time
	if !filter.From.IsZero() {
		from = aggregation.MonthStart(filter.From)
	}
	if !filter.To.IsZero() {
		to = aggregation.MonthStart(filter.To).AddDate(0, 1, 0)
	}
	return cached(ctx, s.cache, keyMonthly(from, to, mode), func(ctx context.Context) ([]MonthlyPoint, error) {
		rows, err := s.repo.MonthlyRevenue(ctx, from, to)
		if err != nil {
			return nil, err
		}
		points := make([]MonthlyPoint, 0, len(rows))
		for _, m := range rows {
			rev := m.RevenueMarginal
			if mode == revenue.ModeFlat {
				rev = m.RevenueFlat
			}
			points = append(points, MonthlyPoint{
				Month:        m.Month.UTC().Format("2006-01"),
				Label:        m.Month.UTC().Format("Jan 2006"),
				GrossSale:    m.GrossSale,
				Revenue:      rev,
				LastRecalcAt: m.LastRecalcAt,
			})
		}
		return points, nil
	})
}
