package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/logistics-billing/internal/aggregation"
	"github.com/odyssey-erp/logistics-billing/internal/revenue"
)

// Delta compares a figure with the previous period. Percentage is 0 when the
// previous value is 0.
type Delta struct {
	Absolute   float64 `json:"absolute"`
	Percentage float64 `json:"percentage"`
}

// CalculateDelta builds a Delta.
func CalculateDelta(current, previous float64) Delta {
	d := Delta{Absolute: current - previous}
	if previous != 0 {
		d.Percentage = d.Absolute / previous * 100
	}
	return d
}

// KPIFilter defines the scope for outbound KPI aggregation.
type KPIFilter struct {
	Range Range
	Mode  revenue.Mode
}

// OutboundDelta holds the period-over-period change of every outbound KPI.
type OutboundDelta struct {
	GrossSale    Delta `json:"grossSale"`
	Revenue      Delta `json:"revenue"`
	InvoiceCount Delta `json:"invoiceCount"`
	InvoiceQty   Delta `json:"invoiceQty"`
	Boxes        Delta `json:"boxes"`
}

// KPISummary contains the outbound indicators surfaced on the dashboard.
type KPISummary struct {
	Mode         revenue.Mode  `json:"mode"`
	GrossSale    float64       `json:"grossSale"`
	Revenue      float64       `json:"revenue"`
	InvoiceCount int           `json:"invoiceCount"`
	InvoiceQty   float64       `json:"invoiceQty"`
	Boxes        float64       `json:"boxes"`
	AvgTicket    float64       `json:"avgTicket"`
	GrossPerUnit float64       `json:"grossPerUnit"`
	Delta        OutboundDelta `json:"delta"`
}

// InboundTotals are raw inbound fact sums for a range.
type InboundTotals struct {
	InvoiceCount int     `json:"invoiceCount"`
	InvoiceValue float64 `json:"invoiceValue"`
	InvoiceQty   float64 `json:"invoiceQty"`
	Boxes        float64 `json:"boxes"`
}

// InboundDelta holds the period-over-period change of every inbound KPI.
type InboundDelta struct {
	InvoiceCount Delta `json:"invoiceCount"`
	InvoiceValue Delta `json:"invoiceValue"`
	InvoiceQty   Delta `json:"invoiceQty"`
	Boxes        Delta `json:"boxes"`
}

// InboundKPI contains the inbound indicators with deltas.
type InboundKPI struct {
	InboundTotals
	Delta InboundDelta `json:"delta"`
}

type outboundTotals struct {
	gross, qty, boxes float64
	invoices          int
}

func sumDaily(days []aggregation.DailySummary) outboundTotals {
	var t outboundTotals
	for _, d := range days {
		t.gross += d.GrossSale
		t.qty += d.OutboundQty
		t.boxes += d.OutboundBoxes
		t.invoices += d.OutboundInvoices
	}
	return t
}

// GetKPISummary resolves the outbound KPI card using cache-aware lookups.
func (s *Service) GetKPISummary(ctx context.Context, filter KPIFilter) (KPISummary, error) {
	mode := filter.Mode
	if mode == "" {
		mode = revenue.ModeMarginal
	}
	return cached(ctx, s.cache, keyKPI(filter.Range, mode), func(ctx context.Context) (KPISummary, error) {
		var current, previous []aggregation.DailySummary
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			rows, err := s.repo.DailySummaries(gctx, filter.Range.From, filter.Range.End())
			current = rows
			return err
		})
		g.Go(func() error {
			prev := filter.Range.Previous()
			rows, err := s.repo.DailySummaries(gctx, prev.From, prev.End())
			previous = rows
			return err
		})
		if err := g.Wait(); err != nil {
			return KPISummary{}, err
		}

		cur, prev := sumDaily(current), sumDaily(previous)
		rev := s.table.Revenue(cur.gross, mode)
		prevRev := s.table.Revenue(prev.gross, mode)
		k := KPISummary{
			Mode:         mode,
			GrossSale:    cur.gross,
			Revenue:      rev,
			InvoiceCount: cur.invoices,
			InvoiceQty:   cur.qty,
			Boxes:        cur.boxes,
			Delta: OutboundDelta{
				GrossSale:    CalculateDelta(cur.gross, prev.gross),
				Revenue:      CalculateDelta(rev, prevRev),
				InvoiceCount: CalculateDelta(float64(cur.invoices), float64(prev.invoices)),
				InvoiceQty:   CalculateDelta(cur.qty, prev.qty),
				Boxes:        CalculateDelta(cur.boxes, prev.boxes),
			},
		}
		if cur.invoices > 0 {
			k.AvgTicket = cur.gross / float64(cur.invoices)
		}
		if cur.qty > 0 {
			k.GrossPerUnit = cur.gross / cur.qty
		}
		return k, nil
	})
}

// GetInboundKPI resolves the inbound KPI card using cache-aware lookups.
func (s *Service) GetInboundKPI(ctx context.Context, r Range) (InboundKPI, error) {
	return cached(ctx, s.cache, keyInboundKPI(r), func(ctx context.Context) (InboundKPI, error) {
		cur, err := s.repo.InboundTotals(ctx, r.From, r.End())
		if err != nil {
			return InboundKPI{}, err
		}
		p := r.Previous()
		prev, err := s.repo.InboundTotals(ctx, p.From, p.End())
		if err != nil {
			return InboundKPI{}, err
		}
		return InboundKPI{
			InboundTotals: cur,
			Delta: InboundDelta{
				InvoiceCount: CalculateDelta(float64(cur.InvoiceCount), float64(prev.InvoiceCount)),
				InvoiceValue: CalculateDelta(cur.InvoiceValue, prev.InvoiceValue),
				InvoiceQty:   CalculateDelta(cur.InvoiceQty, prev.InvoiceQty),
				Boxes:        CalculateDelta(cur.Boxes, prev.Boxes),
			},
		}, nil
	})
}
