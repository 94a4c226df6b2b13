package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics-billing/internal/platform/httpx"
	"github.com/odyssey-erp/logistics-billing/internal/revenue"
)

// DefaultMinimumGuarantee is the monthly billing floor in minor units.
const DefaultMinimumGuarantee = 60_000_000

// ErrInvalidMonth rejects month identifiers other than YYYY-MM.
var ErrInvalidMonth = fmt.Errorf("%w: month must be formatted YYYY-MM", httpx.ErrValidation)

var (
	crore   = decimal.NewFromInt(revenue.Crore)
	hundred = decimal.NewFromInt(100)
)

// SlabBreakdown is one contributing slab of an invoice.
type SlabBreakdown struct {
	Range  string          `json:"range"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// BillingData is the assembled invoice for one month.
type BillingData struct {
	Month         string          `json:"month"`
	GrossSale     decimal.Decimal `json:"grossSale"`
	MinGuarantee  decimal.Decimal `json:"minGuarantee"`
	BillingAmount decimal.Decimal `json:"billingAmount"`
	SlabBreakdown []SlabBreakdown `json:"slabBreakdown"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
}

// GrossSource supplies the aggregated gross sale of a half-open range.
type GrossSource interface {
	GrossBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

// Assembler turns a month's gross sale into an invoice breakdown.
type Assembler struct {
	source  GrossSource
	table   revenue.Table
	minimum decimal.Decimal
	logger  *slog.Logger
}

// NewAssembler constructs Assembler. A non-positive minimum falls back to DefaultMinimumGuarantee.
func NewAssembler(source GrossSource, table revenue.Table, minimum decimal.Decimal, logger *slog.Logger) *Assembler {
	if len(table.Slabs()) == 0 {
		table = revenue.DefaultTable
	}
	if !minimum.IsPositive() {
		minimum = decimal.NewFromInt(DefaultMinimumGuarantee)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{source: source, table: table, minimum: minimum, logger: logger}
}

// ParseMonth validates YYYY-MM and returns the first instant of that month in UTC.
func ParseMonth(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != len("2006-01") {
		return time.Time{}, ErrInvalidMonth
	}
	t, err := time.ParseInLocation("2006-01", raw, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidMonth
	}
	return t, nil
}

// Assemble builds the invoice for month.
func (a *Assembler) Assemble(ctx context.Context, month string) (BillingData, error) {
	start, err := ParseMonth(month)
	if err != nil {
		return BillingData{}, err
	}
	gross, err := a.source.GrossBetween(ctx, start, start.AddDate(0, 1, 0))
	if err != nil {
		return BillingData{}, fmt.Errorf("billing: month gross: %w", err)
	}
	data := a.Build(gross)
	data.Month = start.Format("2006-01")
	a.logger.Debug("invoice assembled",
		slog.String("month", data.Month),
		slog.String("gross", data.GrossSale.String()),
		slog.String("total", data.TotalRevenue.String()))
	return data, nil
}

// Build applies the minimum guarantee and decomposes the billed amount across slabs.
func (a *Assembler) Build(gross decimal.Decimal) BillingData {
	billed := decimal.Max(gross, a.minimum)
	data := BillingData{
		GrossSale:     gross.Round(2),
		MinGuarantee:  a.minimum,
		BillingAmount: billed.Round(2),
		SlabBreakdown: []SlabBreakdown{},
		TotalRevenue:  decimal.Zero,
	}
	amt := billed.Div(crore)
	for _, s := range a.table.Slabs() {
		lo := decimal.NewFromFloat(s.Min)
		if amt.LessThanOrEqual(lo) {
			break
		}
		portion := amt.Sub(lo)
		if s.Max != nil {
			portion = decimal.Min(portion, decimal.NewFromFloat(*s.Max).Sub(lo))
		}
		if !portion.IsPositive() {
			continue
		}
		rate := decimal.NewFromFloat(s.Rate)
		amount := portion.Mul(rate).Div(hundred).Mul(crore).Round(2)
		data.SlabBreakdown = append(data.SlabBreakdown, SlabBreakdown{
			Range:  slabRange(s),
			Rate:   rate,
			Amount: amount,
		})
		data.TotalRevenue = data.TotalRevenue.Add(amount)
	}
	return data
}

func slabRange(s revenue.Slab) string {
	lo := decimal.NewFromFloat(s.Min).Mul(crore).String()
	if s.Max == nil {
		return lo + "+"
	}
	return lo + " - " + decimal.NewFromFloat(*s.Max).Mul(crore).String()
}
