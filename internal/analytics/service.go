package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/logistics-billing/internal/aggregation"
	"github.com/odyssey-erp/logistics-billing/internal/platform/httpx"
	"github.com/odyssey-erp/logistics-billing/internal/revenue"
)

// Repository exposes the summary reads the dashboard relies on.
type Repository interface {
	DailySummaries(ctx context.Context, from, to time.Time) ([]aggregation.DailySummary, error)
	InboundTotals(ctx context.Context, from, to time.Time) (InboundTotals, error)
	MonthlyRevenue(ctx context.Context, from, to time.Time) ([]aggregation.MonthlyRevenue, error)
}

// Service coordinates analytics query execution with the cache layer.
type Service struct {
	repo  Repository
	cache *Cache
	table revenue.Table
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache, table revenue.Table) *Service {
	if len(table.Slabs()) == 0 {
		table = revenue.DefaultTable
	}
	return &Service{repo: repo, cache: cache, table: table}
}

// Range is an inclusive span of UTC days.
type Range struct {
	From time.Time
	To   time.Time
}

// NewRange normalises both ends to midnight UTC.
func NewRange(from, to time.Time) (Range, error) {
	r := Range{From: aggregation.DayStart(from), To: aggregation.DayStart(to)}
	if r.To.Before(r.From) {
		return Range{}, fmt.Errorf("%w: range ends before it starts", httpx.ErrValidation)
	}
	return r, nil
}

// End is the exclusive upper bound of the range.
func (r Range) End() time.Time { return r.To.AddDate(0, 0, 1) }

// Days counts the days covered.
func (r Range) Days() int { return int(r.End().Sub(r.From).Hours() / 24) }

// Previous is the range of equal length ending the day before From.
func (r Range) Previous() Range {
	n := r.Days()
	return Range{From: r.From.AddDate(0, 0, -n), To: r.From.AddDate(0, 0, -1)}
}

func (r Range) token() string {
	return r.From.Format(time.DateOnly) + ":" + r.To.Format(time.DateOnly)
}

func cached[T any](ctx context.Context, c *Cache, keyBase string, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	var out T
	key, err := c.BuildKey(ctx, keyBase)
	if err != nil {
		return out, err
	}
	err = c.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return load(ctx)
	})
	return out, err
}
