package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/logistics-billing/internal/aggregation"
)

// PGRepository reads stored summaries from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// DailySummaries returns the summaries of [from, to) ordered by day.
func (r *PGRepository) DailySummaries(ctx context.Context, from, to time.Time) ([]aggregation.DailySummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT day, outbound_invoices, outbound_qty, outbound_boxes, gross_sale, inbound_qty, inbound_boxes
FROM daily_summaries WHERE day >= $1 AND day < $2 ORDER BY day`, from, to)
	if err != nil {
		return nil, fmt.Errorf("analytics: daily summaries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (aggregation.DailySummary, error) {
		var d aggregation.DailySummary
		err := row.Scan(&d.Day, &d.OutboundInvoices, &d.OutboundQty, &d.OutboundBoxes, &d.GrossSale, &d.InboundQty, &d.InboundBoxes)
		return d, err
	})
}

// InboundTotals sums inbound facts received in [from, to).
func (r *PGRepository) InboundTotals(ctx context.Context, from, to time.Time) (InboundTotals, error) {
	var t InboundTotals
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(invoice_value), 0), COALESCE(SUM(invoice_qty), 0), COALESCE(SUM(boxes), 0)
FROM inbound_facts WHERE received_date >= $1 AND received_date < $2`, from, to).
		Scan(&t.InvoiceCount, &t.InvoiceValue, &t.InvoiceQty, &t.Boxes)
	if err != nil {
		return InboundTotals{}, fmt.Errorf("analytics: inbound totals: %w", err)
	}
	return t, nil
}

// MonthlyRevenue returns snapshots with month in [from, to). Zero bounds are open.
func (r *PGRepository) MonthlyRevenue(ctx context.Context, from, to time.Time) ([]aggregation.MonthlyRevenue, error) {
	var (
		conds []string
		args  []any
	)
	if !from.IsZero() {
		args = append(args, from)
		conds = append(conds, fmt.Sprintf("month >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		conds = append(conds, fmt.Sprintf("month < $%d", len(args)))
	}
	query := `SELECT month, gross_sale, revenue_marginal, revenue_flat, last_recalc_at FROM monthly_revenue`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	rows, err := r.pool.Query(ctx, query+" ORDER BY month", args...)
	if err != nil {
		return nil, fmt.Errorf("analytics: monthly revenue: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (aggregation.MonthlyRevenue, error) {
		var m aggregation.MonthlyRevenue
		err := row.Scan(&m.Month, &m.GrossSale, &m.RevenueMarginal, &m.RevenueFlat, &m.LastRecalcAt)
		return m, err
	})
}
