package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/logistics-billing/internal/platform/db"
)

// TxRepository exposes the reads and upserts of one recompute.
type TxRepository interface {
	OutboundLines(ctx context.Context, from, to time.Time) ([]OutboundLine, error)
	InboundLines(ctx context.Context, from, to time.Time) ([]InboundLine, error)
	UpsertDaily(ctx context.Context, s DailySummary) error
	UpsertMonthly(ctx context.Context, m MonthlyRevenue) error
}

// Store is the persistence contract of the Service.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FactBounds(ctx context.Context) (first, last time.Time, ok bool, err error)
	ClearSummaries(ctx context.Context) error
}

// Repository persists summaries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) OutboundLines(ctx context.Context, from, to time.Time) ([]OutboundLine, error) {
	rows, err := t.tx.Query(ctx, `SELECT COALESCE(invoice_no, ''), invoice_qty, boxes, gross_total
FROM outbound_facts WHERE invoice_date >= $1 AND invoice_date < $2`, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregation: outbound lines: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboundLine, error) {
		var l OutboundLine
		err := row.Scan(&l.InvoiceNo, &l.InvoiceQty, &l.Boxes, &l.GrossTotal)
		return l, err
	})
}

func (t *txRepo) InboundLines(ctx context.Context, from, to time.Time) ([]InboundLine, error) {
	rows, err := t.tx.Query(ctx, `SELECT invoice_qty, boxes
FROM inbound_facts WHERE received_date >= $1 AND received_date < $2`, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregation: inbound lines: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (InboundLine, error) {
		var l InboundLine
		err := row.Scan(&l.InvoiceQty, &l.Boxes)
		return l, err
	})
}

func (t *txRepo) UpsertDaily(ctx context.Context, s DailySummary) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO daily_summaries
	(day, outbound_invoices, outbound_qty, outbound_boxes, gross_sale, inbound_qty, inbound_boxes, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (day) DO UPDATE SET
	outbound_invoices = EXCLUDED.outbound_invoices,
	outbound_qty = EXCLUDED.outbound_qty,
	outbound_boxes = EXCLUDED.outbound_boxes,
	gross_sale = EXCLUDED.gross_sale,
	inbound_qty = EXCLUDED.inbound_qty,
	inbound_boxes = EXCLUDED.inbound_boxes,
	updated_at = NOW()`,
		s.Day, s.OutboundInvoices, s.OutboundQty, s.OutboundBoxes, s.GrossSale, s.InboundQty, s.InboundBoxes)
	if err != nil {
		return fmt.Errorf("aggregation: upsert daily %s: %w", s.Day.Format(time.DateOnly), err)
	}
	return nil
}

func (t *txRepo) UpsertMonthly(ctx context.Context, m MonthlyRevenue) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO monthly_revenue (month, gross_sale, revenue_marginal, revenue_flat, last_recalc_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (month) DO UPDATE SET
	gross_sale = EXCLUDED.gross_sale,
	revenue_marginal = EXCLUDED.revenue_marginal,
	revenue_flat = EXCLUDED.revenue_flat,
	last_recalc_at = EXCLUDED.last_recalc_at`,
		m.Month, m.GrossSale, m.RevenueMarginal, m.RevenueFlat, m.LastRecalcAt)
	if err != nil {
		return fmt.Errorf("aggregation: upsert monthly %s: %w", m.Month.Format("2006-01"), err)
	}
	return nil
}

// FactBounds returns the earliest and latest fact dates across both fact tables.
func (r *Repository) FactBounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	var first, last *time.Time
	err := r.pool.QueryRow(ctx, `SELECT MIN(d), MAX(d) FROM (
	SELECT invoice_date AS d FROM outbound_facts
	UNION ALL
	SELECT received_date AS d FROM inbound_facts
) facts`).Scan(&first, &last)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("aggregation: fact bounds: %w", err)
	}
	if first == nil || last == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return *first, *last, true, nil
}

// ClearSummaries truncates both summary tables in one transaction.
func (r *Repository) ClearSummaries(ctx context.Context) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM daily_summaries`); err != nil {
			return fmt.Errorf("aggregation: clear daily: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM monthly_revenue`); err != nil {
			return fmt.Errorf("aggregation: clear monthly: %w", err)
		}
		return nil
	})
}
