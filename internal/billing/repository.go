package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads month gross from the daily summaries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GrossBetween sums daily gross sale over [from, to).
func (r *Repository) GrossBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(gross_sale), 0)::numeric::text
FROM daily_summaries WHERE day >= $1 AND day < $2`, from, to).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("billing: gross between: %w", err)
	}
	return decimal.NewFromString(raw)
}
