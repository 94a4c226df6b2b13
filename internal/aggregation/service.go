package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/logistics-billing/internal/platform/cache"
	"github.com/odyssey-erp/logistics-billing/internal/revenue"
)

const (
	lockKey  = "lock:aggregation"
	lockTTL  = 5 * time.Minute
	lockWait = 30 * time.Second
	// lockPerDay extends the lock for refreshes spanning many days.
	lockPerDay = 2 * time.Second
)

// Locker serialises refreshes across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (func(context.Context) error, error)
}

// Config carries startup-time policy for the Service.
type Config struct {
	Table     revenue.Table
	CountMode InvoiceCountMode
	Locker    Locker
	Logger    *slog.Logger
}

// Service recomputes daily and monthly summaries from facts.
type Service struct {
	store  Store
	table  revenue.Table
	mode   InvoiceCountMode
	locker Locker
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs Service.
func NewService(store Store, cfg Config) *Service {
	table := cfg.Table
	if len(table.Slabs()) == 0 {
		table = revenue.DefaultTable
	}
	mode := cfg.CountMode
	if mode == "" {
		mode = CountRows
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, table: table, mode: mode, locker: cfg.Locker, logger: logger, now: time.Now}
}

// WithClock overrides the clock stamped on monthly snapshots.
func (s *Service) WithClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// RefreshDailySummary recomputes each given day from scratch, one transaction per day.
func (s *Service) RefreshDailySummary(ctx context.Context, dates []time.Time) error {
	for _, day := range AffectedDates(dates) {
		next := day.AddDate(0, 0, 1)
		err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			outbound, err := tx.OutboundLines(ctx, day, next)
			if err != nil {
				return err
			}
			inbound, err := tx.InboundLines(ctx, day, next)
			if err != nil {
				return err
			}
			return tx.UpsertDaily(ctx, Summarize(day, outbound, inbound, s.mode))
		})
		if err != nil {
			return fmt.Errorf("aggregation: refresh day %s: %w", day.Format(time.DateOnly), err)
		}
	}
	return nil
}

// RefreshMonthlyRevenue recomputes gross and revenue for each given month.
func (s *Service) RefreshMonthlyRevenue(ctx context.Context, months []time.Time) error {
	for _, month := range AffectedMonths(months) {
		next := month.AddDate(0, 1, 0)
		err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			outbound, err := tx.OutboundLines(ctx, month, next)
			if err != nil {
				return err
			}
			var gross float64
			for _, o := range outbound {
				gross += o.GrossTotal
			}
			res := s.table.Compute(gross)
			return tx.UpsertMonthly(ctx, MonthlyRevenue{
				Month:           month,
				GrossSale:       gross,
				RevenueMarginal: res.Marginal,
				RevenueFlat:     res.Flat,
				LastRecalcAt:    s.now().UTC(),
			})
		})
		if err != nil {
			return fmt.Errorf("aggregation: refresh month %s: %w", month.Format("2006-01"), err)
		}
	}
	return nil
}

// Refresh recomputes every day and month touched by the given fact dates.
func (s *Service) Refresh(ctx context.Context, instants []time.Time) error {
	if len(instants) == 0 {
		return nil
	}
	release, err := s.lock(ctx, len(AffectedDates(instants)))
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("release aggregation lock", slog.Any("error", rerr))
		}
	}()

	start := s.now()
	if err := s.RefreshDailySummary(ctx, instants); err != nil {
		return err
	}
	if err := s.RefreshMonthlyRevenue(ctx, instants); err != nil {
		return err
	}
	s.logger.Debug("summaries refreshed",
		slog.Int("days", len(AffectedDates(instants))),
		slog.Int("months", len(AffectedMonths(instants))),
		slog.Duration("duration", s.now().Sub(start)))
	return nil
}

// Rebuild recomputes every day in [from, to]. Zero bounds default to the
// span covered by stored facts. It returns the number of days refreshed.
func (s *Service) Rebuild(ctx context.Context, from, to time.Time) (int, error) {
	if from.IsZero() || to.IsZero() {
		first, last, ok, err := s.store.FactBounds(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		if from.IsZero() {
			from = first
		}
		if to.IsZero() {
			to = last
		}
	}
	from, to = DayStart(from), DayStart(to)
	if to.Before(from) {
		return 0, fmt.Errorf("aggregation: rebuild range ends before it starts")
	}
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	if err := s.Refresh(ctx, days); err != nil {
		return 0, err
	}
	return len(days), nil
}

// ClearAll drops every stored summary.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.store.ClearSummaries(ctx)
}

func (s *Service) lock(ctx context.Context, days int) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if s.locker == nil {
		return noop, nil
	}
	release, err := s.locker.Acquire(ctx, lockKey, lockTTLFor(days), lockWait)
	if errors.Is(err, cache.ErrLockNotObtained) {
		return noop, errors.Join(ErrRefreshBusy, err)
	}
	if err != nil {
		return noop, fmt.Errorf("aggregation: acquire lock: %w", err)
	}
	return release, nil
}

// lockTTLFor sizes the lock lease to the number of days a refresh rewrites.
func lockTTLFor(days int) time.Duration {
	return max(lockTTL, time.Duration(days)*lockPerDay)
}
