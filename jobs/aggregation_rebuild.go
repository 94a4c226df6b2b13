package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/logistics-billing/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Rebuilder recomputes stored summaries.
type Rebuilder interface {
	Rebuild(ctx context.Context, from, to time.Time) (int, error)
}

// CacheBumper invalidates dashboard reads after a rebuild.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// AggregationRebuildJob runs summary rebuilds off the request path.
type AggregationRebuildJob struct {
	Service Rebuilder
	Cache   CacheBumper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAggregationRebuildJob constructs the job handler.
func NewAggregationRebuildJob(service Rebuilder, cache CacheBumper, logger *slog.Logger, metrics *jobmetrics.Metrics) *AggregationRebuildJob {
	return &AggregationRebuildJob{
		Service: service,
		Cache:   cache,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one rebuild task.
func (j *AggregationRebuildJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("aggregation rebuild: dependencies not configured")
	}
	var payload RebuildPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("aggregation rebuild: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	from, to, err := payload.bounds()
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskAggregationRebuild)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	days, err := j.Service.Rebuild(ctx, from, to)
	if err != nil {
		j.log().Error("rebuild summaries", slog.String("from", payload.From), slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	j.metrics().AddRecomputedDays(TaskAggregationRebuild, days)

	if j.Cache != nil {
		if err := j.Cache.Bump(ctx); err != nil {
			j.log().Warn("bump analytics cache", slog.Any("error", err))
		}
	}
	j.log().Info("rebuilt summaries",
		slog.String("from", payload.From),
		slog.String("to", payload.To),
		slog.Int("days", days),
		slog.Duration("duration", j.now().Sub(start)))
	return nil
}

func (j *AggregationRebuildJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AggregationRebuildJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAggregationRebuild))
	}
	return slog.Default().With(slog.String("job", TaskAggregationRebuild))
}

func (j *AggregationRebuildJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *AggregationRebuildJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
