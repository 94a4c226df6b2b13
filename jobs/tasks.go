package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAggregationRebuild recomputes summaries over a date range.
	TaskAggregationRebuild = "aggregation:rebuild"
)

// RebuildPayload bounds a rebuild. Blank bounds fall back to the stored fact range.
type RebuildPayload struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

func (p RebuildPayload) bounds() (from, to time.Time, err error) {
	if p.From != "" {
		if from, err = time.Parse(time.DateOnly, p.From); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("rebuild: bad from %q: %w", p.From, err)
		}
	}
	if p.To != "" {
		if to, err = time.Parse(time.DateOnly, p.To); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("rebuild: bad to %q: %w", p.To, err)
		}
	}
	return from, to, nil
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

// NewRebuildTask creates an Asynq task rebuilding summaries for [from, to].
func NewRebuildTask(from, to time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(RebuildPayload{From: formatDay(from), To: formatDay(to)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAggregationRebuild, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}
