package persistence

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultWriterBacklog = 256
	writeAttempts        = 3
	writeRetryBackoff    = 300 * time.Millisecond
)

type writeJob struct {
	label string
	run   func(context.Context) error
}

// WriterQueue funnels node inventory writes onto a single goroutine.
// sqlite serves one writer well; concurrent writers would trade that for
// SQLITE_BUSY churn. Failed writes are retried a few times with growing
// backoff before the inventory update is abandoned.
type WriterQueue struct {
	logger *slog.Logger
	jobs   chan writeJob
}

func NewWriterQueue(logger *slog.Logger, backlog int) *WriterQueue {
	if logger == nil {
		logger = slog.Default().With("component", "persistence")
	}
	if backlog <= 0 {
		backlog = defaultWriterBacklog
	}

	return &WriterQueue{
		logger: logger,
		jobs:   make(chan writeJob, backlog),
	}
}

// Enqueue never blocks the caller. When the backlog is full the hand-off
// moves to a goroutine; node updates are too cheap to be worth dropping.
func (w *WriterQueue) Enqueue(label string, run func(context.Context) error) {
	job := writeJob{label: label, run: run}
	select {
	case w.jobs <- job:
	default:
		go func() { w.jobs <- job }()
	}
}

func (w *WriterQueue) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *WriterQueue) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			w.execute(ctx, job)
		}
	}
}

func (w *WriterQueue) execute(ctx context.Context, job writeJob) {
	for attempt := 1; ; attempt++ {
		err := job.run(ctx)
		if err == nil {
			return
		}
		if attempt == writeAttempts {
			w.logger.Error("node inventory write abandoned", "job", job.label, "attempts", attempt, "error", err)
			return
		}
		w.logger.Warn("node inventory write failed, retrying", "job", job.label, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * writeRetryBackoff):
		}
	}
}
