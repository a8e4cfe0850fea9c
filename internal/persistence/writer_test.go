package persistence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWriterQueueRunsJobsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWriterQueue(nil, 4)
	w.Start(ctx)

	order := make(chan string, 2)
	w.Enqueue("first", func(context.Context) error {
		order <- "first"
		return nil
	})
	w.Enqueue("second", func(context.Context) error {
		order <- "second"
		return nil
	})

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("job order: got %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("job %q never ran", want)
		}
	}
}

func TestWriterQueueRetriesFailedWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWriterQueue(nil, 4)
	w.Start(ctx)

	var attempts atomic.Int32
	done := make(chan struct{})
	w.Enqueue("flaky upsert", func(context.Context) error {
		if attempts.Add(1) < 2 {
			return errors.New("database is locked")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("write was not retried to success")
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts: got %d, want 2", got)
	}
}

func TestWriterQueueAbandonsAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWriterQueue(nil, 4)
	w.Start(ctx)

	var attempts atomic.Int32
	w.Enqueue("broken upsert", func(context.Context) error {
		attempts.Add(1)
		return errors.New("disk io error")
	})

	// One initial try plus two retries, then the job is dropped and the
	// queue moves on.
	deadline := time.After(3 * time.Second)
	for attempts.Load() < writeAttempts {
		select {
		case <-deadline:
			t.Fatalf("attempts: got %d, want %d", attempts.Load(), writeAttempts)
		case <-time.After(10 * time.Millisecond):
		}
	}

	proceeded := make(chan struct{})
	w.Enqueue("next job", func(context.Context) error {
		close(proceeded)
		return nil
	})
	select {
	case <-proceeded:
	case <-time.After(2 * time.Second):
		t.Fatal("queue stalled after an abandoned write")
	}
	if got := attempts.Load(); got != writeAttempts {
		t.Fatalf("attempts after abandonment: got %d, want %d", got, writeAttempts)
	}
}
