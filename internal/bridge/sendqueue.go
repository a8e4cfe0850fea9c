package bridge

import (
	"context"
	"sync"
	"time"

	"meshbridge/internal/protocol"
)

const (
	defaultQueueCapacity   = 32
	defaultQueueExpiry     = 5 * time.Minute
	defaultQueueDrainDelay = 500 * time.Millisecond
)

// QueuedSend is one outbound text buffered while its endpoint was not
// ready. Expired entries are dropped during drain, never retried.
type QueuedSend struct {
	Text         string
	ChannelIndex int
	To           uint32
	EnqueuedAt   time.Time
}

// SendQueue is a bounded per-endpoint FIFO. Overflow drops the oldest
// entry.
type SendQueue struct {
	mu      sync.Mutex
	entries []QueuedSend
	cap     int
	expiry  time.Duration
	delay   time.Duration
}

func NewSendQueue(capacity int, expiry, drainDelay time.Duration) *SendQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	if expiry <= 0 {
		expiry = defaultQueueExpiry
	}
	if drainDelay < 0 {
		drainDelay = defaultQueueDrainDelay
	}

	return &SendQueue{cap: capacity, expiry: expiry, delay: drainDelay}
}

func (q *SendQueue) Push(entry QueuedSend) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now()
	}
	q.entries = append(q.entries, entry)
	if len(q.entries) > q.cap {
		q.entries = q.entries[1:]
	}
}

func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

// take removes and returns all pending entries in enqueue order.
func (q *SendQueue) take() []QueuedSend {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.entries
	q.entries = nil

	return entries
}

// Clear discards all pending entries, used when the endpoint is removed.
func (q *SendQueue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
}

// Drain replays pending entries in enqueue order with a small delay
// between sends so the freshly connected endpoint is not saturated.
// Entries older than the expiry are skipped silently. A failed entry does
// not abort the rest; each entry is attempted exactly once. Returns how
// many entries were actually sent.
func (q *SendQueue) Drain(ctx context.Context, send func(ctx context.Context, req protocol.SendRequest) error, onError func(QueuedSend, error)) int {
	entries := q.take()
	sent := 0

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return sent
		}
		if time.Since(entry.EnqueuedAt) > q.expiry {
			continue
		}
		if i > 0 && q.delay > 0 {
			select {
			case <-ctx.Done():
				return sent
			case <-time.After(q.delay):
			}
		}

		err := send(ctx, protocol.SendRequest{
			Text:         entry.Text,
			ChannelIndex: entry.ChannelIndex,
			To:           entry.To,
		})
		if err != nil {
			if onError != nil {
				onError(entry, err)
			}
			continue
		}
		sent++
	}

	return sent
}
