package bus

import (
	"log/slog"

	"github.com/cskr/pubsub"
)

const defaultBufferSize = 128

type Subscription chan any

// MessageBus fans typed events out to any number of observers. Publishers
// have no knowledge of how many subscribers exist, or whether any do.
type MessageBus interface {
	Publish(topic string, msg any)
	Subscribe(topics ...string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger
}

func New(logger *slog.Logger) *PubSubBus {
	if logger == nil {
		logger = slog.Default()
	}

	return &PubSubBus{
		ps:     pubsub.New(defaultBufferSize),
		logger: logger,
	}
}

func (b *PubSubBus) Publish(topic string, msg any) {
	b.ps.Pub(msg, topic)
}

func (b *PubSubBus) Subscribe(topics ...string) Subscription {
	return b.ps.Sub(topics...)
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		return
	}
	b.ps.Unsub(ch, topics...)
}

func (b *PubSubBus) Close() {
	b.ps.Shutdown()
}
