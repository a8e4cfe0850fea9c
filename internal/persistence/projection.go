package persistence

import (
	"context"
	"log/slog"
	"time"

	"meshbridge/internal/bus"
	"meshbridge/internal/domain"
	"meshbridge/internal/events"
)

// NodeProjection mirrors node updates from the bus into sqlite so the
// node inventory survives restarts. Writes go through the writer queue;
// a slow disk never blocks the event path.
type NodeProjection struct {
	logger *slog.Logger
	repo   *NodeRepo
	writer *WriterQueue
}

func NewNodeProjection(logger *slog.Logger, repo *NodeRepo, writer *WriterQueue) *NodeProjection {
	return &NodeProjection{logger: logger, repo: repo, writer: writer}
}

func (p *NodeProjection) Start(ctx context.Context, b bus.MessageBus) {
	sub := b.Subscribe(events.TopicNodeInfo)

	go func() {
		defer b.Unsubscribe(sub, events.TopicNodeInfo)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				update, ok := msg.(events.NodeUpdate)
				if !ok {
					continue
				}
				p.persist(update)
			}
		}
	}()
}

func (p *NodeProjection) persist(update events.NodeUpdate) {
	node := domain.Node{
		Num:          update.Num,
		LongName:     update.LongName,
		ShortName:    update.ShortName,
		BatteryLevel: update.BatteryLevel,
		EndpointID:   update.EndpointID,
		LastHeardAt:  update.HeardAt,
		UpdatedAt:    time.Now(),
	}
	p.writer.Enqueue("upsert node", func(ctx context.Context) error {
		return p.repo.Upsert(ctx, node)
	})
}
