package domain

import (
	"context"
	"sort"
	"sync"
	"time"

	"meshbridge/internal/bus"
	"meshbridge/internal/events"
)

// NodeStore keeps the latest node snapshots in memory. It feeds the
// #nodes command and the persistence projection.
type NodeStore struct {
	mu    sync.RWMutex
	nodes map[uint32]Node
}

func NewNodeStore() *NodeStore {
	return &NodeStore{nodes: make(map[uint32]Node)}
}

// Load seeds the store, typically from the persisted inventory at boot.
func (s *NodeStore) Load(nodes []Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, node := range nodes {
		s.nodes[node.Num] = node
	}
}

// Start consumes node updates from the bus until ctx is done.
func (s *NodeStore) Start(ctx context.Context, b bus.MessageBus) {
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
				s.Upsert(Node{
					Num:          update.Num,
					LongName:     update.LongName,
					ShortName:    update.ShortName,
					BatteryLevel: update.BatteryLevel,
					EndpointID:   update.EndpointID,
					LastHeardAt:  update.HeardAt,
				})
			}
		}
	}()
}

// Upsert merges a possibly sparse update into the stored snapshot.
func (s *NodeStore) Upsert(node Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.nodes[node.Num]
	if ok {
		if node.LongName == "" {
			node.LongName = existing.LongName
		}
		if node.ShortName == "" {
			node.ShortName = existing.ShortName
		}
		if node.BatteryLevel == 0 {
			node.BatteryLevel = existing.BatteryLevel
		}
		if node.LastHeardAt.IsZero() {
			node.LastHeardAt = existing.LastHeardAt
		}
	}
	if node.LastHeardAt.IsZero() {
		node.LastHeardAt = time.Now()
	}
	node.UpdatedAt = time.Now()
	s.nodes[node.Num] = node
}

func (s *NodeStore) Get(num uint32) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[num]

	return node, ok
}

func (s *NodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.nodes)
}

// Recent returns up to limit nodes ordered by most recently heard.
func (s *NodeStore) Recent(limit int) []Node {
	s.mu.RLock()
	out := make([]Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastHeardAt.After(out[j].LastHeardAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

// All returns every known node, unordered.
func (s *NodeStore) All() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node)
	}

	return out
}
