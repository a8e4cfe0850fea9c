package bridge

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"meshbridge/internal/protocol"
)

// Registry is the single authoritative map of live endpoints.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]*Endpoint)}
}

// Register creates an endpoint record in the connecting state. If another
// live endpoint already uses the same transport path, the existing id is
// returned together with ErrDuplicatePath and nothing is added.
func (r *Registry) Register(family, path, name string, handler protocol.Handler) (*Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ep := range r.endpoints {
		if ep.Path == path {
			return ep, fmt.Errorf("register %q: %w", path, protocol.ErrDuplicatePath)
		}
	}

	ep := &Endpoint{
		ID:      uuid.NewString(),
		Family:  family,
		Path:    path,
		Name:    name,
		Handler: handler,
		state:   EndpointStateConnecting,
	}
	r.endpoints[ep.ID] = ep

	return ep, nil
}

func (r *Registry) Get(id string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[id]

	return ep, ok
}

// List returns a snapshot of live endpoints in unspecified order.
func (r *Registry) List() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}

	return out
}

// Remove deletes the endpoint record. The caller (forwarding engine) is
// responsible for the removal side effects: dropping queued sends and the
// own-identity marker tied to the endpoint.
func (r *Registry) Remove(id string) (*Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[id]
	if !ok {
		return nil, false
	}
	delete(r.endpoints, id)

	return ep, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.endpoints)
}
