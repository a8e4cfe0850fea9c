package app

import (
	"context"

	"meshbridge/internal/config"
	"meshbridge/internal/dashboard"
	"meshbridge/internal/protocol"
)

// The runtime is the dashboard gateway's control surface.
var _ dashboard.Controller = (*Runtime)(nil)

func (r *Runtime) Endpoints() []dashboard.EndpointSummary {
	endpoints := r.registry.List()
	out := make([]dashboard.EndpointSummary, 0, len(endpoints))
	for _, ep := range endpoints {
		c := ep.Counters()
		out = append(out, dashboard.EndpointSummary{
			ID:       ep.ID,
			Family:   ep.Family,
			Path:     ep.Path,
			Name:     ep.Name,
			State:    string(ep.State()),
			OwnNum:   ep.OwnNum(),
			Received: c.Received,
			Sent:     c.Sent,
			Errors:   c.Errors,
			Queued:   r.engine.QueueLen(ep.ID),
		})
	}

	return out
}

func (r *Runtime) ConnectEndpoint(ctx context.Context, epCfg config.EndpointConfig) (string, error) {
	if err := epCfg.Validate(); err != nil {
		return "", err
	}
	handler, err := newHandlerForEndpoint(epCfg, r.logManager.Logger("protocol."+string(epCfg.Family)))
	if err != nil {
		return "", err
	}
	ep, err := r.engine.AddEndpoint(ctx, handler, epCfg.Name)
	if err != nil {
		return "", err
	}

	return ep.ID, nil
}

func (r *Runtime) DisconnectEndpoint(id string) error {
	return r.engine.RemoveEndpoint(id)
}

func (r *Runtime) Send(ctx context.Context, endpointID string, channelIndex int, text string) error {
	return r.engine.SendText(ctx, endpointID, channelIndex, protocol.Broadcast, text)
}
