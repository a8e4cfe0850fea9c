// Package dashboard mirrors bridge bus events onto NATS subjects and
// exposes a small control surface for external dashboards and the
// bridgectl tool. The bridge core never depends on it: when the gateway
// is disabled or the broker is down, forwarding is unaffected.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"meshbridge/internal/bus"
	"meshbridge/internal/config"
	"meshbridge/internal/events"
)

const controlTimeout = 15 * time.Second

// EndpointSummary is the control-surface view of one endpoint.
type EndpointSummary struct {
	ID       string `json:"id"`
	Family   string `json:"family"`
	Path     string `json:"path"`
	Name     string `json:"name,omitempty"`
	State    string `json:"state"`
	OwnNum   uint32 `json:"own_num,omitempty"`
	Received uint64 `json:"received"`
	Sent     uint64 `json:"sent"`
	Errors   uint64 `json:"errors"`
	Queued   int    `json:"queued"`
}

// Controller is what the gateway needs from the running bridge.
type Controller interface {
	Endpoints() []EndpointSummary
	ConnectEndpoint(ctx context.Context, cfg config.EndpointConfig) (string, error)
	DisconnectEndpoint(id string) error
	Send(ctx context.Context, endpointID string, channelIndex int, text string) error
}

// ControlReply is the envelope for every control response.
type ControlReply struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendRequest is the payload of the control send subject.
type SendRequest struct {
	EndpointID   string `json:"endpoint_id"`
	ChannelIndex int    `json:"channel_index"`
	Text         string `json:"text"`
}

// DisconnectRequest is the payload of the control disconnect subject.
type DisconnectRequest struct {
	EndpointID string `json:"endpoint_id"`
}

type Gateway struct {
	logger *slog.Logger
	cfg    config.DashboardConfig
	bus    bus.MessageBus
	ctrl   Controller

	nc     *nats.Conn
	busSub bus.Subscription
	subs   []*nats.Subscription
	done   chan struct{}
}

func NewGateway(logger *slog.Logger, cfg config.DashboardConfig, b bus.MessageBus, ctrl Controller) *Gateway {
	if logger == nil {
		logger = slog.Default().With("component", "dashboard")
	}

	return &Gateway{
		logger: logger,
		cfg:    cfg,
		bus:    b,
		ctrl:   ctrl,
		done:   make(chan struct{}),
	}
}

func (g *Gateway) Start(ctx context.Context) error {
	nc, err := nats.Connect(g.cfg.NatsURL,
		nats.Name("meshbridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("connect nats %q: %w", g.cfg.NatsURL, err)
	}
	g.nc = nc

	if err := g.subscribeControl(); err != nil {
		nc.Close()
		return err
	}

	g.busSub = g.bus.Subscribe(events.AllTopics...)
	go g.mirrorLoop(ctx)

	g.logger.Info("dashboard gateway up", "url", g.cfg.NatsURL, "prefix", g.cfg.SubjectPrefix)

	return nil
}

func (g *Gateway) Stop() {
	close(g.done)
	if g.busSub != nil {
		g.bus.Unsubscribe(g.busSub)
	}
	for _, sub := range g.subs {
		_ = sub.Unsubscribe()
	}
	if g.nc != nil {
		g.nc.Close()
	}
}

// mirrorLoop republishes every bus event as JSON on the matching NATS
// subject. The event type determines the topic suffix.
func (g *Gateway) mirrorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case msg, ok := <-g.busSub:
			if !ok {
				return
			}
			topic := topicFor(msg)
			if topic == "" {
				continue
			}
			raw, err := json.Marshal(msg)
			if err != nil {
				g.logger.Warn("encode event failed", "topic", topic, "error", err)
				continue
			}
			subject := fmt.Sprintf("%s.events.%s", g.cfg.SubjectPrefix, topic)
			if err := g.nc.Publish(subject, raw); err != nil {
				g.logger.Warn("publish event failed", "subject", subject, "error", err)
			}
		}
	}
}

func topicFor(msg any) string {
	switch msg.(type) {
	case events.EndpointStatus:
		return events.TopicEndpointStatus
	case events.MessageEvent:
		return events.TopicMessage
	case events.ChannelList:
		return events.TopicChannels
	case events.NodeUpdate:
		return events.TopicNodeInfo
	case events.CommandStatus:
		return events.TopicCommandStatus
	default:
		return ""
	}
}

func (g *Gateway) subscribeControl() error {
	handlers := map[string]nats.MsgHandler{
		"endpoints":  g.handleEndpoints,
		"connect":    g.handleConnect,
		"disconnect": g.handleDisconnect,
		"send":       g.handleSend,
	}

	for name, handler := range handlers {
		subject := fmt.Sprintf("%s.control.%s", g.cfg.SubjectPrefix, name)
		sub, err := g.nc.Subscribe(subject, handler)
		if err != nil {
			return fmt.Errorf("subscribe %q: %w", subject, err)
		}
		g.subs = append(g.subs, sub)
	}

	return nil
}

func (g *Gateway) handleEndpoints(msg *nats.Msg) {
	g.replyData(msg, g.ctrl.Endpoints())
}

func (g *Gateway) handleConnect(msg *nats.Msg) {
	var epCfg config.EndpointConfig
	if err := json.Unmarshal(msg.Data, &epCfg); err != nil {
		g.replyError(msg, fmt.Errorf("decode endpoint config: %w", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	id, err := g.ctrl.ConnectEndpoint(ctx, epCfg)
	if err != nil {
		g.replyError(msg, err)
		return
	}
	g.replyData(msg, map[string]string{"endpoint_id": id})
}

func (g *Gateway) handleDisconnect(msg *nats.Msg) {
	var req DisconnectRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		g.replyError(msg, fmt.Errorf("decode disconnect request: %w", err))
		return
	}
	if err := g.ctrl.DisconnectEndpoint(req.EndpointID); err != nil {
		g.replyError(msg, err)
		return
	}
	g.replyData(msg, nil)
}

func (g *Gateway) handleSend(msg *nats.Msg) {
	var req SendRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		g.replyError(msg, fmt.Errorf("decode send request: %w", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	if err := g.ctrl.Send(ctx, req.EndpointID, req.ChannelIndex, req.Text); err != nil {
		g.replyError(msg, err)
		return
	}
	g.replyData(msg, nil)
}

func (g *Gateway) replyData(msg *nats.Msg, data any) {
	reply := ControlReply{OK: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			g.replyError(msg, err)
			return
		}
		reply.Data = raw
	}
	g.respond(msg, reply)
}

func (g *Gateway) replyError(msg *nats.Msg, err error) {
	g.respond(msg, ControlReply{OK: false, Error: err.Error()})
}

func (g *Gateway) respond(msg *nats.Msg, reply ControlReply) {
	if msg.Reply == "" {
		return
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		g.logger.Warn("encode control reply failed", "error", err)
		return
	}
	if err := msg.Respond(raw); err != nil {
		g.logger.Warn("control reply failed", "error", err)
	}
}
