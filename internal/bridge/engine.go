package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"meshbridge/internal/bus"
	"meshbridge/internal/events"
	"meshbridge/internal/protocol"
)

const (
	defaultSendTimeout     = 10 * time.Second
	defaultPendingCapacity = 16
)

// CommandSource identifies who issued an in-band command and where the
// reply must go.
type CommandSource struct {
	EndpointID   string
	Sender       uint32
	ChannelIndex int
}

// CommandDispatcher is implemented by the commands package. Dispatch
// returns the reply text to deliver back to the source endpoint; an empty
// reply means silence.
type CommandDispatcher interface {
	IsCommand(text string) bool
	Dispatch(ctx context.Context, src CommandSource, text string) string
}

// Config tunes the forwarding engine.
type Config struct {
	Mode            MatchMode
	DedupCapacity   int
	QueueCapacity   int
	QueueExpiry     time.Duration
	QueueDrainDelay time.Duration
	SendTimeout     time.Duration
	PendingCapacity int
}

func (c *Config) fillDefaults() {
	if c.Mode == "" {
		c.Mode = MatchModeStrict
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	if c.PendingCapacity <= 0 {
		c.PendingCapacity = defaultPendingCapacity
	}
}

// pendingMessage is an inbound message held back in strict mode because
// the source endpoint's channel table has not arrived yet.
type pendingMessage struct {
	msg        protocol.Message
	bufferedAt time.Time
}

// Engine orchestrates forwarding: dedup, echo suppression, command
// routing and the per-destination fan-out with queue fallback.
type Engine struct {
	logger     *slog.Logger
	bus        bus.MessageBus
	registry   *Registry
	dedup      *Deduplicator
	dispatcher CommandDispatcher
	cfg        Config

	mu      sync.Mutex
	queues  map[string]*SendQueue
	pending map[string][]pendingMessage

	// runCtx bounds every event pump. Endpoints are attached from short
	// lived contexts (startup, control requests); pumps must not inherit
	// those.
	runCtx context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(logger *slog.Logger, b bus.MessageBus, registry *Registry, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default().With("component", "bridge")
	}
	cfg.fillDefaults()

	runCtx, stop := context.WithCancel(context.Background())

	return &Engine{
		logger:   logger,
		bus:      b,
		registry: registry,
		dedup:    NewDeduplicator(cfg.DedupCapacity),
		cfg:      cfg,
		queues:   make(map[string]*SendQueue),
		pending:  make(map[string][]pendingMessage),
		runCtx:   runCtx,
		stop:     stop,
	}
}

// SetDispatcher installs the command dispatcher. Must be called before the
// first endpoint is attached.
func (e *Engine) SetDispatcher(d CommandDispatcher) {
	e.dispatcher = d
}

func (e *Engine) Registry() *Registry { return e.registry }

// AddEndpoint registers and connects a new endpoint. On connect failure
// the registry entry is rolled back and a *protocol.ConnectionError is
// returned. On success the endpoint stays in the connecting state until
// its handler reports Ready. ctx bounds the connect attempt only; event
// pumping runs on the engine's own lifecycle.
func (e *Engine) AddEndpoint(ctx context.Context, handler protocol.Handler, name string) (*Endpoint, error) {
	ep, err := e.registry.Register(handler.Family(), handler.Path(), name, handler)
	if err != nil {
		return ep, err
	}

	e.publishStatus(ep, "")

	if err := handler.Connect(ctx); err != nil {
		e.registry.Remove(ep.ID)
		ep.setState(EndpointStateFailed)
		connErr := &protocol.ConnectionError{Family: handler.Family(), Path: handler.Path(), Err: err}
		e.publishStatus(ep, connErr.Error())

		return nil, connErr
	}

	e.wg.Add(1)
	go e.pumpEvents(e.runCtx, ep)

	e.logger.Info("endpoint connecting", "endpoint", ep.ID, "family", ep.Family, "path", ep.Path)

	return ep, nil
}

// RemoveEndpoint disconnects and forgets an endpoint. Pending queued sends
// for it are discarded and its own-identity marker stops suppressing
// forwards.
func (e *Engine) RemoveEndpoint(id string) error {
	ep, ok := e.registry.Remove(id)
	if !ok {
		return fmt.Errorf("unknown endpoint %q", id)
	}

	e.mu.Lock()
	if q, ok := e.queues[id]; ok {
		q.Clear()
	}
	delete(e.queues, id)
	delete(e.pending, id)
	e.mu.Unlock()

	if err := ep.Handler.Disconnect(); err != nil {
		e.logger.Warn("disconnect failed", "endpoint", id, "error", err)
	}
	ep.setState(EndpointStateDisconnected)
	e.publishStatus(ep, "")
	e.logger.Info("endpoint removed", "endpoint", id, "path", ep.Path)

	return nil
}

// Shutdown disconnects every endpoint and stops the event pumps.
// Individual disconnect failures are logged, never propagated.
func (e *Engine) Shutdown() {
	for _, ep := range e.registry.List() {
		if err := e.RemoveEndpoint(ep.ID); err != nil {
			e.logger.Warn("shutdown remove failed", "endpoint", ep.ID, "error", err)
		}
	}
	e.stop()
	e.wg.Wait()
}

// pumpEvents consumes one endpoint's event stream in arrival order. A
// panic while handling a single event is contained here so one malformed
// event cannot take the bridge down.
func (e *Engine) pumpEvents(ctx context.Context, ep *Endpoint) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ep.Handler.Events():
			if !ok {
				return
			}
			e.handleEventSafe(ctx, ep, ev)
		}
	}
}

func (e *Engine) handleEventSafe(ctx context.Context, ep *Endpoint, ev protocol.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic handling endpoint event", "endpoint", ep.ID, "panic", r)
		}
	}()
	e.handleEvent(ctx, ep, ev)
}

func (e *Engine) handleEvent(ctx context.Context, ep *Endpoint, ev protocol.Event) {
	switch ev.Kind {
	case protocol.EventReady:
		ep.setOwnNum(ev.OwnNum)
		ep.setState(EndpointStateConnected)
		e.publishStatus(ep, "")
		e.logger.Info("endpoint ready", "endpoint", ep.ID, "own_num", ev.OwnNum)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.drainQueue(ctx, ep)
		}()

	case protocol.EventChannels:
		ep.setChannels(ev.Channels)
		e.publishChannels(ep)
		e.replayPending(ctx, ep)

	case protocol.EventMessage:
		e.HandleInbound(ctx, ep, ev.Message)

	case protocol.EventNode:
		e.bus.Publish(events.TopicNodeInfo, events.NodeUpdate{
			EndpointID:   ep.ID,
			Num:          ev.Node.Num,
			LongName:     ev.Node.LongName,
			ShortName:    ev.Node.ShortName,
			BatteryLevel: ev.Node.BatteryLevel,
			HeardAt:      ev.Node.HeardAt,
		})

	case protocol.EventFatal:
		e.logger.Error("endpoint failed", "endpoint", ep.ID, "error", ev.Err)
		ep.setState(EndpointStateFailed)
		errText := ""
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		e.publishStatus(ep, errText)
		if err := e.RemoveEndpoint(ep.ID); err != nil {
			e.logger.Warn("remove failed endpoint", "endpoint", ep.ID, "error", err)
		}
	}
}

// HandleInbound runs the forwarding algorithm for one accepted message.
func (e *Engine) HandleInbound(ctx context.Context, src *Endpoint, msg protocol.Message) {
	if e.dedup.Seen(msg.ID) {
		e.logger.Debug("duplicate dropped", "endpoint", src.ID, "message", msg.ID)
		return
	}

	src.addReceived()

	// An echo of something this bridge sent: observers still see it, the
	// mesh does not get it again.
	if e.isOwnIdentity(msg.From) {
		e.publishMessage(src, msg, false, true)
		return
	}

	if e.dispatcher != nil && e.dispatcher.IsCommand(msg.Text) {
		e.publishMessage(src, msg, false, false)
		e.runCommand(ctx, src, msg)
		return
	}

	e.publishMessage(src, msg, false, false)

	srcChannel, ok := src.ChannelByIndex(msg.ChannelIndex)
	if !ok {
		switch e.cfg.Mode {
		case MatchModePassthrough:
			srcChannel = Channel{Index: msg.ChannelIndex}
		default:
			// Strict mode: hold the message until the channel table
			// arrives rather than losing it silently.
			e.bufferPending(src, msg)
			return
		}
	}

	e.fanOut(ctx, src, srcChannel, msg)
}

// fanOut forwards msg to every other live endpoint concurrently. Failure
// on one destination never blocks or aborts the others.
func (e *Engine) fanOut(ctx context.Context, src *Endpoint, srcChannel Channel, msg protocol.Message) {
	targets := make([]*Endpoint, 0)
	for _, ep := range e.registry.List() {
		if ep.ID != src.ID {
			targets = append(targets, ep)
		}
	}
	if len(targets) == 0 {
		return
	}

	var (
		wg                              sync.WaitGroup
		resMu                           sync.Mutex
		forwarded, queued, skipped, bad int
	)

	for _, target := range targets {
		wg.Add(1)
		go func(target *Endpoint) {
			defer wg.Done()
			outcome := e.forwardTo(ctx, target, srcChannel, msg)
			resMu.Lock()
			switch outcome {
			case forwardSent:
				forwarded++
			case forwardQueued:
				queued++
			case forwardNoRoute:
				skipped++
			case forwardFailed:
				bad++
			}
			resMu.Unlock()
		}(target)
	}
	wg.Wait()

	// Aggregate outcome is advisory only; success was already accounted
	// per destination.
	e.logger.Debug("fan-out complete",
		"endpoint", src.ID,
		"message", msg.ID,
		"forwarded", forwarded,
		"queued", queued,
		"no_route", skipped,
		"errors", bad,
	)
}

type forwardOutcome int

const (
	forwardSent forwardOutcome = iota
	forwardQueued
	forwardNoRoute
	forwardFailed
)

func (e *Engine) forwardTo(ctx context.Context, target *Endpoint, srcChannel Channel, msg protocol.Message) forwardOutcome {
	var targetIndex int
	if e.cfg.Mode == MatchModePassthrough && len(target.Channels()) == 0 {
		targetIndex = srcChannel.Index
	} else {
		index, ok := MatchChannel(srcChannel, target)
		if !ok {
			if e.cfg.Mode == MatchModePassthrough {
				targetIndex = srcChannel.Index
			} else {
				e.logger.Debug("no matching channel", "target", target.ID, "message", msg.ID)
				return forwardNoRoute
			}
		} else {
			targetIndex = index
		}
	}

	req := protocol.SendRequest{
		Text:         msg.Text,
		ChannelIndex: targetIndex,
		To:           protocol.Broadcast,
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()

	err := target.Handler.Send(sendCtx, req)
	switch {
	case err == nil:
		target.addSent()
		e.publishMessage(target, protocol.Message{
			ID:           msg.ID,
			From:         msg.From,
			To:           protocol.Broadcast,
			ChannelIndex: targetIndex,
			Text:         msg.Text,
			ReceivedAt:   time.Now(),
		}, true, false)

		return forwardSent

	case errors.Is(err, protocol.ErrNotReady):
		e.queueFor(target.ID).Push(QueuedSend{
			Text:         msg.Text,
			ChannelIndex: targetIndex,
			To:           protocol.Broadcast,
		})
		e.logger.Debug("target not ready, queued", "target", target.ID, "message", msg.ID)

		return forwardQueued

	default:
		target.addError()
		e.logger.Warn("forward failed",
			"target", target.ID,
			"channel", targetIndex,
			"message", msg.ID,
			"error", err,
		)

		return forwardFailed
	}
}

// SendText delivers arbitrary text on one endpoint/channel with the same
// queue fallback as forwarding. Used for command replies and the control
// channel, never for fan-out.
func (e *Engine) SendText(ctx context.Context, endpointID string, channelIndex int, to uint32, text string) error {
	ep, ok := e.registry.Get(endpointID)
	if !ok {
		return fmt.Errorf("unknown endpoint %q", endpointID)
	}

	req := protocol.SendRequest{Text: text, ChannelIndex: channelIndex, To: to}
	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()

	err := ep.Handler.Send(sendCtx, req)
	switch {
	case err == nil:
		ep.addSent()
		e.publishMessage(ep, protocol.Message{
			ID:           fmt.Sprintf("out-%d", time.Now().UnixNano()),
			From:         ep.OwnNum(),
			To:           to,
			ChannelIndex: channelIndex,
			Text:         text,
			ReceivedAt:   time.Now(),
		}, true, false)

		return nil

	case errors.Is(err, protocol.ErrNotReady):
		e.queueFor(endpointID).Push(QueuedSend{Text: text, ChannelIndex: channelIndex, To: to})

		return nil

	default:
		ep.addError()

		return err
	}
}

func (e *Engine) runCommand(ctx context.Context, src *Endpoint, msg protocol.Message) {
	word := strings.Fields(strings.TrimSpace(msg.Text))
	command := ""
	if len(word) > 0 {
		command = word[0]
	}

	reply := e.dispatcher.Dispatch(ctx, CommandSource{
		EndpointID:   src.ID,
		Sender:       msg.From,
		ChannelIndex: msg.ChannelIndex,
	}, msg.Text)

	outcome := "silent"
	if reply != "" {
		outcome = "replied"
		if err := e.SendText(ctx, src.ID, msg.ChannelIndex, protocol.Broadcast, reply); err != nil {
			outcome = "reply failed"
			e.logger.Warn("command reply failed", "endpoint", src.ID, "error", err)
		}
	}

	e.bus.Publish(events.TopicCommandStatus, events.CommandStatus{
		EndpointID: src.ID,
		Sender:     msg.From,
		Command:    command,
		Outcome:    outcome,
		Timestamp:  time.Now(),
	})
}

func (e *Engine) isOwnIdentity(num uint32) bool {
	if num == 0 {
		return false
	}
	for _, ep := range e.registry.List() {
		if ep.OwnNum() == num {
			return true
		}
	}

	return false
}

func (e *Engine) queueFor(endpointID string) *SendQueue {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[endpointID]
	if !ok {
		q = NewSendQueue(e.cfg.QueueCapacity, e.cfg.QueueExpiry, e.cfg.QueueDrainDelay)
		e.queues[endpointID] = q
	}

	return q
}

// QueueLen reports how many sends are waiting for the endpoint to become
// ready.
func (e *Engine) QueueLen(endpointID string) int {
	e.mu.Lock()
	q, ok := e.queues[endpointID]
	e.mu.Unlock()
	if !ok {
		return 0
	}

	return q.Len()
}

func (e *Engine) drainQueue(ctx context.Context, ep *Endpoint) {
	q := e.queueFor(ep.ID)
	if q.Len() == 0 {
		return
	}

	sent := q.Drain(ctx, func(ctx context.Context, req protocol.SendRequest) error {
		sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
		defer cancel()

		return ep.Handler.Send(sendCtx, req)
	}, func(entry QueuedSend, err error) {
		ep.addError()
		e.logger.Warn("queued send failed", "endpoint", ep.ID, "channel", entry.ChannelIndex, "error", err)
	})

	for i := 0; i < sent; i++ {
		ep.addSent()
	}
	if sent > 0 {
		e.logger.Info("send queue drained", "endpoint", ep.ID, "sent", sent)
	}
}

func (e *Engine) bufferPending(src *Endpoint, msg protocol.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := e.pending[src.ID]
	buf = append(buf, pendingMessage{msg: msg, bufferedAt: time.Now()})
	if len(buf) > e.cfg.PendingCapacity {
		buf = buf[1:]
	}
	e.pending[src.ID] = buf
	e.logger.Debug("message held until channel config arrives", "endpoint", src.ID, "message", msg.ID)
}

// replayPending re-runs messages buffered before the channel table was
// known. Entries older than the queue expiry are dropped.
func (e *Engine) replayPending(ctx context.Context, src *Endpoint) {
	e.mu.Lock()
	buf := e.pending[src.ID]
	delete(e.pending, src.ID)
	e.mu.Unlock()

	expiry := e.cfg.QueueExpiry
	if expiry <= 0 {
		expiry = defaultQueueExpiry
	}

	for _, entry := range buf {
		if time.Since(entry.bufferedAt) > expiry {
			continue
		}
		srcChannel, ok := src.ChannelByIndex(entry.msg.ChannelIndex)
		if !ok {
			continue
		}
		e.fanOut(ctx, src, srcChannel, entry.msg)
	}
}

func (e *Engine) publishStatus(ep *Endpoint, errText string) {
	e.bus.Publish(events.TopicEndpointStatus, events.EndpointStatus{
		EndpointID: ep.ID,
		Family:     ep.Family,
		Path:       ep.Path,
		Name:       ep.Name,
		State:      string(ep.State()),
		Err:        errText,
		Timestamp:  time.Now(),
	})
}

func (e *Engine) publishChannels(ep *Endpoint) {
	items := make([]events.ChannelSummary, 0)
	for _, ch := range ep.Channels() {
		items = append(items, events.ChannelSummary{
			Index: ch.Index,
			Name:  ch.Name,
			Role:  string(ch.Role),
		})
	}
	e.bus.Publish(events.TopicChannels, events.ChannelList{EndpointID: ep.ID, Items: items})
}

func (e *Engine) publishMessage(ep *Endpoint, msg protocol.Message, outbound, echo bool) {
	ts := msg.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	e.bus.Publish(events.TopicMessage, events.MessageEvent{
		EndpointID:   ep.ID,
		MessageID:    msg.ID,
		From:         msg.From,
		To:           msg.To,
		ChannelIndex: msg.ChannelIndex,
		Text:         msg.Text,
		Outbound:     outbound,
		Echo:         echo,
		RxRSSI:       msg.RxRSSI,
		RxSNR:        msg.RxSNR,
		Timestamp:    ts,
	})
}
