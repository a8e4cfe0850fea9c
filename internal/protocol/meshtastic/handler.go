package meshtastic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"meshbridge/internal/protocol"
	"meshbridge/internal/transport"
)

const eventBufferSize = 64

// Codec translates between raw frame payloads and normalized protocol
// events. The production protobuf wire codec lives outside the bridge;
// everything here is agnostic to the payload encoding.
type Codec interface {
	// EncodeWantConfig builds the initialization handshake payload that
	// makes the device stream its configuration.
	EncodeWantConfig() ([]byte, error)
	// EncodeText builds a text send payload.
	EncodeText(req protocol.SendRequest) ([]byte, error)
	// Decode turns one inbound payload into an event. ok is false for
	// payloads the bridge does not care about.
	Decode(payload []byte) (ev protocol.Event, ok bool, err error)
}

// Handler adapts a Meshtastic device (serial or TCP) to the protocol
// handler contract.
type Handler struct {
	family string
	stream transport.Stream
	codec  Codec
	logger *slog.Logger

	events chan protocol.Event
	ready  atomic.Bool

	mu        sync.Mutex
	cancel    context.CancelFunc
	connected bool
	wg        sync.WaitGroup
}

func New(family string, stream transport.Stream, codec Codec, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default().With("component", "protocol.meshtastic")
	}

	return &Handler{
		family: family,
		stream: stream,
		codec:  codec,
		logger: logger,
		events: make(chan protocol.Event, eventBufferSize),
	}
}

func (h *Handler) Family() string { return h.family }

func (h *Handler) Path() string { return h.stream.Path() }

func (h *Handler) Events() <-chan protocol.Event { return h.events }

// Connect opens the stream and starts the initialization handshake. The
// handler reports Ready through the event stream once the device finished
// sending its configuration.
func (h *Handler) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connected {
		return nil
	}

	if err := h.stream.Connect(ctx); err != nil {
		return err
	}

	wantConfig, err := h.codec.EncodeWantConfig()
	if err != nil {
		_ = h.stream.Close()
		return fmt.Errorf("encode want-config: %w", err)
	}
	frame, err := encodeFrame(wantConfig)
	if err != nil {
		_ = h.stream.Close()
		return err
	}
	if err := h.stream.Write(ctx, frame); err != nil {
		_ = h.stream.Close()
		return fmt.Errorf("send want-config: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.connected = true
	h.wg.Add(1)
	go h.readLoop(readCtx)

	return nil
}

// Disconnect is idempotent.
func (h *Handler) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connected {
		return nil
	}
	h.connected = false
	h.ready.Store(false)
	h.cancel()

	return h.stream.Close()
}

// Send transmits one text message. It fails with protocol.ErrNotReady
// until the device completed initialization.
func (h *Handler) Send(ctx context.Context, req protocol.SendRequest) error {
	if !h.ready.Load() {
		return protocol.ErrNotReady
	}

	payload, err := h.codec.EncodeText(req)
	if err != nil {
		return &protocol.TransportError{Path: h.Path(), Err: fmt.Errorf("encode text: %w", err)}
	}
	frame, err := encodeFrame(payload)
	if err != nil {
		return &protocol.TransportError{Path: h.Path(), Err: err}
	}
	if err := h.stream.Write(ctx, frame); err != nil {
		return &protocol.TransportError{Path: h.Path(), Err: err}
	}

	return nil
}

func (h *Handler) readLoop(ctx context.Context) {
	defer h.wg.Done()
	for {
		payload, err := readFrame(ctx, h.stream)
		if err != nil {
			if ctx.Err() != nil || !h.isConnected() {
				return
			}
			h.emit(ctx, protocol.Event{Kind: protocol.EventFatal, Err: err})
			return
		}

		ev, ok, err := h.codec.Decode(payload)
		if err != nil {
			h.logger.Warn("decode frame failed", "path", h.Path(), "error", err)
			continue
		}
		if !ok {
			continue
		}
		if ev.Kind == protocol.EventReady {
			h.ready.Store(true)
		}
		h.emit(ctx, ev)
	}
}

func (h *Handler) emit(ctx context.Context, ev protocol.Event) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}

func (h *Handler) isConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.connected
}

var _ protocol.Handler = (*Handler)(nil)
