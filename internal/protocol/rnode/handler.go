// Package rnode adapts an RNode LoRa transceiver in raw text mode. RNode
// speaks KISS framing over serial; every data frame payload is treated as
// one UTF-8 text message on a single implicit channel.
package rnode

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"meshbridge/internal/protocol"
	"meshbridge/internal/transport"
)

const (
	Family = "rnode"

	eventBufferSize = 64
	maxFrameSize    = 1024

	kissFEND  = 0xC0
	kissFESC  = 0xDB
	kissTFEND = 0xDC
	kissTFESC = 0xDD

	kissCmdData = 0x00
)

const channelName = "rnode.raw"

// Handler drives one RNode over a serial stream. The radio has no
// configuration handshake, so the endpoint is ready as soon as the port
// opens; the single channel's identity is derived from the device path so
// two rnode endpoints only bridge to each other deliberately.
type Handler struct {
	stream transport.Stream
	logger *slog.Logger

	events chan protocol.Event
	ready  atomic.Bool
	ownNum uint32

	mu        sync.Mutex
	cancel    context.CancelFunc
	connected bool
	wg        sync.WaitGroup
}

func New(stream transport.Stream, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default().With("component", "protocol.rnode")
	}

	f := fnv.New32a()
	_, _ = f.Write([]byte(stream.Path()))

	return &Handler{
		stream: stream,
		logger: logger,
		events: make(chan protocol.Event, eventBufferSize),
		ownNum: f.Sum32(),
	}
}

func (h *Handler) Family() string { return Family }

func (h *Handler) Path() string { return h.stream.Path() }

func (h *Handler) Events() <-chan protocol.Event { return h.events }

// Connect opens the serial port. The channel table and ready event are
// emitted immediately since RNode needs no device handshake.
func (h *Handler) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connected {
		return nil
	}

	if err := h.stream.Connect(ctx); err != nil {
		return err
	}

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.connected = true
	h.ready.Store(true)

	h.wg.Add(1)
	go h.readLoop(readCtx)

	h.emit(readCtx, protocol.Event{
		Kind: protocol.EventChannels,
		Channels: []protocol.ChannelInfo{{
			Index: 0,
			Name:  channelName,
			PSK:   []byte(h.stream.Path()),
			Role:  protocol.ChannelRolePrimary,
		}},
	})
	h.emit(readCtx, protocol.Event{Kind: protocol.EventReady, OwnNum: h.ownNum})

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

func (h *Handler) Send(ctx context.Context, req protocol.SendRequest) error {
	if !h.ready.Load() {
		return protocol.ErrNotReady
	}
	if len(req.Text) > maxFrameSize {
		return &protocol.TransportError{Path: h.Path(), Err: fmt.Errorf("payload too large: %d", len(req.Text))}
	}

	frame := kissEscape([]byte(req.Text))
	if err := h.stream.Write(ctx, frame); err != nil {
		return &protocol.TransportError{Path: h.Path(), Err: err}
	}

	return nil
}

func (h *Handler) readLoop(ctx context.Context) {
	defer h.wg.Done()
	for {
		payload, err := readKISSFrame(ctx, h.stream)
		if err != nil {
			if ctx.Err() != nil || !h.isConnected() {
				return
			}
			h.emit(ctx, protocol.Event{Kind: protocol.EventFatal, Err: err})
			return
		}
		if len(payload) == 0 {
			continue
		}

		h.emit(ctx, protocol.Event{
			Kind: protocol.EventMessage,
			Message: protocol.Message{
				ID:           h.frameID(payload),
				From:         senderNum(payload),
				To:           protocol.Broadcast,
				ChannelIndex: 0,
				Text:         string(payload),
				ReceivedAt:   time.Now(),
			},
		})
	}
}

// frameID hashes the payload so the same frame heard on two rnode
// endpoints collapses in the deduplicator.
func (h *Handler) frameID(payload []byte) string {
	f := fnv.New64a()
	_, _ = f.Write(payload)

	return fmt.Sprintf("rnode-%016x", f.Sum64())
}

// senderNum folds the payload into a pseudo sender address. Raw KISS
// frames carry no source header, so all traffic from one rnode path shares
// an identity derived from its content prefix.
func senderNum(payload []byte) uint32 {
	f := fnv.New32a()
	if len(payload) > 16 {
		payload = payload[:16]
	}
	_, _ = f.Write(payload)

	return f.Sum32()
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

// kissEscape wraps payload in a KISS data frame with FESC escaping.
func kissEscape(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+4)
	frame = append(frame, kissFEND, kissCmdData)
	for _, b := range payload {
		switch b {
		case kissFEND:
			frame = append(frame, kissFESC, kissTFEND)
		case kissFESC:
			frame = append(frame, kissFESC, kissTFESC)
		default:
			frame = append(frame, b)
		}
	}

	return append(frame, kissFEND)
}

// readKISSFrame reads byte-wise until a complete data frame arrives,
// unescaping FESC sequences. Non-data command frames are skipped.
func readKISSFrame(ctx context.Context, stream transport.Stream) ([]byte, error) {
	var (
		buf     bytes.Buffer
		one     [1]byte
		inFrame bool
		escaped bool
		cmdByte = -1
	)

	for {
		if err := stream.ReadFull(ctx, one[:]); err != nil {
			return nil, fmt.Errorf("read kiss byte: %w", err)
		}
		b := one[0]

		if !inFrame {
			if b == kissFEND {
				inFrame = true
			}
			continue
		}

		if b == kissFEND {
			if buf.Len() == 0 && cmdByte < 0 {
				// Back-to-back FENDs between frames.
				continue
			}
			if cmdByte != kissCmdData {
				buf.Reset()
				cmdByte = -1
				continue
			}
			if buf.Len() > maxFrameSize {
				return nil, fmt.Errorf("kiss frame too large: %d", buf.Len())
			}

			return buf.Bytes(), nil
		}

		if cmdByte < 0 {
			cmdByte = int(b)
			continue
		}

		if escaped {
			escaped = false
			switch b {
			case kissTFEND:
				buf.WriteByte(kissFEND)
			case kissTFESC:
				buf.WriteByte(kissFESC)
			default:
				buf.WriteByte(b)
			}
			continue
		}
		if b == kissFESC {
			escaped = true
			continue
		}
		buf.WriteByte(b)
	}
}

var _ protocol.Handler = (*Handler)(nil)
