// Package reticulum adapts a Reticulum Network Stack sidecar process to
// the protocol handler contract. The sidecar speaks newline-delimited
// JSON on stdin/stdout: inbound types are init, message, send_success,
// send_failed, link_established, announce_sent and pong; outbound
// commands are send, announce, ping and shutdown.
package reticulum

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"meshbridge/internal/protocol"
)

const (
	Family = "reticulum"

	eventBufferSize = 64
	announcePeriod  = 10 * time.Minute
	destinationName = "meshbridge.messages"
)

type sidecarMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type sidecarCommand struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type initData struct {
	Identity struct {
		Hash string `json:"hash"`
		Name string `json:"name"`
	} `json:"identity"`
	Destination struct {
		Hash string `json:"hash"`
		Name string `json:"name"`
	} `json:"destination"`
}

type messageData struct {
	FromHash string   `json:"from_hash"`
	ToHash   string   `json:"to_hash"`
	Text     string   `json:"text"`
	RSSI     *int     `json:"rssi"`
	SNR      *float64 `json:"snr"`
}

type linkData struct {
	DestinationHash string `json:"destination_hash"`
}

type sendData struct {
	DestinationHash string `json:"destination_hash"`
	Text            string `json:"text"`
}

// Handler runs and supervises one RNS sidecar process. Reticulum has no
// numeric channel table; the bridge models the sidecar's destination as
// channel 0 whose secret material is the destination hash.
type Handler struct {
	command string
	logger  *slog.Logger

	events chan protocol.Event
	ready  atomic.Bool

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	cancel    context.CancelFunc
	connected bool
	peers     map[string]struct{}
	wg        sync.WaitGroup
}

// New creates a handler that will spawn the sidecar at command (the
// rns_bridge script path).
func New(command string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default().With("component", "protocol.reticulum")
	}

	return &Handler{
		command: command,
		logger:  logger,
		events:  make(chan protocol.Event, eventBufferSize),
		peers:   make(map[string]struct{}),
	}
}

func (h *Handler) Family() string { return Family }

func (h *Handler) Path() string { return h.command }

func (h *Handler) Events() <-chan protocol.Event { return h.events }

// Connect spawns the sidecar. Ready is reported once the sidecar sends
// its init message with the local identity.
func (h *Handler) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connected {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(runCtx, h.command)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("sidecar stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("sidecar stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start sidecar %q: %w", h.command, err)
	}

	h.cmd = cmd
	h.stdin = stdin
	h.cancel = cancel
	h.connected = true

	h.wg.Add(1)
	go h.readLoop(runCtx, stdout)
	h.wg.Add(1)
	go h.announceLoop(runCtx)

	return nil
}

// Disconnect asks the sidecar to shut down and reaps the process. It is
// idempotent.
func (h *Handler) Disconnect() error {
	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return nil
	}
	h.connected = false
	h.ready.Store(false)
	stdin := h.stdin
	cancel := h.cancel
	cmd := h.cmd
	h.mu.Unlock()

	_ = writeCommand(stdin, sidecarCommand{Type: "shutdown"})
	_ = stdin.Close()
	cancel()

	if cmd != nil {
		// CommandContext kills the process on cancel; Wait only reaps.
		_ = cmd.Wait()
	}

	return nil
}

// Send forwards text to every Reticulum destination the sidecar has seen
// so far. Before init completes it fails with protocol.ErrNotReady.
func (h *Handler) Send(ctx context.Context, req protocol.SendRequest) error {
	if !h.ready.Load() {
		return protocol.ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return &protocol.TransportError{Path: h.command, Err: err}
	}

	h.mu.Lock()
	peers := make([]string, 0, len(h.peers))
	for peer := range h.peers {
		peers = append(peers, peer)
	}
	stdin := h.stdin
	h.mu.Unlock()

	if len(peers) == 0 {
		h.logger.Debug("no reticulum peers known, send skipped")
		return nil
	}

	for _, peer := range peers {
		cmd := sidecarCommand{Type: "send", Data: sendData{DestinationHash: peer, Text: req.Text}}
		if err := writeCommand(stdin, cmd); err != nil {
			return &protocol.TransportError{Path: h.command, Err: err}
		}
	}

	return nil
}

func (h *Handler) readLoop(ctx context.Context, stdout io.Reader) {
	defer h.wg.Done()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg sidecarMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			h.logger.Warn("invalid sidecar json", "error", err)
			continue
		}
		h.handleSidecarMessage(ctx, msg)
	}

	if ctx.Err() != nil || !h.isConnected() {
		return
	}
	err := scanner.Err()
	if err == nil {
		err = fmt.Errorf("sidecar closed its output")
	}
	h.emit(ctx, protocol.Event{Kind: protocol.EventFatal, Err: err})
}

func (h *Handler) handleSidecarMessage(ctx context.Context, msg sidecarMessage) {
	switch msg.Type {
	case "init":
		var data initData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.logger.Warn("invalid init payload", "error", err)
			return
		}

		ownNum := numFromHash(data.Identity.Hash)
		psk, _ := hex.DecodeString(data.Destination.Hash)
		h.ready.Store(true)

		h.emit(ctx, protocol.Event{
			Kind: protocol.EventChannels,
			Channels: []protocol.ChannelInfo{{
				Index: 0,
				Name:  destinationName,
				PSK:   psk,
				Role:  protocol.ChannelRolePrimary,
			}},
		})
		h.emit(ctx, protocol.Event{Kind: protocol.EventReady, OwnNum: ownNum})
		h.announce()

	case "message":
		var data messageData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.logger.Warn("invalid message payload", "error", err)
			return
		}

		h.rememberPeer(data.FromHash)

		ev := protocol.Event{
			Kind: protocol.EventMessage,
			Message: protocol.Message{
				ID:           messageID(data.FromHash, data.Text),
				From:         numFromHash(data.FromHash),
				To:           protocol.Broadcast,
				ChannelIndex: 0,
				Text:         data.Text,
				ReceivedAt:   time.Now(),
			},
		}
		if data.RSSI != nil {
			ev.Message.RxRSSI = *data.RSSI
		}
		if data.SNR != nil {
			ev.Message.RxSNR = *data.SNR
		}
		h.emit(ctx, ev)

	case "link_established":
		var data linkData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		h.rememberPeer(data.DestinationHash)

	case "send_failed":
		h.logger.Warn("sidecar send failed")

	case "send_success", "announce_sent", "pong":
		// Acknowledgements only.

	default:
		h.logger.Debug("unknown sidecar message", "type", msg.Type)
	}
}

// announceLoop periodically announces our destination so other Reticulum
// nodes can discover the bridge.
func (h *Handler) announceLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(announcePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.announce()
		}
	}
}

func (h *Handler) announce() {
	h.mu.Lock()
	stdin := h.stdin
	connected := h.connected
	h.mu.Unlock()
	if !connected {
		return
	}
	if err := writeCommand(stdin, sidecarCommand{Type: "announce"}); err != nil {
		h.logger.Warn("announce failed", "error", err)
	}
}

func (h *Handler) rememberPeer(hash string) {
	if hash == "" || hash == "unknown" {
		return
	}
	h.mu.Lock()
	h.peers[hash] = struct{}{}
	h.mu.Unlock()
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

func writeCommand(w io.Writer, cmd sidecarCommand) error {
	if w == nil {
		return fmt.Errorf("sidecar stdin is closed")
	}
	raw, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode sidecar command: %w", err)
	}
	raw = append(raw, '\n')
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write sidecar command: %w", err)
	}

	return nil
}

// numFromHash folds a destination hash into the numeric address space the
// bridge uses for sender identity.
func numFromHash(hash string) uint32 {
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) < 4 {
		f := fnv.New32a()
		_, _ = f.Write([]byte(hash))
		return f.Sum32()
	}

	return binary.BigEndian.Uint32(raw[:4])
}

// messageID derives a dedup identifier. The sidecar does not expose packet
// sequence numbers, so the sender hash plus payload digest stands in.
func messageID(fromHash, text string) string {
	f := fnv.New64a()
	_, _ = f.Write([]byte(text))

	return fmt.Sprintf("rns-%08x:%016x", numFromHash(fromHash), f.Sum64())
}

var _ protocol.Handler = (*Handler)(nil)
