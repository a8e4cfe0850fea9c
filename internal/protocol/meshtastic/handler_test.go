package meshtastic

import (
	"context"
	"errors"
	"testing"
	"time"

	"meshbridge/internal/protocol"
)

func (m *memStream) outputBytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]byte(nil), m.output.Bytes()...)
}

func TestHandlerReadyGating(t *testing.T) {
	codec, err := NewTextCodec()
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	readyPayload := []byte(`{"type":"ready","own_num":9}`)
	frame, err := encodeFrame(readyPayload)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	stream := newMemStream(frame)

	h := New("meshtastic-serial", stream, codec, nil)

	if err := h.Send(context.Background(), protocol.SendRequest{Text: "early"}); !errors.Is(err, protocol.ErrNotReady) {
		t.Fatalf("expected ErrNotReady before connect, got %v", err)
	}

	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = h.Disconnect() }()

	// The init handshake goes out immediately on connect.
	if len(stream.outputBytes()) == 0 {
		t.Fatal("want-config frame not written")
	}

	select {
	case ev := <-h.Events():
		if ev.Kind != protocol.EventReady || ev.OwnNum != 9 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no ready event")
	}

	before := len(stream.outputBytes())
	if err := h.Send(context.Background(), protocol.SendRequest{Text: "hello", ChannelIndex: 0}); err != nil {
		t.Fatalf("send after ready: %v", err)
	}
	if len(stream.outputBytes()) <= before {
		t.Fatal("send wrote nothing to the stream")
	}
}

func TestHandlerConnectIdempotent(t *testing.T) {
	codec, _ := NewTextCodec()
	stream := newMemStream(nil)
	h := New("meshtastic-serial", stream, codec, nil)

	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if err := h.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := h.Disconnect(); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
}
