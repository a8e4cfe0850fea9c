package reticulum

import (
	"context"
	"encoding/json"
	"testing"

	"meshbridge/internal/protocol"
)

func feed(t *testing.T, h *Handler, line string) {
	t.Helper()
	var msg sidecarMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		t.Fatalf("unmarshal sidecar line: %v", err)
	}
	h.handleSidecarMessage(context.Background(), msg)
}

func TestInitEmitsChannelsThenReady(t *testing.T) {
	h := New("/usr/bin/rns-bridge", nil)

	feed(t, h, `{"type":"init","data":{
		"identity":{"hash":"deadbeef00112233","name":"bridge"},
		"destination":{"hash":"cafebabe44556677","name":"meshbridge.messages"}}}`)

	channels := <-h.events
	if channels.Kind != protocol.EventChannels || len(channels.Channels) != 1 {
		t.Fatalf("expected channel table first, got %+v", channels)
	}
	ch := channels.Channels[0]
	if ch.Index != 0 || ch.Name != destinationName || len(ch.PSK) == 0 {
		t.Fatalf("unexpected channel: %+v", ch)
	}

	ready := <-h.events
	if ready.Kind != protocol.EventReady {
		t.Fatalf("expected ready second, got %+v", ready)
	}
	if ready.OwnNum != 0xdeadbeef {
		t.Fatalf("own num should fold the identity hash, got %08x", ready.OwnNum)
	}
	if !h.ready.Load() {
		t.Fatal("handler should be ready after init")
	}
}

func TestMessageEventNormalization(t *testing.T) {
	h := New("/usr/bin/rns-bridge", nil)

	feed(t, h, `{"type":"message","data":{
		"from_hash":"0badc0de99887766","to_hash":"cafebabe44556677",
		"text":"over the link","rssi":-92,"snr":5.5}}`)

	ev := <-h.events
	if ev.Kind != protocol.EventMessage {
		t.Fatalf("expected message event, got %+v", ev)
	}
	msg := ev.Message
	if msg.From != 0x0badc0de || msg.Text != "over the link" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.To != protocol.Broadcast || msg.ChannelIndex != 0 {
		t.Fatalf("reticulum traffic maps onto broadcast channel 0: %+v", msg)
	}
	if msg.RxRSSI != -92 || msg.RxSNR != 5.5 {
		t.Fatalf("signal stats lost: %+v", msg)
	}
	if msg.ID == "" {
		t.Fatal("message needs a dedup id")
	}

	h.mu.Lock()
	_, known := h.peers["0badc0de99887766"]
	h.mu.Unlock()
	if !known {
		t.Fatal("sender should be remembered as a peer")
	}
}

func TestLinkEstablishedRemembersPeer(t *testing.T) {
	h := New("/usr/bin/rns-bridge", nil)

	feed(t, h, `{"type":"link_established","data":{"destination_hash":"1122334455667788"}}`)

	h.mu.Lock()
	_, known := h.peers["1122334455667788"]
	h.mu.Unlock()
	if !known {
		t.Fatal("peer not remembered")
	}
}

func TestSendBeforeInitFailsNotReady(t *testing.T) {
	h := New("/usr/bin/rns-bridge", nil)

	err := h.Send(context.Background(), protocol.SendRequest{Text: "too early"})
	if err != protocol.ErrNotReady {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestNumFromHashFallsBackForShortInput(t *testing.T) {
	if numFromHash("zz") == 0 {
		t.Fatal("fallback hash should still produce an identity")
	}
	if numFromHash("deadbeef") != 0xdeadbeef {
		t.Fatal("hex prefix should fold big endian")
	}
}
