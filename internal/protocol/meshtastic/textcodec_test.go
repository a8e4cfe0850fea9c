package meshtastic

import (
	"encoding/json"
	"strings"
	"testing"

	"meshbridge/internal/protocol"
)

func TestTextCodecDecodeReady(t *testing.T) {
	c, err := NewTextCodec()
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	ev, ok, err := c.Decode([]byte(`{"type":"ready","own_num":305419896}`))
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if ev.Kind != protocol.EventReady || ev.OwnNum != 0x12345678 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestTextCodecDecodeChannels(t *testing.T) {
	c, _ := NewTextCodec()

	raw := `{"type":"channels","channels":[{"index":0,"name":"ops","psk":"qrs=","role":"primary"}]}`
	ev, ok, err := c.Decode([]byte(raw))
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if ev.Kind != protocol.EventChannels || len(ev.Channels) != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	ch := ev.Channels[0]
	if ch.Name != "ops" || ch.Role != protocol.ChannelRolePrimary || len(ch.PSK) == 0 {
		t.Fatalf("unexpected channel: %+v", ch)
	}
}

func TestTextCodecDecodeText(t *testing.T) {
	c, _ := NewTextCodec()

	raw := `{"type":"text","id":"0000002a:00000001","from":42,"to":4294967295,"channel":2,"text":"hi"}`
	ev, ok, err := c.Decode([]byte(raw))
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	msg := ev.Message
	if msg.ID != "0000002a:00000001" || msg.From != 42 || msg.ChannelIndex != 2 || msg.Text != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.To != protocol.Broadcast {
		t.Fatalf("expected broadcast recipient, got %d", msg.To)
	}
}

func TestTextCodecIgnoresUnknownPayloads(t *testing.T) {
	c, _ := NewTextCodec()

	_, ok, err := c.Decode([]byte(`{"type":"telemetry_exotic"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok {
		t.Fatal("unknown payload type must be skipped, not surfaced")
	}
}

func TestTextCodecEncodeTextUsesLearnedIdentity(t *testing.T) {
	c, _ := NewTextCodec()
	if _, ok, err := c.Decode([]byte(`{"type":"ready","own_num":7}`)); err != nil || !ok {
		t.Fatalf("decode ready: ok=%v err=%v", ok, err)
	}

	raw, err := c.EncodeText(protocol.SendRequest{Text: "out", ChannelIndex: 1, To: protocol.Broadcast})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire["from"].(float64) != 7 {
		t.Fatalf("expected learned own num, got %v", wire["from"])
	}
	if !strings.HasPrefix(wire["id"].(string), "00000007:") {
		t.Fatalf("id not namespaced by sender: %v", wire["id"])
	}
}

func TestTextCodecPacketIDsAdvance(t *testing.T) {
	c, _ := NewTextCodec()

	first, err := c.EncodeText(protocol.SendRequest{Text: "a"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := c.EncodeText(protocol.SendRequest{Text: "a"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(first) == string(second) {
		t.Fatal("consecutive sends must carry distinct packet ids")
	}
}
