package meshtastic

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"meshbridge/internal/protocol"
)

// TextCodec is a JSON-lines payload codec. It is the codec used by the
// loopback/debug setup and by tests; real radios plug in the protobuf
// wire codec instead. The codec learns its own node number from the
// device's ready payload.
type TextCodec struct {
	ownNum   atomic.Uint32
	packetID atomic.Uint32
}

type wirePayload struct {
	Type     string        `json:"type"`
	OwnNum   uint32        `json:"own_num,omitempty"`
	ID       string        `json:"id,omitempty"`
	From     uint32        `json:"from,omitempty"`
	To       uint32        `json:"to,omitempty"`
	Channel  int           `json:"channel,omitempty"`
	Text     string        `json:"text,omitempty"`
	RSSI     int           `json:"rssi,omitempty"`
	SNR      float64       `json:"snr,omitempty"`
	Channels []wireChannel `json:"channels,omitempty"`
	Num      uint32        `json:"num,omitempty"`
	LongName string        `json:"long_name,omitempty"`
	Short    string        `json:"short_name,omitempty"`
	Battery  int           `json:"battery,omitempty"`
}

type wireChannel struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	PSK   []byte `json:"psk"`
	Role  string `json:"role"`
}

func NewTextCodec() (*TextCodec, error) {
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed packet id: %w", err)
	}

	c := &TextCodec{}
	c.packetID.Store(binary.BigEndian.Uint32(seed[:]))

	return c, nil
}

func (c *TextCodec) EncodeWantConfig() ([]byte, error) {
	return json.Marshal(wirePayload{Type: "want_config"})
}

func (c *TextCodec) EncodeText(req protocol.SendRequest) ([]byte, error) {
	id := c.packetID.Add(1)
	own := c.ownNum.Load()

	return json.Marshal(wirePayload{
		Type:    "text",
		ID:      fmt.Sprintf("%08x:%08x", own, id),
		From:    own,
		To:      req.To,
		Channel: req.ChannelIndex,
		Text:    req.Text,
	})
}

func (c *TextCodec) Decode(payload []byte) (protocol.Event, bool, error) {
	var wire wirePayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		return protocol.Event{}, false, fmt.Errorf("decode payload: %w", err)
	}

	switch wire.Type {
	case "ready":
		c.ownNum.Store(wire.OwnNum)
		return protocol.Event{Kind: protocol.EventReady, OwnNum: wire.OwnNum}, true, nil

	case "channels":
		channels := make([]protocol.ChannelInfo, 0, len(wire.Channels))
		for _, ch := range wire.Channels {
			channels = append(channels, protocol.ChannelInfo{
				Index: ch.Index,
				Name:  ch.Name,
				PSK:   ch.PSK,
				Role:  protocol.ChannelRole(ch.Role),
			})
		}

		return protocol.Event{Kind: protocol.EventChannels, Channels: channels}, true, nil

	case "text":
		id := wire.ID
		if id == "" {
			id = fmt.Sprintf("%08x:%08x", wire.From, c.packetID.Add(1))
		}

		return protocol.Event{
			Kind: protocol.EventMessage,
			Message: protocol.Message{
				ID:           id,
				From:         wire.From,
				To:           wire.To,
				ChannelIndex: wire.Channel,
				Text:         wire.Text,
				RxRSSI:       wire.RSSI,
				RxSNR:        wire.SNR,
				ReceivedAt:   time.Now(),
			},
		}, true, nil

	case "nodeinfo":
		return protocol.Event{
			Kind: protocol.EventNode,
			Node: protocol.NodeInfo{
				Num:          wire.Num,
				LongName:     wire.LongName,
				ShortName:    wire.Short,
				BatteryLevel: wire.Battery,
				HeardAt:      time.Now(),
			},
		}, true, nil

	default:
		return protocol.Event{}, false, nil
	}
}

var _ Codec = (*TextCodec)(nil)
