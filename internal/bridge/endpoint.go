package bridge

import (
	"bytes"
	"sync"
	"time"

	"meshbridge/internal/protocol"
)

// EndpointState tracks the lifecycle of a connected radio.
type EndpointState string

const (
	EndpointStateConnecting   EndpointState = "connecting"
	EndpointStateConnected    EndpointState = "connected"
	EndpointStateDisconnected EndpointState = "disconnected"
	EndpointStateFailed       EndpointState = "failed"
)

// Channel is one logical destination on one endpoint. Index is unique
// within the endpoint; Name and PSK are not required to be.
type Channel struct {
	Index int
	Name  string
	PSK   []byte
	Role  protocol.ChannelRole
}

// SameIdentity reports whether two channels are the same logical channel:
// byte-identical secret material, and when both carry a non-empty display
// name the names must match too.
func (c Channel) SameIdentity(other Channel) bool {
	if !bytes.Equal(c.PSK, other.PSK) {
		return false
	}
	if c.Name != "" && other.Name != "" && c.Name != other.Name {
		return false
	}

	return true
}

// Counters are per-endpoint monotonic statistics, reset only on restart.
type Counters struct {
	Received uint64
	Sent     uint64
	Errors   uint64
}

// Endpoint is one connected radio. The registry owns Endpoint records;
// other components read them through accessors.
type Endpoint struct {
	ID     string
	Family string
	Path   string
	Name   string

	Handler protocol.Handler

	mu       sync.Mutex
	state    EndpointState
	channels []Channel // arrival order, iteration order for matching
	ownNum   uint32
	counters Counters

	ConnectedAt time.Time
}

func (e *Endpoint) State() EndpointState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

func (e *Endpoint) setState(s EndpointState) {
	e.mu.Lock()
	e.state = s
	if s == EndpointStateConnected {
		e.ConnectedAt = time.Now()
	}
	e.mu.Unlock()
}

// Channels returns the channel table in arrival order.
func (e *Endpoint) Channels() []Channel {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Channel, len(e.channels))
	copy(out, e.channels)

	return out
}

// ChannelByIndex returns the channel at the given endpoint-scoped index.
func (e *Endpoint) ChannelByIndex(index int) (Channel, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.channels {
		if ch.Index == index {
			return ch, true
		}
	}

	return Channel{}, false
}

func (e *Endpoint) setChannels(infos []protocol.ChannelInfo) {
	channels := make([]Channel, 0, len(infos))
	for _, info := range infos {
		psk := make([]byte, len(info.PSK))
		copy(psk, info.PSK)
		channels = append(channels, Channel{
			Index: info.Index,
			Name:  info.Name,
			PSK:   psk,
			Role:  info.Role,
		})
	}

	e.mu.Lock()
	e.channels = channels
	e.mu.Unlock()
}

// OwnNum is the node number this endpoint publishes as itself. Messages
// from any live endpoint's own number are bridge echoes, never forwarded.
func (e *Endpoint) OwnNum() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ownNum
}

func (e *Endpoint) setOwnNum(num uint32) {
	e.mu.Lock()
	e.ownNum = num
	e.mu.Unlock()
}

func (e *Endpoint) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.counters
}

func (e *Endpoint) addReceived() {
	e.mu.Lock()
	e.counters.Received++
	e.mu.Unlock()
}

func (e *Endpoint) addSent() {
	e.mu.Lock()
	e.counters.Sent++
	e.mu.Unlock()
}

func (e *Endpoint) addError() {
	e.mu.Lock()
	e.counters.Errors++
	e.mu.Unlock()
}
