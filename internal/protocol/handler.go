package protocol

import (
	"context"
	"time"
)

// Broadcast is the recipient address meaning "every node on the mesh".
const Broadcast = ^uint32(0)

// ChannelRole mirrors the device-side role of a logical channel.
type ChannelRole string

const (
	ChannelRolePrimary   ChannelRole = "primary"
	ChannelRoleSecondary ChannelRole = "secondary"
	ChannelRoleDisabled  ChannelRole = "disabled"
)

// ChannelInfo is one entry of a handler's channel table snapshot. PSK is
// opaque shared-secret material; the bridge only ever compares it for
// byte equality.
type ChannelInfo struct {
	Index int
	Name  string
	PSK   []byte
	Role  ChannelRole
}

// Message is the normalized inbound text unit every handler variant must
// populate completely. ID must be stable across endpoints hearing the same
// radio packet so duplicates collapse in the deduplicator.
type Message struct {
	ID           string
	From         uint32
	To           uint32
	ChannelIndex int
	Text         string
	RxRSSI       int
	RxSNR        float64
	ReceivedAt   time.Time
}

// NodeInfo is a node/telemetry update heard on the mesh.
type NodeInfo struct {
	Num          uint32
	LongName     string
	ShortName    string
	BatteryLevel int
	HeardAt      time.Time
}

// EventKind discriminates the handler event stream.
type EventKind int

const (
	// EventReady signals the device finished initialization. OwnNodeNum is
	// valid from this point on and queued sends may be flushed.
	EventReady EventKind = iota
	EventMessage
	EventChannels
	EventNode
	// EventFatal means the handler is dead; the endpoint should be removed.
	EventFatal
)

// Event is the single structure crossing the handler boundary. Exactly the
// fields implied by Kind are set; the core never probes for missing fields.
type Event struct {
	Kind     EventKind
	OwnNum   uint32
	Message  Message
	Channels []ChannelInfo
	Node     NodeInfo
	Err      error
}

// SendRequest is one outbound text send on a logical channel.
type SendRequest struct {
	Text         string
	ChannelIndex int
	To           uint32
	WantAck      bool
}

// Handler is the per-endpoint capability contract. One implementation
// exists per radio family; everything above this interface is family
// agnostic.
//
// Connect must not leave partial state behind on failure. Disconnect is
// idempotent. Send returns ErrNotReady while the device is initializing
// and a *TransportError for anything else that goes wrong on the wire.
type Handler interface {
	Family() string
	Path() string
	Connect(ctx context.Context) error
	Disconnect() error
	Send(ctx context.Context, req SendRequest) error
	Events() <-chan Event
}
