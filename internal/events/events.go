package events

import "time"

// EndpointStatus is a bus event snapshot of one endpoint's lifecycle.
type EndpointStatus struct {
	EndpointID string    `json:"endpoint_id"`
	Family     string    `json:"family"`
	Path       string    `json:"path"`
	Name       string    `json:"name,omitempty"`
	State      string    `json:"state"`
	Err        string    `json:"err,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// MessageEvent is one observed text unit, inbound or outbound.
type MessageEvent struct {
	EndpointID   string    `json:"endpoint_id"`
	MessageID    string    `json:"message_id"`
	From         uint32    `json:"from"`
	To           uint32    `json:"to"`
	ChannelIndex int       `json:"channel_index"`
	Text         string    `json:"text"`
	Outbound     bool      `json:"outbound"`
	Echo         bool      `json:"echo,omitempty"`
	RxRSSI       int       `json:"rx_rssi,omitempty"`
	RxSNR        float64   `json:"rx_snr,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ChannelSummary is one channel table entry without secret material.
// PSKs never leave the bridge core.
type ChannelSummary struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// ChannelList is the channel table snapshot of one endpoint.
type ChannelList struct {
	EndpointID string           `json:"endpoint_id"`
	Items      []ChannelSummary `json:"items"`
}

// NodeUpdate is a node/telemetry update heard on some endpoint.
type NodeUpdate struct {
	EndpointID   string    `json:"endpoint_id"`
	Num          uint32    `json:"num"`
	LongName     string    `json:"long_name,omitempty"`
	ShortName    string    `json:"short_name,omitempty"`
	BatteryLevel int       `json:"battery_level,omitempty"`
	HeardAt      time.Time `json:"heard_at"`
}

// CommandStatus reports a command dispatch outcome for observers.
type CommandStatus struct {
	EndpointID string    `json:"endpoint_id"`
	Sender     uint32    `json:"sender"`
	Command    string    `json:"command"`
	Outcome    string    `json:"outcome"`
	Timestamp  time.Time `json:"timestamp"`
}
