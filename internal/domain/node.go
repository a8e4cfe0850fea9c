package domain

import "time"

// Node is one mesh participant heard on any endpoint. Sparse updates keep
// previously known fields.
type Node struct {
	Num          uint32
	LongName     string
	ShortName    string
	BatteryLevel int
	EndpointID   string
	LastHeardAt  time.Time
	UpdatedAt    time.Time
}
