package model

import (
	"fmt"
	"net/netip"
)

// NodeID identifies a node in the registry. IDs are dense, starting at 0.
type NodeID int

func (id NodeID) String() string { return fmt.Sprintf("n%d", int(id)) }

// Node is a simulated station with a single wireless interface.
//
// Position changes only through mobility actions executed by the
// simulation driver.
type Node struct {
	ID       NodeID
	Name     string
	Position Position
	Address  netip.Addr
}

// MobilityEvent is one scheduled jump of a node to a new position.
type MobilityEvent struct {
	At       float64  `json:"at" yaml:"at"`
	Node     NodeID   `json:"node" yaml:"node"`
	Position Position `json:"position" yaml:"position"`
}
