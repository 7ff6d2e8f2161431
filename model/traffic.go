package model

import "net/netip"

// FlowSpec describes a constant-bit-rate packet stream from one node to a
// destination endpoint. It is immutable once handed to the engine.
type FlowSpec struct {
	ID          string
	Source      NodeID
	Destination netip.AddrPort
	PacketSize  int     // bytes
	DataRate    float64 // bits per second

	// At most one budget may be set. With neither set the flow is bounded
	// only by Stop and the run's stop time.
	PacketCount int
	TotalBytes  int

	Start float64
	Stop  float64 // 0 means no explicit stop
}

// SinkSpec installs a packet sink on a node's port for a time window.
type SinkSpec struct {
	Node  NodeID
	Port  uint16
	Start float64
	Stop  float64 // 0 means listen until the end of the run
}

// ReceptionRecord is one accepted delivery at a sink.
type ReceptionRecord struct {
	Time   float64    `json:"time"`
	Size   int        `json:"size"`
	FlowID string     `json:"flow_id"`
	From   netip.Addr `json:"from"`
}
