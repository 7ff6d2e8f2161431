package core

import (
	"fmt"

	"github.com/signalsfoundry/manet-sim/kb"
	"github.com/signalsfoundry/manet-sim/model"
)

// DropReason explains why the channel discarded a packet.
type DropReason string

const (
	DropUnreachable DropReason = "unreachable"
	DropNoSink      DropReason = "no_sink"
)

// Delivery is the outcome of one transmission.
type Delivery struct {
	Packet    Packet
	At        float64
	Delivered bool
	Reason    DropReason
	From      model.Node
	To        model.Node
}

type sinkKey struct {
	node model.NodeID
	port uint16
}

// Channel moves packets between nodes with zero delay. Each transmission
// asks the oracle with the positions held by the registry at that moment.
// Packets that cannot be delivered are dropped silently.
type Channel struct {
	store     *kb.KnowledgeBase
	oracle    ReachabilityOracle
	sinks     map[sinkKey]*Sink
	observers []func(Delivery)
}

// NewChannel returns a channel over store judged by oracle.
func NewChannel(store *kb.KnowledgeBase, oracle ReachabilityOracle) *Channel {
	return &Channel{
		store:  store,
		oracle: oracle,
		sinks:  make(map[sinkKey]*Sink),
	}
}

// AttachSink binds s to its node and port.
func (c *Channel) AttachSink(s *Sink) error {
	spec := s.Spec()
	if !c.store.HasNode(spec.Node) {
		return fmt.Errorf("%w: sink on %s", ErrUnknownNode, spec.Node)
	}
	key := sinkKey{node: spec.Node, port: spec.Port}
	if _, exists := c.sinks[key]; exists {
		return fmt.Errorf("%w: duplicate sink on %s port %d", ErrConfiguration, spec.Node, spec.Port)
	}
	c.sinks[key] = s
	return nil
}

// Observe registers fn to be called after every transmission.
func (c *Channel) Observe(fn func(Delivery)) {
	c.observers = append(c.observers, fn)
}

// Resolve checks that pkt's endpoints exist in the registry and returns
// them.
func (c *Channel) Resolve(pkt Packet) (src, dst model.Node, err error) {
	src, err = c.store.GetNode(pkt.Source)
	if err != nil {
		return src, dst, fmt.Errorf("flow %q source: %w", pkt.FlowID, err)
	}
	dst, err = c.store.NodeByAddress(pkt.Destination.Addr())
	if err != nil {
		return src, dst, fmt.Errorf("flow %q destination: %w", pkt.FlowID, err)
	}
	return src, dst, nil
}

// Transmit delivers pkt at time now or drops it. Only an endpoint missing
// from the registry is an error.
func (c *Channel) Transmit(now float64, pkt Packet) (Delivery, error) {
	src, dst, err := c.Resolve(pkt)
	if err != nil {
		return Delivery{}, err
	}

	d := Delivery{Packet: pkt, At: now, From: src, To: dst}
	sink := c.sinks[sinkKey{node: dst.ID, port: pkt.Destination.Port()}]
	switch {
	case !c.oracle.IsReachable(src, dst):
		d.Reason = DropUnreachable
	case sink == nil || !sink.Listening(now):
		d.Reason = DropNoSink
	default:
		sink.Receive(model.ReceptionRecord{
			Time:   now,
			Size:   pkt.Size,
			FlowID: pkt.FlowID,
			From:   src.Address,
		})
		d.Delivered = true
	}

	for _, fn := range c.observers {
		fn(d)
	}
	return d, nil
}
