package core

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/signalsfoundry/manet-sim/kb"
	"github.com/signalsfoundry/manet-sim/model"
)

func newChannelFixture(t *testing.T) (*kb.KnowledgeBase, *Channel, *Sink) {
	t.Helper()
	store := kb.NewKnowledgeBase()
	nodes := []model.Node{
		{ID: 0, Position: model.Position{X: 100, Y: 200}, Address: netip.MustParseAddr("10.1.1.1")},
		{ID: 1, Position: model.Position{X: 500, Y: 200}, Address: netip.MustParseAddr("10.1.1.2")},
	}
	for _, n := range nodes {
		if err := store.AddNode(n); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	ch := NewChannel(store, RangeOracle{RangeMetres: 250})
	sink, err := NewSink(model.SinkSpec{Node: 1, Port: 6, Stop: 25})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	if err := ch.AttachSink(sink); err != nil {
		t.Fatalf("AttachSink: %v", err)
	}
	return store, ch, sink
}

func packet(port uint16) Packet {
	return Packet{
		FlowID:      "f",
		Size:        1040,
		Source:      0,
		Destination: netip.AddrPortFrom(netip.MustParseAddr("10.1.1.2"), port),
	}
}

func TestChannelReEvaluatesReachabilityPerPacket(t *testing.T) {
	store, ch, sink := newChannelFixture(t)

	d, err := ch.Transmit(1, packet(6))
	if err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if d.Delivered || d.Reason != DropUnreachable {
		t.Fatalf("out-of-range delivery = %+v, want unreachable drop", d)
	}

	if err := store.SetPosition(1, model.Position{X: 200, Y: 200}); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	d, err = ch.Transmit(5, packet(6))
	if err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if !d.Delivered {
		t.Fatalf("in-range delivery = %+v, want delivered", d)
	}

	recs := sink.Records()
	if len(recs) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(recs))
	}
	want := model.ReceptionRecord{Time: 5, Size: 1040, FlowID: "f", From: netip.MustParseAddr("10.1.1.1")}
	if recs[0] != want {
		t.Fatalf("record = %+v, want %+v", recs[0], want)
	}
}

func TestChannelDropsWithoutListeningSink(t *testing.T) {
	store, ch, sink := newChannelFixture(t)
	if err := store.SetPosition(1, model.Position{X: 200, Y: 200}); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}

	var seen []Delivery
	ch.Observe(func(d Delivery) { seen = append(seen, d) })

	if d, _ := ch.Transmit(1, packet(9)); d.Reason != DropNoSink {
		t.Fatalf("wrong port reason = %q, want %q", d.Reason, DropNoSink)
	}
	if d, _ := ch.Transmit(25, packet(6)); d.Reason != DropNoSink {
		t.Fatalf("closed sink reason = %q, want %q", d.Reason, DropNoSink)
	}
	if n, _ := sink.Received(); n != 0 {
		t.Fatalf("sink received %d packets, want 0", n)
	}
	if len(seen) != 2 {
		t.Fatalf("observer saw %d deliveries, want 2", len(seen))
	}
}

func TestChannelUnknownEndpoints(t *testing.T) {
	_, ch, _ := newChannelFixture(t)

	pkt := packet(6)
	pkt.Destination = netip.MustParseAddrPort("10.9.9.9:6")
	if _, err := ch.Transmit(1, pkt); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("unknown destination error = %v, want ErrUnknownNode", err)
	}

	pkt = packet(6)
	pkt.Source = 7
	if _, err := ch.Transmit(1, pkt); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("unknown source error = %v, want ErrUnknownNode", err)
	}
}

func TestAttachSinkErrors(t *testing.T) {
	_, ch, _ := newChannelFixture(t)

	dup, _ := NewSink(model.SinkSpec{Node: 1, Port: 6})
	if err := ch.AttachSink(dup); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("duplicate sink error = %v, want ErrConfiguration", err)
	}
	orphan, _ := NewSink(model.SinkSpec{Node: 5, Port: 6})
	if err := ch.AttachSink(orphan); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("unknown node sink error = %v, want ErrUnknownNode", err)
	}
}
