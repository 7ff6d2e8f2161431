package core

import (
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"

	"github.com/signalsfoundry/manet-sim/model"
	"github.com/signalsfoundry/manet-sim/timectrl"
)

// FlowState is the lifecycle of a traffic source.
type FlowState int

const (
	FlowCreated FlowState = iota
	FlowScheduled
	FlowSending
	FlowStopped
)

func (s FlowState) String() string {
	switch s {
	case FlowCreated:
		return "created"
	case FlowScheduled:
		return "scheduled"
	case FlowSending:
		return "sending"
	case FlowStopped:
		return "stopped"
	default:
		return fmt.Sprintf("FlowState(%d)", int(s))
	}
}

// Packet is one datagram emitted by a flow.
type Packet struct {
	FlowID      string
	Seq         int
	Size        int
	Source      model.NodeID
	Destination netip.AddrPort
	SentAt      float64
}

// Flow is a constant-bit-rate source. It sends one PacketSize packet every
// PacketSize*8/DataRate seconds from Start until its budget runs out or
// Stop is reached, whichever comes first.
type Flow struct {
	spec      model.FlowSpec
	interval  float64
	budget    int // -1 when unbounded
	remaining int

	state   FlowState
	sched   Scheduler
	emit    func(Packet)
	pending timectrl.EventID
	stopID  timectrl.EventID

	sent      int
	sentBytes int
	firstTx   float64
	lastTx    float64
}

// NewFlow validates spec and returns a flow in FlowCreated.
func NewFlow(spec model.FlowSpec) (*Flow, error) {
	if err := validateFlowSpec(spec); err != nil {
		return nil, err
	}
	budget := -1
	switch {
	case spec.PacketCount > 0:
		budget = spec.PacketCount
	case spec.TotalBytes > 0:
		budget = (spec.TotalBytes + spec.PacketSize - 1) / spec.PacketSize
	}
	return &Flow{
		spec:      spec,
		interval:  float64(spec.PacketSize*8) / spec.DataRate,
		budget:    budget,
		remaining: budget,
		state:     FlowCreated,
	}, nil
}

func validateFlowSpec(spec model.FlowSpec) error {
	switch {
	case spec.ID == "":
		return fmt.Errorf("%w: flow has no id", ErrConfiguration)
	case spec.PacketSize <= 0:
		return fmt.Errorf("%w: flow %q packet size %d", ErrConfiguration, spec.ID, spec.PacketSize)
	case !(spec.DataRate > 0) || math.IsInf(spec.DataRate, 0):
		return fmt.Errorf("%w: flow %q data rate %v", ErrConfiguration, spec.ID, spec.DataRate)
	case spec.PacketCount < 0 || spec.TotalBytes < 0:
		return fmt.Errorf("%w: flow %q negative budget", ErrConfiguration, spec.ID)
	case spec.PacketCount > 0 && spec.TotalBytes > 0:
		return fmt.Errorf("%w: flow %q sets both packet count and total bytes", ErrConfiguration, spec.ID)
	case math.IsNaN(spec.Start) || math.IsInf(spec.Start, 0) || spec.Start < 0:
		return fmt.Errorf("%w: flow %q start %v", ErrConfiguration, spec.ID, spec.Start)
	case math.IsNaN(spec.Stop) || spec.Stop < 0:
		return fmt.Errorf("%w: flow %q stop %v", ErrConfiguration, spec.ID, spec.Stop)
	case spec.Stop > 0 && spec.Stop <= spec.Start:
		return fmt.Errorf("%w: flow %q stops at %v before starting at %v", ErrConfiguration, spec.ID, spec.Stop, spec.Start)
	case !spec.Destination.IsValid() || spec.Destination.Port() == 0:
		return fmt.Errorf("%w: flow %q destination %v", ErrConfiguration, spec.ID, spec.Destination)
	}
	return nil
}

// Spec returns the flow configuration.
func (f *Flow) Spec() model.FlowSpec { return f.spec }

// State returns the current lifecycle state.
func (f *Flow) State() FlowState { return f.state }

// Interval returns the spacing between packets in seconds.
func (f *Flow) Interval() float64 { return f.interval }

// PacketBudget returns the number of packets the flow may send, or -1 when
// only Stop bounds it.
func (f *Flow) PacketBudget() int { return f.budget }

// Sent returns packets and bytes emitted so far.
func (f *Flow) Sent() (packets, bytes int) { return f.sent, f.sentBytes }

// TxWindow returns the times of the first and last emitted packets. ok is
// false before the first packet.
func (f *Flow) TxWindow() (first, last float64, ok bool) {
	return f.firstTx, f.lastTx, f.sent > 0
}

// Start schedules the first send at Start and, when Stop is set, the stop
// event. The stop event is scheduled first so it precedes a send that falls
// on the same instant.
func (f *Flow) Start(sched Scheduler, emit func(Packet)) error {
	if f.state != FlowCreated {
		return fmt.Errorf("%w: flow %q already started", ErrConfiguration, f.spec.ID)
	}
	f.sched = sched
	f.emit = emit

	if f.spec.Stop > 0 {
		id, err := sched.Schedule(f.spec.Stop, f.stop)
		if err != nil {
			return fmt.Errorf("flow %q stop: %w", f.spec.ID, err)
		}
		f.stopID = id
	}
	id, err := sched.Schedule(f.spec.Start, f.send)
	if err != nil {
		if f.stopID != 0 {
			sched.Cancel(f.stopID)
		}
		return fmt.Errorf("flow %q start: %w", f.spec.ID, err)
	}
	f.pending = id
	f.state = FlowScheduled
	return nil
}

func (f *Flow) send() {
	if f.state == FlowStopped {
		return
	}
	f.pending = 0
	if f.remaining == 0 {
		f.halt()
		return
	}

	now := f.sched.Now()
	f.state = FlowSending
	pkt := Packet{
		FlowID:      f.spec.ID,
		Seq:         f.sent,
		Size:        f.spec.PacketSize,
		Source:      f.spec.Source,
		Destination: f.spec.Destination,
		SentAt:      now,
	}
	if f.sent == 0 {
		f.firstTx = now
	}
	f.lastTx = now
	f.sent++
	f.sentBytes += pkt.Size
	if f.remaining > 0 {
		f.remaining--
	}
	if f.emit != nil {
		f.emit(pkt)
	}

	if f.remaining == 0 {
		f.halt()
		return
	}
	id, err := f.sched.Schedule(f.spec.Start+float64(f.sent)*f.interval, f.send)
	if err != nil {
		f.halt()
		return
	}
	f.pending = id
}

func (f *Flow) stop() {
	f.stopID = 0
	f.halt()
}

func (f *Flow) halt() {
	if f.state == FlowStopped {
		return
	}
	f.state = FlowStopped
	if f.pending != 0 {
		f.sched.Cancel(f.pending)
		f.pending = 0
	}
	if f.stopID != 0 {
		f.sched.Cancel(f.stopID)
		f.stopID = 0
	}
}

// Sink accepts packets addressed to one port of one node while its window
// is open.
type Sink struct {
	spec    model.SinkSpec
	records []model.ReceptionRecord
	bytes   int
}

// NewSink validates spec and returns an empty sink.
func NewSink(spec model.SinkSpec) (*Sink, error) {
	switch {
	case spec.Port == 0:
		return nil, fmt.Errorf("%w: sink on %s has no port", ErrConfiguration, spec.Node)
	case math.IsNaN(spec.Start) || spec.Start < 0:
		return nil, fmt.Errorf("%w: sink on %s start %v", ErrConfiguration, spec.Node, spec.Start)
	case math.IsNaN(spec.Stop) || spec.Stop < 0 || (spec.Stop > 0 && spec.Stop <= spec.Start):
		return nil, fmt.Errorf("%w: sink on %s stop %v", ErrConfiguration, spec.Node, spec.Stop)
	}
	return &Sink{spec: spec}, nil
}

// Spec returns the sink configuration.
func (s *Sink) Spec() model.SinkSpec { return s.spec }

// Listening reports whether the sink accepts packets at t. A zero Stop
// keeps it open for the rest of the run.
func (s *Sink) Listening(t float64) bool {
	return t >= s.spec.Start && (s.spec.Stop == 0 || t < s.spec.Stop)
}

// Receive appends rec to the reception log.
func (s *Sink) Receive(rec model.ReceptionRecord) {
	s.records = append(s.records, rec)
	s.bytes += rec.Size
}

// Received returns the packet and byte totals.
func (s *Sink) Received() (packets, bytes int) { return len(s.records), s.bytes }

// Records returns a copy of the reception log in arrival order.
func (s *Sink) Records() []model.ReceptionRecord {
	out := make([]model.ReceptionRecord, len(s.records))
	copy(out, s.records)
	return out
}

// ParseDataRate converts strings such as "250Kbps", "1Mb/s", "11Mbps" or
// "500" into bits per second. Prefixes are decimal. A "Bps" or "B/s"
// suffix counts bytes.
func ParseDataRate(s string) (float64, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty data rate", ErrConfiguration)
	}

	num, mult := raw, 1.0
	for _, suffix := range []struct {
		text string
		mult float64
	}{
		{"bps", 1}, {"b/s", 1}, {"Bps", 8}, {"B/s", 8},
	} {
		if strings.HasSuffix(raw, suffix.text) {
			num, mult = strings.TrimSuffix(raw, suffix.text), suffix.mult
			break
		}
	}
	if n := len(num); n > 0 {
		switch num[n-1] {
		case 'k', 'K':
			num, mult = num[:n-1], mult*1e3
		case 'm', 'M':
			num, mult = num[:n-1], mult*1e6
		case 'g', 'G':
			num, mult = num[:n-1], mult*1e9
		}
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: data rate %q", ErrConfiguration, s)
	}
	rate := v * mult
	if !(rate > 0) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("%w: data rate %q", ErrConfiguration, s)
	}
	return rate, nil
}
