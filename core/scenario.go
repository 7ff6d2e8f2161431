package core

import (
	"fmt"
	"math"
	"net/netip"
	"time"

	"github.com/signalsfoundry/manet-sim/model"
)

// DefaultAddressBase is the prefix node addresses are drawn from when a
// scenario does not set one. Node 0 gets the first host address.
var DefaultAddressBase = netip.MustParsePrefix("10.1.1.0/24")

// RoutingMode selects the reachability oracle built for a scenario.
type RoutingMode string

const (
	// RoutingDirect delivers only between nodes within range of each other.
	RoutingDirect RoutingMode = "direct"
	// RoutingRelay also delivers over chains of in-range nodes.
	RoutingRelay RoutingMode = "relay"
)

// NodeConfig describes one node. Its ID is its index in Scenario.Nodes.
type NodeConfig struct {
	Name     string
	Position model.Position
}

// TrackConfig attaches an SGP4 orbit to a node. The orbit is sampled every
// Step seconds between Start and Stop and replayed as mobility jumps.
type TrackConfig struct {
	Node              model.NodeID
	Line1, Line2      string
	Epoch             time.Time
	Start, Stop, Step float64
}

// Scenario is a complete simulation setup.
type Scenario struct {
	Name        string
	Nodes       []NodeConfig
	AddressBase netip.Prefix
	Range       float64
	Routing     RoutingMode
	MaxHops     int

	// LineOfSight additionally requires a path clear of the Earth, with
	// an optional elevation mask, for orbital scenarios.
	LineOfSight     bool
	MinElevationDeg float64

	Mobility []model.MobilityEvent
	Tracks   []TrackConfig
	Flows    []model.FlowSpec
	Sinks    []model.SinkSpec
	StopTime float64
}

// DefaultScenario reproduces the OBSS experiment: four stationary nodes,
// one constant-rate flow from n0 to port 6 on n1, and n1 hopping into
// range of n0 at 5 s and back out at 15 s.
func DefaultScenario() Scenario {
	sc := Scenario{
		Name: "obss",
		Nodes: []NodeConfig{
			{Name: "n0", Position: model.Position{X: 100, Y: 200}},
			{Name: "n1", Position: model.Position{X: 500, Y: 200}},
			{Name: "n2", Position: model.Position{X: 200, Y: 400}},
			{Name: "n3", Position: model.Position{X: 400, Y: 400}},
		},
		AddressBase: DefaultAddressBase,
		Range:       DefaultRangeMetres,
		Routing:     RoutingDirect,
		Mobility: []model.MobilityEvent{
			{At: 5, Node: 1, Position: model.Position{X: 200, Y: 200}},
			{At: 15, Node: 1, Position: model.Position{X: 500, Y: 200}},
		},
		Sinks: []model.SinkSpec{
			{Node: 1, Port: 6, Start: 0, Stop: 25},
		},
		StopTime: 18,
	}
	dst, _ := sc.Address(1)
	sc.Flows = []model.FlowSpec{{
		ID:          "n0->n1",
		Source:      0,
		Destination: netip.AddrPortFrom(dst, 6),
		PacketSize:  1040,
		DataRate:    250e3,
		PacketCount: 100000,
		Start:       1,
		Stop:        15,
	}}
	return sc
}

// WithDefaults fills unset range, routing mode and address prefix.
func (sc Scenario) WithDefaults() Scenario {
	if sc.Range == 0 {
		sc.Range = DefaultRangeMetres
	}
	if sc.Routing == "" {
		sc.Routing = RoutingDirect
	}
	if !sc.AddressBase.IsValid() {
		sc.AddressBase = DefaultAddressBase
	}
	return sc
}

// Address returns the address assigned to node id: the id+1'th host of
// AddressBase.
func (sc Scenario) Address(id model.NodeID) (netip.Addr, error) {
	base := sc.AddressBase
	if !base.IsValid() {
		base = DefaultAddressBase
	}
	if !base.Addr().Is4() {
		return netip.Addr{}, fmt.Errorf("%w: address base %v is not IPv4", ErrConfiguration, base)
	}
	if id < 0 || int(id) >= hostCount(base) {
		return netip.Addr{}, fmt.Errorf("%w: %s does not fit in %v", ErrConfiguration, id, base)
	}
	addr := base.Masked().Addr()
	for i := 0; i <= int(id); i++ {
		addr = addr.Next()
	}
	return addr, nil
}

func hostCount(p netip.Prefix) int {
	free := 32 - p.Bits()
	if free < 2 {
		return 0
	}
	if free > 30 {
		free = 30
	}
	return 1<<free - 2
}

// Validate checks the parts of the scenario that do not need a registry.
// Flows and sinks are checked again when the engine builds them.
func (sc Scenario) Validate() error {
	if len(sc.Nodes) == 0 {
		return fmt.Errorf("%w: scenario has no nodes", ErrConfiguration)
	}
	if !(sc.StopTime > 0) || math.IsInf(sc.StopTime, 0) {
		return fmt.Errorf("%w: stop time %v", ErrConfiguration, sc.StopTime)
	}
	if !(sc.Range > 0) || math.IsInf(sc.Range, 0) {
		return fmt.Errorf("%w: range %v", ErrConfiguration, sc.Range)
	}
	switch sc.Routing {
	case RoutingDirect, RoutingRelay:
	default:
		return fmt.Errorf("%w: routing mode %q", ErrConfiguration, sc.Routing)
	}
	if sc.MinElevationDeg < 0 || sc.MinElevationDeg > 90 {
		return fmt.Errorf("%w: min elevation %v", ErrConfiguration, sc.MinElevationDeg)
	}
	if sc.MaxHops < 0 {
		return fmt.Errorf("%w: max hops %d", ErrConfiguration, sc.MaxHops)
	}
	if _, err := sc.Address(model.NodeID(len(sc.Nodes) - 1)); err != nil {
		return err
	}
	for i, n := range sc.Nodes {
		if !finitePosition(n.Position) {
			return fmt.Errorf("%w: node %d position %v", ErrConfiguration, i, n.Position)
		}
	}

	seen := make(map[string]bool, len(sc.Flows))
	for _, f := range sc.Flows {
		if seen[f.ID] {
			return fmt.Errorf("%w: duplicate flow id %q", ErrConfiguration, f.ID)
		}
		seen[f.ID] = true
	}
	for i, tr := range sc.Tracks {
		if int(tr.Node) < 0 || int(tr.Node) >= len(sc.Nodes) {
			return fmt.Errorf("%w: track %d references %s", ErrUnknownNode, i, tr.Node)
		}
	}
	return nil
}

// Oracle builds the reachability oracle named by Routing.
func (sc Scenario) Oracle(nodes NodeLister) (ReachabilityOracle, error) {
	var link ReachabilityOracle = RangeOracle{RangeMetres: sc.Range}
	if sc.LineOfSight {
		link = LineOfSightOracle{Link: link, MinElevationDeg: sc.MinElevationDeg}
	}
	switch sc.Routing {
	case RoutingDirect, "":
		return link, nil
	case RoutingRelay:
		return RelayOracle{Link: link, Nodes: nodes, MaxHops: sc.MaxHops}, nil
	default:
		return nil, fmt.Errorf("%w: routing mode %q", ErrConfiguration, sc.Routing)
	}
}

// TrackEvents densifies every track into mobility jumps.
func (sc Scenario) TrackEvents() ([]model.MobilityEvent, error) {
	var out []model.MobilityEvent
	for i, tr := range sc.Tracks {
		track, err := NewOrbitalTrack(tr.Line1, tr.Line2, tr.Epoch)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		events, err := Waypoints(tr.Node, track, tr.Start, tr.Stop, tr.Step)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		out = append(out, events...)
	}
	return out, nil
}
