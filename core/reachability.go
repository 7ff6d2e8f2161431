package core

import "github.com/signalsfoundry/manet-sim/model"

// DefaultRangeMetres is the radio range used when a scenario leaves it
// unset. It approximates the reach of the 802.11b setup the scenario was
// built around.
const DefaultRangeMetres = 250.0

// ReachabilityOracle decides whether a packet sent by a can arrive at b
// given the positions carried on the nodes. It is consulted once per
// packet, at transmission time.
type ReachabilityOracle interface {
	IsReachable(a, b model.Node) bool
}

// OracleFunc adapts a plain function to ReachabilityOracle.
type OracleFunc func(a, b model.Node) bool

// IsReachable calls f(a, b).
func (f OracleFunc) IsReachable(a, b model.Node) bool { return f(a, b) }

// RangeOracle is a disc model: two nodes can talk when they are at most
// RangeMetres apart.
type RangeOracle struct {
	RangeMetres float64
}

// IsReachable implements ReachabilityOracle.
func (o RangeOracle) IsReachable(a, b model.Node) bool {
	if a.ID == b.ID {
		return true
	}
	return a.Position.DistanceTo(b.Position) <= o.RangeMetres
}

// NodeLister yields a snapshot of every registered node.
// *kb.KnowledgeBase satisfies it.
type NodeLister interface {
	ListNodes() []model.Node
}

// RelayOracle reports b reachable from a when a chain of at most MaxHops
// links exists, each link accepted by Link. Intermediate nodes are taken
// from Nodes at call time so the answer follows the current positions.
// A MaxHops of zero or less means unbounded.
type RelayOracle struct {
	Link    ReachabilityOracle
	Nodes   NodeLister
	MaxHops int
}

// IsReachable implements ReachabilityOracle with a breadth-first search.
func (o RelayOracle) IsReachable(a, b model.Node) bool {
	if a.ID == b.ID {
		return true
	}
	if o.Link.IsReachable(a, b) {
		return true
	}
	if o.MaxHops == 1 || o.Nodes == nil {
		return false
	}

	nodes := o.Nodes.ListNodes()
	for i := range nodes {
		switch nodes[i].ID {
		case a.ID:
			nodes[i] = a
		case b.ID:
			nodes[i] = b
		}
	}

	visited := map[model.NodeID]bool{a.ID: true}
	frontier := []model.Node{a}
	for hops := 1; len(frontier) > 0; hops++ {
		if o.MaxHops > 0 && hops > o.MaxHops {
			return false
		}
		var next []model.Node
		for _, cur := range frontier {
			for _, n := range nodes {
				if visited[n.ID] || !o.Link.IsReachable(cur, n) {
					continue
				}
				if n.ID == b.ID {
					return true
				}
				visited[n.ID] = true
				next = append(next, n)
			}
		}
		frontier = next
	}
	return false
}
