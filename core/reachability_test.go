package core

import (
	"testing"

	"github.com/signalsfoundry/manet-sim/model"
)

type staticNodes []model.Node

func (s staticNodes) ListNodes() []model.Node {
	out := make([]model.Node, len(s))
	copy(out, s)
	return out
}

func node(id int, x, y float64) model.Node {
	return model.Node{ID: model.NodeID(id), Position: model.Position{X: x, Y: y}}
}

func TestRangeOracle(t *testing.T) {
	o := RangeOracle{RangeMetres: 250}
	cases := []struct {
		name string
		a, b model.Node
		want bool
	}{
		{"same node", node(0, 0, 0), node(0, 0, 0), true},
		{"inside", node(0, 100, 200), node(1, 200, 200), true},
		{"exactly at range", node(0, 0, 0), node(1, 250, 0), true},
		{"outside", node(0, 100, 200), node(1, 500, 200), false},
	}
	for _, tc := range cases {
		if got := o.IsReachable(tc.a, tc.b); got != tc.want {
			t.Fatalf("%s: IsReachable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRangeOracleZeroRangeOnlySelf(t *testing.T) {
	o := RangeOracle{}
	if o.IsReachable(node(0, 0, 0), node(1, 1, 0)) {
		t.Fatalf("zero range should not reach a distinct node")
	}
}

func TestRelayOracleChain(t *testing.T) {
	// 0 -- 1 -- 2 -- 3, 200 m apart.
	nodes := staticNodes{node(0, 0, 0), node(1, 200, 0), node(2, 400, 0), node(3, 600, 0)}
	link := RangeOracle{RangeMetres: 250}

	unbounded := RelayOracle{Link: link, Nodes: nodes}
	if !unbounded.IsReachable(nodes[0], nodes[3]) {
		t.Fatalf("expected 0 -> 3 reachable over three hops")
	}

	bounded := RelayOracle{Link: link, Nodes: nodes, MaxHops: 2}
	if bounded.IsReachable(nodes[0], nodes[3]) {
		t.Fatalf("expected 0 -> 3 unreachable with MaxHops=2")
	}
	if !bounded.IsReachable(nodes[0], nodes[2]) {
		t.Fatalf("expected 0 -> 2 reachable with MaxHops=2")
	}

	direct := RelayOracle{Link: link, Nodes: nodes, MaxHops: 1}
	if direct.IsReachable(nodes[0], nodes[2]) {
		t.Fatalf("MaxHops=1 should behave like the link oracle")
	}
}

func TestRelayOracleUsesCallerPositions(t *testing.T) {
	nodes := staticNodes{node(0, 0, 0), node(1, 1000, 0)}
	o := RelayOracle{Link: RangeOracle{RangeMetres: 250}, Nodes: nodes}

	moved := node(1, 100, 0)
	if !o.IsReachable(nodes[0], moved) {
		t.Fatalf("expected moved destination to be reachable")
	}
	if o.IsReachable(nodes[0], nodes[1]) {
		t.Fatalf("expected distant destination to be unreachable")
	}
}

func TestRelayOracleDisconnected(t *testing.T) {
	nodes := staticNodes{node(0, 0, 0), node(1, 200, 0), node(2, 5000, 0)}
	o := RelayOracle{Link: RangeOracle{RangeMetres: 250}, Nodes: nodes}
	if o.IsReachable(nodes[0], nodes[2]) {
		t.Fatalf("expected isolated node to be unreachable")
	}
}

func TestOracleFunc(t *testing.T) {
	calls := 0
	o := OracleFunc(func(a, b model.Node) bool {
		calls++
		return a.ID < b.ID
	})
	if !o.IsReachable(node(0, 0, 0), node(1, 0, 0)) || o.IsReachable(node(1, 0, 0), node(0, 0, 0)) {
		t.Fatalf("OracleFunc did not forward arguments")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
