package kb

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"github.com/signalsfoundry/manet-sim/model"
)

var (
	ErrUnknownNode  = errors.New("unknown node")
	ErrNodeExists   = errors.New("node already exists")
	ErrAddressInUse = errors.New("address already assigned")
	ErrNodeBadInput = errors.New("invalid node")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventNodeAdded EventType = iota
	EventNodeMoved
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type     EventType
	Node     model.Node // copy taken after the change
	Previous model.Position
}

type subscriber struct {
	id int
	fn func(Event)
}

// KnowledgeBase is the node registry: it owns every node's position and
// address. Reads are safe from any goroutine; mutation is expected to
// happen only from the simulation driver.
type KnowledgeBase struct {
	mu sync.RWMutex

	nodes     map[model.NodeID]*model.Node
	byAddress map[netip.Addr]model.NodeID

	subs    []subscriber
	nextSub int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		nodes:     make(map[model.NodeID]*model.Node),
		byAddress: make(map[netip.Addr]model.NodeID),
	}
}

// AddNode registers a node. IDs and addresses must be unique.
func (kb *KnowledgeBase) AddNode(n model.Node) error {
	if n.ID < 0 {
		return fmt.Errorf("%w: negative id %d", ErrNodeBadInput, n.ID)
	}

	kb.mu.Lock()
	if _, exists := kb.nodes[n.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeExists, n.ID)
	}
	if n.Address.IsValid() {
		if other, taken := kb.byAddress[n.Address]; taken {
			kb.mu.Unlock()
			return fmt.Errorf("%w: %s held by %s", ErrAddressInUse, n.Address, other)
		}
		kb.byAddress[n.Address] = n.ID
	}
	stored := n
	kb.nodes[n.ID] = &stored
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventNodeAdded, Node: n, Previous: n.Position})
	return nil
}

// GetNode returns a copy of the node with the given ID.
func (kb *KnowledgeBase) GetNode(id model.NodeID) (model.Node, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	n, ok := kb.nodes[id]
	if !ok {
		return model.Node{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return *n, nil
}

// NodeByAddress resolves an endpoint address to its node.
func (kb *KnowledgeBase) NodeByAddress(addr netip.Addr) (model.Node, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	id, ok := kb.byAddress[addr]
	if !ok {
		return model.Node{}, fmt.Errorf("%w: no node with address %s", ErrUnknownNode, addr)
	}
	return *kb.nodes[id], nil
}

// HasNode reports whether id is registered.
func (kb *KnowledgeBase) HasNode(id model.NodeID) bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	_, ok := kb.nodes[id]
	return ok
}

// ListNodes returns a snapshot of all nodes ordered by ID.
func (kb *KnowledgeBase) ListNodes() []model.Node {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Node, 0, len(kb.nodes))
	for _, n := range kb.nodes {
		res = append(res, *n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Len returns the number of registered nodes.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.nodes)
}

// SetPosition overwrites a node's position and notifies subscribers.
func (kb *KnowledgeBase) SetPosition(id model.NodeID, pos model.Position) error {
	kb.mu.Lock()
	n, ok := kb.nodes[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	prev := n.Position
	n.Position = pos
	event := Event{
		Type:     EventNodeMoved,
		Node:     *n, // copy for safety
		Previous: prev,
	}
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, event)
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.nextSub++
	id := kb.nextSub
	kb.subs = append(kb.subs, subscriber{id: id, fn: fn})

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		for i, s := range kb.subs {
			if s.id == id {
				kb.subs = append(kb.subs[:i], kb.subs[i+1:]...)
				return
			}
		}
	}
}

func (kb *KnowledgeBase) snapshotSubsLocked() []func(Event) {
	out := make([]func(Event), 0, len(kb.subs))
	for _, s := range kb.subs {
		out = append(out, s.fn)
	}
	return out
}

func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
