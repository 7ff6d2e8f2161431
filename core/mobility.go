package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/manet-sim/kb"
	"github.com/signalsfoundry/manet-sim/model"
)

// MobilityController applies scheduled position jumps to the registry.
// Positions are piecewise constant: a node stays where it was put until
// the next jump for that node executes.
type MobilityController struct {
	store   *kb.KnowledgeBase
	sched   Scheduler
	onError func(error)
	applied int
}

// NewMobilityController binds a controller to a registry and a scheduler.
// onError receives failures of jumps that were already scheduled; it may
// be nil.
func NewMobilityController(store *kb.KnowledgeBase, sched Scheduler, onError func(error)) *MobilityController {
	return &MobilityController{store: store, sched: sched, onError: onError}
}

// SetPosition moves node id to pos immediately. Registry subscribers are
// notified of the move.
func (m *MobilityController) SetPosition(id model.NodeID, pos model.Position) error {
	if err := m.store.SetPosition(id, pos); err != nil {
		return err
	}
	m.applied++
	return nil
}

// Applied returns how many jumps have executed so far.
func (m *MobilityController) Applied() int { return m.applied }

// ScheduleAll checks every event first and then schedules them in slice
// order, so jumps sharing a time run in the order given. Nothing is
// scheduled when any event is rejected.
func (m *MobilityController) ScheduleAll(events []model.MobilityEvent) error {
	for i, ev := range events {
		if !m.store.HasNode(ev.Node) {
			return fmt.Errorf("%w: mobility event %d references %s", ErrUnknownNode, i, ev.Node)
		}
		if math.IsNaN(ev.At) || math.IsInf(ev.At, 0) || ev.At < m.sched.Now() {
			return fmt.Errorf("%w: mobility event %d at %v", ErrInvalidTime, i, ev.At)
		}
		if !finitePosition(ev.Position) {
			return fmt.Errorf("%w: mobility event %d has non-finite position %v", ErrConfiguration, i, ev.Position)
		}
	}

	for _, ev := range events {
		ev := ev
		if _, err := m.sched.Schedule(ev.At, func() {
			if err := m.SetPosition(ev.Node, ev.Position); err != nil && m.onError != nil {
				m.onError(err)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

func finitePosition(p model.Position) bool {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
