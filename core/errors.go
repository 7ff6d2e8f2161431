package core

import (
	"errors"
	"time"

	"github.com/signalsfoundry/manet-sim/kb"
	"github.com/signalsfoundry/manet-sim/timectrl"
)

var (
	// ErrConfiguration marks malformed scenario, flow or sink parameters.
	// It is always returned before any event executes.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrInvalidTime is returned when scheduling before the current time.
	ErrInvalidTime = timectrl.ErrInvalidTime
	// ErrUnknownNode is returned for node ids or addresses outside the registry.
	ErrUnknownNode = kb.ErrUnknownNode
	// ErrAlreadyRan is returned when Run is called twice on one engine.
	ErrAlreadyRan = errors.New("simulation already ran")
)

// Scheduler is the slice of the event queue that components need.
// *timectrl.EventQueue satisfies it.
type Scheduler interface {
	Now() float64
	Schedule(at float64, f func()) (timectrl.EventID, error)
	Cancel(id timectrl.EventID)
}

// MetricsRecorder receives run counters. *observability.SimCollector
// satisfies it.
type MetricsRecorder interface {
	ObserveEvent(simTime float64)
	ObservePacketSent(flowID string, size int)
	ObservePacketDelivered(flowID string, size int)
	ObservePacketDropped(flowID, reason string)
	ObserveMobility(node int)
	ObserveRun(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveEvent(float64)                {}
func (noopMetrics) ObservePacketSent(string, int)       {}
func (noopMetrics) ObservePacketDelivered(string, int)  {}
func (noopMetrics) ObservePacketDropped(string, string) {}
func (noopMetrics) ObserveMobility(int)                 {}
func (noopMetrics) ObserveRun(time.Duration)            {}
