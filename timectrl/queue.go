package timectrl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidTime is returned when an event is scheduled before the current
// simulation time, or at a time that is not a finite number.
var ErrInvalidTime = errors.New("invalid simulation time")

// EventID identifies a scheduled event so it can be cancelled.
type EventID uint64

// scheduledEvent represents a single scheduled callback.
type scheduledEvent struct {
	id        EventID
	when      float64
	seq       uint64
	f         func()
	cancelled bool
}

// EventQueue orders callbacks by simulation time (seconds) and runs them
// one at a time. Events at the same time run in the order they were
// scheduled.
//
// EventQueue is not safe for concurrent use; it is owned by the single
// driver goroutine. Callbacks may schedule or cancel events while Run is
// executing them.
type EventQueue struct {
	now     float64
	counter uint64
	events  []*scheduledEvent // ordered by (when, seq)
	index   map[EventID]*scheduledEvent
	pacer   *Pacer
	hook    func(at float64)
}

// QueueOption customises an EventQueue.
type QueueOption func(*EventQueue)

// WithPacer makes Run wait on p before executing each event.
func WithPacer(p *Pacer) QueueOption {
	return func(q *EventQueue) { q.pacer = p }
}

// WithEventHook calls fn after every executed event with its time.
func WithEventHook(fn func(at float64)) QueueOption {
	return func(q *EventQueue) { q.hook = fn }
}

// NewEventQueue returns an empty queue with the clock at zero.
func NewEventQueue(opts ...QueueOption) *EventQueue {
	q := &EventQueue{index: make(map[EventID]*scheduledEvent)}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Now returns the current simulation time.
func (q *EventQueue) Now() float64 { return q.now }

// Schedule registers f to run at absolute simulation time at.
func (q *EventQueue) Schedule(at float64, f func()) (EventID, error) {
	if math.IsNaN(at) || math.IsInf(at, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTime, at)
	}
	if at < q.now {
		return 0, fmt.Errorf("%w: %.6fs is before now (%.6fs)", ErrInvalidTime, at, q.now)
	}

	q.counter++
	ev := &scheduledEvent{
		id:   EventID(q.counter),
		when: at,
		seq:  q.counter,
		f:    f,
	}
	q.insert(ev)
	q.index[ev.id] = ev
	return ev.id, nil
}

// ScheduleAfter registers f to run delay seconds from now.
func (q *EventQueue) ScheduleAfter(delay float64, f func()) (EventID, error) {
	if delay < 0 {
		return 0, fmt.Errorf("%w: negative delay %v", ErrInvalidTime, delay)
	}
	return q.Schedule(q.now+delay, f)
}

// insert places ev after every queued event with the same or an earlier
// time, which keeps equal-time events in FIFO order.
func (q *EventQueue) insert(ev *scheduledEvent) {
	idx := sort.Search(len(q.events), func(i int) bool {
		return q.events[i].when > ev.when
	})
	q.events = append(q.events, nil)
	copy(q.events[idx+1:], q.events[idx:])
	q.events[idx] = ev
}

// Cancel marks a scheduled event as cancelled. It is a no-op if the ID is
// unknown or the event already ran.
func (q *EventQueue) Cancel(id EventID) {
	ev, ok := q.index[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(q.index, id)
	// Removal from q.events is lazy; Run skips cancelled entries.
}

// Pending returns the number of events still waiting to run.
func (q *EventQueue) Pending() int { return len(q.index) }

// NextEventTime returns the time of the earliest pending event.
func (q *EventQueue) NextEventTime() (float64, bool) {
	for _, ev := range q.events {
		if !ev.cancelled {
			return ev.when, true
		}
	}
	return 0, false
}

// Run executes events in time order until the queue is empty or the next
// event is at or after until. Events left in the queue at that point are
// discarded and the clock is set to until. An infinite until drains the
// queue and leaves the clock at the last executed event. It returns the
// number of events executed.
func (q *EventQueue) Run(ctx context.Context, until float64) (int, error) {
	if math.IsNaN(until) || until < q.now {
		return 0, fmt.Errorf("%w: run until %.6fs from %.6fs", ErrInvalidTime, until, q.now)
	}

	executed := 0
	for len(q.events) > 0 {
		if err := ctx.Err(); err != nil {
			return executed, err
		}

		ev := q.events[0]
		if ev.cancelled {
			q.events = q.events[1:]
			continue
		}
		if ev.when >= until {
			break
		}

		if q.pacer != nil {
			if err := q.pacer.Wait(ctx, ev.when); err != nil {
				return executed, err
			}
		}

		q.events = q.events[1:]
		delete(q.index, ev.id)
		q.now = ev.when
		if ev.f != nil {
			ev.f()
		}
		executed++
		if q.hook != nil {
			q.hook(ev.when)
		}
	}

	q.Clear()
	if !math.IsInf(until, 1) {
		q.now = until
	}
	return executed, nil
}

// Clear drops every pending event without touching the clock.
func (q *EventQueue) Clear() {
	q.events = nil
	q.index = make(map[EventID]*scheduledEvent)
}
