package timectrl

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestEventQueue_SingleEvent(t *testing.T) {
	q := NewEventQueue()

	var counter int
	id, err := q.Schedule(10, func() { counter++ })
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if id == 0 {
		t.Fatalf("Schedule returned zero ID")
	}

	n, err := q.Run(context.Background(), 20)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if n != 1 || counter != 1 {
		t.Fatalf("executed=%d counter=%d, want 1 and 1", n, counter)
	}
	if got := q.Now(); got != 20 {
		t.Fatalf("Now() = %v after Run, want 20", got)
	}
}

func TestEventQueue_OrdersByTimeThenInsertion(t *testing.T) {
	q := NewEventQueue()

	var order []string
	add := func(at float64, name string) {
		t.Helper()
		if _, err := q.Schedule(at, func() { order = append(order, name) }); err != nil {
			t.Fatalf("Schedule(%v, %s): %v", at, name, err)
		}
	}
	add(3, "c1")
	add(1, "a1")
	add(2, "b1")
	add(1, "a2")
	add(3, "c2")
	add(1, "a3")

	if _, err := q.Run(context.Background(), 10); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	want := []string{"a1", "a2", "a3", "b1", "c1", "c2"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("execution order = %v, want %v", order, want)
	}
}

func TestEventQueue_RejectsPastTime(t *testing.T) {
	q := NewEventQueue()
	if _, err := q.Schedule(5, func() {}); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if _, err := q.Run(context.Background(), 6); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	for _, at := range []float64{0, 5.999, math.NaN(), math.Inf(1)} {
		if _, err := q.Schedule(at, func() {}); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("Schedule(%v) error = %v, want ErrInvalidTime", at, err)
		}
	}
	if q.Pending() != 0 {
		t.Fatalf("rejected events were enqueued: pending=%d", q.Pending())
	}
	if _, err := q.ScheduleAfter(-1, func() {}); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("ScheduleAfter(-1) error = %v, want ErrInvalidTime", err)
	}
	// Scheduling exactly at now is allowed.
	if _, err := q.Schedule(6, func() {}); err != nil {
		t.Fatalf("Schedule(now) error: %v", err)
	}
}

func TestEventQueue_DiscardsEventsAtOrAfterUntil(t *testing.T) {
	q := NewEventQueue()

	var ran []float64
	for _, at := range []float64{1, 4.999, 5, 7} {
		at := at
		if _, err := q.Schedule(at, func() { ran = append(ran, at) }); err != nil {
			t.Fatalf("Schedule(%v): %v", at, err)
		}
	}

	n, err := q.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if n != 2 || !reflect.DeepEqual(ran, []float64{1, 4.999}) {
		t.Fatalf("ran %v (n=%d), want [1 4.999]", ran, n)
	}
	if q.Pending() != 0 {
		t.Fatalf("pending = %d after hard stop, want 0", q.Pending())
	}
}

func TestEventQueue_ActionsCanScheduleDuringRun(t *testing.T) {
	q := NewEventQueue()

	var times []float64
	var tick func()
	tick = func() {
		times = append(times, q.Now())
		if _, err := q.ScheduleAfter(1, tick); err != nil {
			t.Errorf("reschedule: %v", err)
		}
	}
	if _, err := q.Schedule(0, tick); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	if _, err := q.Run(context.Background(), 3.5); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if want := []float64{0, 1, 2, 3}; !reflect.DeepEqual(times, want) {
		t.Fatalf("tick times = %v, want %v", times, want)
	}
}

func TestEventQueue_Cancel(t *testing.T) {
	q := NewEventQueue()

	var ran []string
	keep, _ := q.Schedule(1, func() { ran = append(ran, "keep") })
	drop, _ := q.Schedule(1, func() { ran = append(ran, "drop") })
	_ = keep

	q.Cancel(drop)
	q.Cancel(drop)  // second cancel is a no-op
	q.Cancel(12345) // unknown ID is a no-op

	if got := q.Pending(); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}
	if at, ok := q.NextEventTime(); !ok || at != 1 {
		t.Fatalf("NextEventTime() = %v,%v want 1,true", at, ok)
	}
	if _, err := q.Run(context.Background(), 2); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !reflect.DeepEqual(ran, []string{"keep"}) {
		t.Fatalf("ran = %v, want [keep]", ran)
	}
}

func TestEventQueue_RunHonoursContext(t *testing.T) {
	q := NewEventQueue()
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := q.Schedule(1, cancel); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if _, err := q.Schedule(2, func() { t.Errorf("event after cancellation ran") }); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	n, err := q.Run(ctx, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if n != 1 {
		t.Fatalf("executed = %d, want 1", n)
	}
}

func TestEventQueue_InfiniteUntilDrains(t *testing.T) {
	q := NewEventQueue()
	if _, err := q.Schedule(42, func() {}); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if _, err := q.Run(context.Background(), math.Inf(1)); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got := q.Now(); got != 42 {
		t.Fatalf("Now() = %v, want 42", got)
	}
}

func TestEventQueue_DeterministicAcrossRuns(t *testing.T) {
	run := func() []int {
		q := NewEventQueue()
		var order []int
		for i := 0; i < 50; i++ {
			i := i
			at := float64(i % 7)
			if _, err := q.Schedule(at, func() { order = append(order, i) }); err != nil {
				t.Fatalf("Schedule: %v", err)
			}
		}
		if _, err := q.Run(context.Background(), 100); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return order
	}

	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("runs differ:\n%v\n%v", first, second)
	}
}

func TestEventQueue_EventHookSeesEveryExecution(t *testing.T) {
	var seen []float64
	q := NewEventQueue(WithEventHook(func(at float64) { seen = append(seen, at) }))
	for _, at := range []float64{2, 1, 3} {
		if _, err := q.Schedule(at, nil); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}
	cancelled, _ := q.Schedule(2.5, nil)
	q.Cancel(cancelled)

	n, err := q.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 3 || !reflect.DeepEqual(seen, []float64{1, 2, 3}) {
		t.Fatalf("executed %d, hook saw %v; want 3 and [1 2 3]", n, seen)
	}
}
