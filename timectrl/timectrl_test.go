package timectrl

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPacerAcceleratedDoesNotBlock(t *testing.T) {
	p := NewPacer(Accelerated, 1)

	start := time.Now()
	if err := p.Wait(context.Background(), 3600); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("accelerated Wait blocked for %v", elapsed)
	}
}

func TestPacerRealTimeScalesBySpeed(t *testing.T) {
	// 1 simulated second at 100x is 10ms of wall clock.
	p := NewPacer(RealTime, 100)

	start := time.Now()
	if err := p.Wait(context.Background(), 0); err != nil {
		t.Fatalf("Wait(0) error = %v", err)
	}
	if err := p.Wait(context.Background(), 1); err != nil {
		t.Fatalf("Wait(1) error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("Wait returned after %v, want >= 10ms", elapsed)
	}
}

func TestPacerRealTimeHonoursCancellation(t *testing.T) {
	p := NewPacer(RealTime, 1)
	ctx, cancel := context.WithCancel(context.Background())

	if err := p.Wait(ctx, 0); err != nil {
		t.Fatalf("Wait(0) error = %v", err)
	}
	cancel()
	if err := p.Wait(ctx, 60); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait after cancel = %v, want context.Canceled", err)
	}
}

func TestPacerWithFakeClock(t *testing.T) {
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	p := &Pacer{Mode: RealTime, Speed: 1, now: func() time.Time { return now }}

	if err := p.Wait(context.Background(), 0); err != nil {
		t.Fatalf("Wait(0) error = %v", err)
	}
	// Wall clock already ahead of the target: no blocking.
	now = now.Add(10 * time.Second)
	if err := p.Wait(context.Background(), 5); err != nil {
		t.Fatalf("Wait(5) error = %v", err)
	}
}

func TestModeString(t *testing.T) {
	if got := RealTime.String(); got != "realtime" {
		t.Fatalf("RealTime.String() = %q, want realtime", got)
	}
	if got := Accelerated.String(); got != "accelerated" {
		t.Fatalf("Accelerated.String() = %q, want accelerated", got)
	}
}
