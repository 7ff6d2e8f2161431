package timectrl

import (
	"context"
	"time"
)

// Mode describes how simulation time relates to wall-clock time.
type Mode int

const (
	// Accelerated runs events as fast as the driver can execute them.
	Accelerated Mode = iota
	// RealTime holds each event until the matching wall-clock instant,
	// scaled by the pacer's speed factor.
	RealTime
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	default:
		return "accelerated"
	}
}

// Pacer maps simulation seconds onto the wall clock. The wall-clock origin
// is taken the first time Wait is called.
type Pacer struct {
	Mode Mode
	// Speed is the number of simulated seconds per wall-clock second.
	// Values <= 0 are treated as 1.
	Speed float64

	now     func() time.Time
	started bool
	origin  time.Time
}

// NewPacer constructs a pacer.
func NewPacer(mode Mode, speed float64) *Pacer {
	return &Pacer{Mode: mode, Speed: speed, now: time.Now}
}

// Wait blocks until the wall-clock instant that corresponds to simTime.
// In Accelerated mode it returns immediately.
func (p *Pacer) Wait(ctx context.Context, simTime float64) error {
	if p == nil || p.Mode != RealTime {
		return nil
	}
	if p.now == nil {
		p.now = time.Now
	}
	if !p.started {
		p.origin = p.now()
		p.started = true
	}

	speed := p.Speed
	if speed <= 0 {
		speed = 1
	}
	target := p.origin.Add(time.Duration(simTime / speed * float64(time.Second)))
	d := target.Sub(p.now())
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
