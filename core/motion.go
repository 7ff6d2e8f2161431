package core

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/manet-sim/model"
)

// MotionModel gives a node's position at a simulation time in seconds.
type MotionModel interface {
	PositionAt(simTime float64) model.Position
}

// OrbitalTrack propagates a TLE with SGP4 and reports ECEF positions in
// metres. Simulation time zero maps to Epoch.
type OrbitalTrack struct {
	sat   satellite.Satellite
	Epoch time.Time
}

// NewOrbitalTrack constructs a track from the two TLE lines.
func NewOrbitalTrack(line1, line2 string, epoch time.Time) (*OrbitalTrack, error) {
	if len(line1) < 69 || len(line2) < 69 {
		return nil, fmt.Errorf("%w: malformed TLE", ErrConfiguration)
	}
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &OrbitalTrack{sat: sat, Epoch: epoch.UTC()}, nil
}

// PositionAt propagates to Epoch+simTime. go-satellite takes whole
// seconds, so sub-second times interpolate between the bracketing
// seconds. go-satellite works in kilometres.
func (o *OrbitalTrack) PositionAt(simTime float64) model.Position {
	at := o.Epoch.Add(time.Duration(simTime * float64(time.Second)))
	base := at.Truncate(time.Second)
	frac := at.Sub(base).Seconds()

	pos := o.eciAt(base)
	if frac > 0 {
		next := o.eciAt(base.Add(time.Second))
		pos = satellite.Vector3{
			X: pos.X + (next.X-pos.X)*frac,
			Y: pos.Y + (next.Y-pos.Y)*frac,
			Z: pos.Z + (next.Z-pos.Z)*frac,
		}
	}

	year, month, day := base.Date()
	hour, min, sec := base.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec) + frac/86400
	posECEF := satellite.ECIToECEF(pos, satellite.ThetaG_JD(jd))

	const kmToM = 1000.0
	return model.Position{
		X: posECEF.X * kmToM,
		Y: posECEF.Y * kmToM,
		Z: posECEF.Z * kmToM,
	}
}

func (o *OrbitalTrack) eciAt(at time.Time) satellite.Vector3 {
	year, month, day := at.Date()
	hour, min, sec := at.Clock()
	pos, _ := satellite.Propagate(o.sat, year, int(month), day, hour, min, sec)
	return pos
}

// MaxWaypoints caps the samples Waypoints produces for one track.
const MaxWaypoints = 1_000_000

// Waypoints samples m every step seconds over [start, stop] and returns
// one jump per sample for node. The last sample lands on stop.
func Waypoints(node model.NodeID, m MotionModel, start, stop, step float64) ([]model.MobilityEvent, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil motion model for %s", ErrConfiguration, node)
	}
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: waypoint step %v for %s", ErrConfiguration, step, node)
	}
	if !(start >= 0) || !(stop >= start) || math.IsInf(stop, 0) {
		return nil, fmt.Errorf("%w: waypoint window [%v, %v] for %s", ErrConfiguration, start, stop, node)
	}

	samples := math.Floor((stop-start)/step) + 1
	total := samples
	if start+(samples-1)*step < stop {
		total++
	}
	if total > MaxWaypoints {
		return nil, fmt.Errorf("%w: %.0f waypoints for %s exceeds %d", ErrConfiguration, total, node, MaxWaypoints)
	}
	n := int(samples)
	out := make([]model.MobilityEvent, 0, int(total))
	for i := 0; i < n; i++ {
		at := start + float64(i)*step
		out = append(out, model.MobilityEvent{At: at, Node: node, Position: m.PositionAt(at)})
	}
	if last := out[len(out)-1].At; last < stop {
		out = append(out, model.MobilityEvent{At: stop, Node: node, Position: m.PositionAt(stop)})
	}
	return out, nil
}
