package core

import (
	"math"

	"github.com/signalsfoundry/manet-sim/model"
)

// EarthRadiusMetres is the mean Earth radius used by the line-of-sight
// checks. Positions are ECEF metres.
const EarthRadiusMetres = 6371000.0

// hasLineOfSight reports whether the segment p1-p2 stays clear of the
// Earth sphere.
func hasLineOfSight(p1, p2 model.Position) bool {
	v := p2.Sub(p1)
	a := v.Dot(v)
	if a == 0 {
		// Same point: visible only outside the Earth.
		return p1.Dot(p1) > EarthRadiusMetres*EarthRadiusMetres
	}

	// Closest point on the segment to the Earth's centre.
	t := -p1.Dot(v) / a
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := model.Position{
		X: p1.X + v.X*t,
		Y: p1.Y + v.Y*t,
		Z: p1.Z + v.Z*t,
	}
	return closest.Dot(closest) > EarthRadiusMetres*EarthRadiusMetres
}

// ElevationDegrees returns the elevation angle of target as seen from
// observer. 0 is the geometric horizon, 90 is overhead.
func ElevationDegrees(observer, target model.Position) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}
	r := observer.Norm()
	if r == 0 {
		return 90
	}
	zenith := model.Position{X: observer.X / r, Y: observer.Y / r, Z: observer.Z / r}

	cosGamma := v.Dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	return 90.0 - math.Acos(cosGamma)*180.0/math.Pi
}

// LineOfSightOracle narrows Link to pairs whose straight path clears the
// Earth. With MinElevationDeg set, the node closer to the Earth's centre
// must also see the other at least that far above its horizon.
type LineOfSightOracle struct {
	Link            ReachabilityOracle
	MinElevationDeg float64
}

// IsReachable implements ReachabilityOracle.
func (o LineOfSightOracle) IsReachable(a, b model.Node) bool {
	if a.ID == b.ID {
		return true
	}
	if o.Link != nil && !o.Link.IsReachable(a, b) {
		return false
	}
	if !hasLineOfSight(a.Position, b.Position) {
		return false
	}
	if o.MinElevationDeg > 0 {
		low, high := a.Position, b.Position
		if low.Norm() > high.Norm() {
			low, high = high, low
		}
		return ElevationDegrees(low, high) >= o.MinElevationDeg
	}
	return true
}
