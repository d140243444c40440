// Package geometry holds the planar pose types shared by the simulator and the
// frame arithmetic that moves points between the world frame and a robot's
// local frame.
//
// Conventions: x forward, y left, yaw counter-clockwise from +x in radians.
// Yaw is never wrapped; callers that need a canonical angle use NormalizeYaw.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Pose2D is a rigid-body pose in a shared world frame.
type Pose2D struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Yaw float64 `json:"yaw"`
}

// Position returns the translational part of the pose.
func (p Pose2D) Position() r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

// IsFinite reports whether every component is a finite number.
func (p Pose2D) IsFinite() bool {
	return finite(p.X) && finite(p.Y) && finite(p.Yaw)
}

// Velocity2D is a unicycle velocity: forward speed in m/s and yaw rate in rad/s.
type Velocity2D struct {
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

func (v Velocity2D) IsFinite() bool {
	return finite(v.Linear) && finite(v.Angular)
}

// ToLocal expresses target's position in the frame anchored at origin. Only the
// translation of the composed transform origin⁻¹·target is returned; target's
// yaw does not take part.
func ToLocal(origin, target Pose2D) (dx, dy float64) {
	d := r2.Sub(target.Position(), origin.Position())
	sin, cos := math.Sincos(origin.Yaw)
	dx = d.X*cos + d.Y*sin
	dy = -d.X*sin + d.Y*cos
	return dx, dy
}

// FromLocal is the inverse of ToLocal: it maps a point given in origin's
// local frame back into the world frame.
func FromLocal(origin Pose2D, dx, dy float64) r2.Vec {
	sin, cos := math.Sincos(origin.Yaw)
	rotated := r2.Vec{X: dx*cos - dy*sin, Y: dx*sin + dy*cos}
	return r2.Add(origin.Position(), rotated)
}

// NormalizeYaw wraps an angle into (-π, π].
func NormalizeYaw(yaw float64) float64 {
	a := math.Mod(yaw, 2*math.Pi)
	switch {
	case a > math.Pi:
		a -= 2 * math.Pi
	case a <= -math.Pi:
		a += 2 * math.Pi
	}
	return a
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
