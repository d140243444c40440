// Package motion implements the unicycle kinematic model used by the
// simulator: a proportional velocity controller and an explicit Euler state
// integrator.
//
// Units: metres, seconds, radians.
package motion

import (
	"errors"
	"fmt"
	"math"

	"github.com/zeusync/navsim/internal/core/geometry"
)

// DefaultGain is the proportional gain used when none is configured.
const DefaultGain = 1.0

// ErrPrecondition is returned for inputs that would corrupt the state:
// negative or non-finite time steps and non-finite velocities or results.
var ErrPrecondition = errors.New("motion precondition violated")

// State is the robot "right now": the unperturbed pose and the simulated
// velocity.
type State struct {
	Pose     geometry.Pose2D    `json:"pose"`
	Velocity geometry.Velocity2D `json:"velocity"`
}

func (s State) IsFinite() bool {
	return s.Pose.IsFinite() && s.Velocity.IsFinite()
}

// Controller tracks a commanded velocity with a proportional law.
type Controller struct {
	Gain float64
}

func NewController(gain float64) (Controller, error) {
	if math.IsNaN(gain) || math.IsInf(gain, 0) || gain < 0 {
		return Controller{}, fmt.Errorf("%w: gain %v", ErrPrecondition, gain)
	}
	return Controller{Gain: gain}, nil
}

// Control returns the velocity rate of change (an acceleration) that drives
// current toward commanded. The caller integrates it over dt.
func (c Controller) Control(commanded, current geometry.Velocity2D) geometry.Velocity2D {
	return geometry.Velocity2D{
		Linear:  c.Gain * (commanded.Linear - current.Linear),
		Angular: c.Gain * (commanded.Angular - current.Angular),
	}
}

// Integrate advances s by dt seconds.
//
// Heading is updated first and the new heading is used for the translation;
// the velocity used for the translation is the one held before this step, and
// delta is applied to the velocity only at the end of the step.
//
// On error s is returned unchanged.
func Integrate(s State, delta geometry.Velocity2D, dt float64) (State, error) {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		return s, fmt.Errorf("%w: dt %v", ErrPrecondition, dt)
	}
	if !delta.IsFinite() {
		return s, fmt.Errorf("%w: velocity delta %+v", ErrPrecondition, delta)
	}

	v, w := s.Velocity.Linear, s.Velocity.Angular

	next := s
	next.Pose.Yaw = s.Pose.Yaw + w*dt
	next.Pose.X = s.Pose.X + v*math.Cos(next.Pose.Yaw)*dt
	next.Pose.Y = s.Pose.Y + v*math.Sin(next.Pose.Yaw)*dt
	next.Velocity.Linear = v + delta.Linear*dt
	next.Velocity.Angular = w + delta.Angular*dt

	if !next.IsFinite() {
		return s, fmt.Errorf("%w: step produced non-finite state %+v", ErrPrecondition, next)
	}
	return next, nil
}
