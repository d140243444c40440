package sim

import (
	"time"

	"github.com/zeusync/navsim/internal/core/geometry"
	"github.com/zeusync/navsim/internal/core/motion"
)

// Event types published on the bus.
const (
	EventFrame        = "sim.frame"
	EventTickRejected = "sim.tick_rejected"
	EventReset        = "sim.reset"

	eventSource = "navsim"
)

// Default frame names.
const (
	DefaultWorldFrame = "map"
	DefaultRobotFrame = "base_link"
)

// Phase is the orchestrator state machine: Uninitialized until the first
// tick, Running afterwards.
type Phase uint8

const (
	PhaseUninitialized Phase = iota
	PhaseRunning
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseRunning:
		return "running"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Observation is a landmark position in the robot's local frame.
type Observation struct {
	LandmarkID string  `json:"landmark_id"`
	DX         float64 `json:"dx"`
	DY         float64 `json:"dy"`
}

// Transform places Child in Parent's frame.
type Transform struct {
	Parent string          `json:"parent"`
	Child  string          `json:"child"`
	Pose   geometry.Pose2D `json:"pose"`
}

// PathPoint is one vertex of the landmark path, in the robot frame.
type PathPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Frame is everything one tick emits. Frames are never modified after they
// are built, so they may be shared between consumers.
type Frame struct {
	Seq        uint64    `json:"seq"`
	Stamp      time.Time `json:"stamp"`
	DT         float64   `json:"dt"`
	WorldFrame string    `json:"world_frame"`
	RobotFrame string    `json:"robot_frame"`

	// Pose is the perturbed pose that is published; Truth is the state the
	// next tick integrates from.
	Pose     geometry.Pose2D     `json:"pose"`
	Truth    geometry.Pose2D     `json:"truth"`
	Velocity geometry.Velocity2D `json:"velocity"`
	Command  geometry.Velocity2D `json:"command"`

	// Observations follow the landmark store order.
	Observations []Observation `json:"observations"`
	// Transforms holds world→robot first, then world→landmark in store order.
	Transforms []Transform `json:"transforms"`
	// Path holds, per landmark, the robot origin followed by the landmark.
	Path []PathPoint `json:"path"`
}

// Rejection describes a tick that was skipped.
type Rejection struct {
	Stamp  time.Time `json:"stamp"`
	DT     float64   `json:"dt"`
	Reason string    `json:"reason"`
}

// Snapshot is a consistent copy of the simulator's mutable state.
type Snapshot struct {
	Phase    Phase               `json:"phase"`
	State    motion.State        `json:"state"`
	Command  geometry.Velocity2D `json:"command"`
	LastTick time.Time           `json:"last_tick"`
	Ticks    uint64              `json:"ticks"`
	Rejected uint64              `json:"rejected"`
}
