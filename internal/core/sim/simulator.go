// Package sim runs the simulation cycle: each tick steps the velocity
// controller and the integrator, perturbs the resulting pose, and re-observes
// every landmark from the perturbed pose.
//
// A Simulator owns the only SimulationState of its robot. All methods are safe
// for concurrent use; Tick and Step are expected to come from a single driver
// goroutine so that frames are emitted in order.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeusync/navsim/internal/core/events/bus"
	"github.com/zeusync/navsim/internal/core/geometry"
	"github.com/zeusync/navsim/internal/core/landmark"
	"github.com/zeusync/navsim/internal/core/motion"
	"github.com/zeusync/navsim/internal/core/noise"
	"github.com/zeusync/navsim/internal/core/observability/log"
)

// Perturber produces the published pose from the integrated one.
type Perturber interface {
	Perturb(p geometry.Pose2D) geometry.Pose2D
}

type Simulator struct {
	landmarks  *landmark.Store
	perturber  Perturber
	controller motion.Controller
	bus        bus.EventBus
	logger     log.Log
	worldFrame string
	robotFrame string

	mu       sync.Mutex
	phase    Phase
	state    motion.State
	command  geometry.Velocity2D
	lastTick time.Time
	ticks    uint64
	rejected uint64
	latest   *Frame
}

type Option func(*Simulator)

// WithGain sets the velocity controller gain.
func WithGain(gain float64) Option {
	return func(s *Simulator) { s.controller.Gain = gain }
}

// WithFrames names the world and robot frames used in emitted frames.
func WithFrames(world, robot string) Option {
	return func(s *Simulator) {
		if world != "" {
			s.worldFrame = world
		}
		if robot != "" {
			s.robotFrame = robot
		}
	}
}

// WithInitialPose sets the pose the first tick integrates from.
func WithInitialPose(p geometry.Pose2D) Option {
	return func(s *Simulator) { s.state.Pose = p }
}

// WithBus publishes frames and rejections to b.
func WithBus(b bus.EventBus) Option {
	return func(s *Simulator) { s.bus = b }
}

func WithLogger(l log.Log) Option {
	return func(s *Simulator) { s.logger = l }
}

// New builds a simulator over store. A nil perturber publishes the
// integrated pose unchanged.
func New(store *landmark.Store, perturber Perturber, opts ...Option) (*Simulator, error) {
	if store == nil {
		return nil, errors.New("sim: nil landmark store")
	}
	s := &Simulator{
		landmarks:  store,
		perturber:  perturber,
		controller: motion.Controller{Gain: motion.DefaultGain},
		worldFrame: DefaultWorldFrame,
		robotFrame: DefaultRobotFrame,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.perturber == nil {
		s.perturber = identity{}
	}
	if s.logger == nil {
		s.logger = log.Provide()
	}
	s.logger = s.logger.With(log.String("component", "simulator"))

	if _, err := motion.NewController(s.controller.Gain); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if !s.state.Pose.IsFinite() {
		return nil, fmt.Errorf("sim: initial pose: %w", motion.ErrPrecondition)
	}
	return s, nil
}

// Tick runs one cycle at wall time now. The elapsed time since the previous
// tick is the step length; the first tick uses a zero step.
func (s *Simulator) Tick(now time.Time) (Frame, error) {
	s.mu.Lock()
	dt := 0.0
	if s.phase == PhaseRunning {
		dt = now.Sub(s.lastTick).Seconds()
	}
	frame, err := s.stepLocked(dt, now)
	s.mu.Unlock()

	s.emit(frame, dt, now, err)
	return frame, err
}

// Step runs one cycle with an explicit step length, for simulated clocks.
func (s *Simulator) Step(dt float64, stamp time.Time) (Frame, error) {
	s.mu.Lock()
	frame, err := s.stepLocked(dt, stamp)
	s.mu.Unlock()

	s.emit(frame, dt, stamp, err)
	return frame, err
}

// stepLocked advances the state. The tick timestamp always becomes the new
// reference, so one bad interval does not poison the next; the state only
// changes when the step succeeds.
func (s *Simulator) stepLocked(dt float64, stamp time.Time) (Frame, error) {
	s.phase = PhaseRunning
	s.lastTick = stamp

	delta := s.controller.Control(s.command, s.state.Velocity)
	next, err := motion.Integrate(s.state, delta, dt)
	if err != nil {
		s.rejected++
		return Frame{}, err
	}
	s.state = next
	s.ticks++

	display := s.perturber.Perturb(next.Pose)
	frame := s.buildFrame(display, dt, stamp)
	s.latest = &frame
	return frame, nil
}

func (s *Simulator) buildFrame(display geometry.Pose2D, dt float64, stamp time.Time) Frame {
	n := s.landmarks.Len()
	frame := Frame{
		Seq:          s.ticks,
		Stamp:        stamp,
		DT:           dt,
		WorldFrame:   s.worldFrame,
		RobotFrame:   s.robotFrame,
		Pose:         display,
		Truth:        s.state.Pose,
		Velocity:     s.state.Velocity,
		Command:      s.command,
		Observations: make([]Observation, 0, n),
		Transforms:   make([]Transform, 0, n+1),
		Path:         make([]PathPoint, 0, 2*n),
	}
	frame.Transforms = append(frame.Transforms, Transform{Parent: s.worldFrame, Child: s.robotFrame, Pose: display})

	s.landmarks.Each(func(_ int, lm landmark.Landmark) {
		dx, dy := geometry.ToLocal(display, lm.Position)
		frame.Observations = append(frame.Observations, Observation{LandmarkID: lm.ID, DX: dx, DY: dy})
		frame.Transforms = append(frame.Transforms, Transform{Parent: s.worldFrame, Child: lm.ID, Pose: lm.Position})
		frame.Path = append(frame.Path, PathPoint{}, PathPoint{X: dx, Y: dy})
	})
	return frame
}

func (s *Simulator) emit(frame Frame, dt float64, stamp time.Time, tickErr error) {
	if tickErr != nil {
		s.logger.Warn("Tick rejected",
			log.Float64("dt", dt),
			log.Time("stamp", stamp),
			log.Error(tickErr))
		s.publish(EventTickRejected, stamp, Rejection{Stamp: stamp, DT: dt, Reason: tickErr.Error()})
		return
	}
	s.publish(EventFrame, stamp, frame)
}

// publish never rolls back state: a failed delivery is only logged.
func (s *Simulator) publish(eventType string, stamp time.Time, data any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(bus.NewEvent(eventType, eventSource, stamp, data)); err != nil {
		s.logger.Error("Delivery failed",
			log.String("event", eventType),
			log.Error(err))
	}
}

// SetCommand replaces the commanded velocity; the last write wins.
func (s *Simulator) SetCommand(v geometry.Velocity2D) error {
	if !v.IsFinite() {
		return fmt.Errorf("%w: command %+v", motion.ErrPrecondition, v)
	}
	s.mu.Lock()
	s.command = v
	s.mu.Unlock()
	return nil
}

// Reset replaces the integrated pose. Velocity, command and phase are kept.
func (s *Simulator) Reset(p geometry.Pose2D) error {
	if !p.IsFinite() {
		return fmt.Errorf("%w: reset pose %+v", motion.ErrPrecondition, p)
	}
	s.mu.Lock()
	s.state.Pose = p
	s.mu.Unlock()

	s.logger.Info("Pose reset",
		log.Float64("x", p.X),
		log.Float64("y", p.Y),
		log.Float64("yaw", p.Yaw))
	s.publish(EventReset, time.Time{}, p)
	return nil
}

func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Phase:    s.phase,
		State:    s.state,
		Command:  s.command,
		LastTick: s.lastTick,
		Ticks:    s.ticks,
		Rejected: s.rejected,
	}
}

// Latest returns the most recent successful frame.
func (s *Simulator) Latest() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Frame{}, false
	}
	return *s.latest, true
}

func (s *Simulator) Landmarks() *landmark.Store { return s.landmarks }

func (s *Simulator) Frames() (world, robot string) { return s.worldFrame, s.robotFrame }

type identity struct{}

func (identity) Perturb(p geometry.Pose2D) geometry.Pose2D { return p }

var _ Perturber = (*noise.Injector)(nil)
