package sim

import (
	"context"
	"errors"
	"time"

	"github.com/zeusync/navsim/internal/core/observability/log"
	"github.com/zeusync/navsim/internal/timeutil"
)

// DefaultPeriod is the nominal tick period (100 Hz).
const DefaultPeriod = 10 * time.Millisecond

// Driver ticks a Simulator at a fixed period until its context ends.
type Driver struct {
	sim    *Simulator
	clock  timeutil.Clock
	period time.Duration
	logger log.Log
}

func NewDriver(sim *Simulator, clock timeutil.Clock, period time.Duration, logger log.Log) (*Driver, error) {
	if sim == nil {
		return nil, errors.New("sim: nil simulator")
	}
	if period <= 0 {
		return nil, errors.New("sim: tick period must be positive")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logger == nil {
		logger = log.Provide()
	}
	return &Driver{
		sim:    sim,
		clock:  clock,
		period: period,
		logger: logger.With(log.String("component", "driver")),
	}, nil
}

// Run blocks until ctx is done. Tick failures are reported by the simulator
// and do not stop the loop.
func (d *Driver) Run(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.period)
	defer ticker.Stop()

	d.logger.Info("Simulation loop started", log.Duration("period", d.period))
	defer d.logger.Info("Simulation loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			_, _ = d.sim.Tick(now)
		}
	}
}
