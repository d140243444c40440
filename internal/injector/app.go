package injector

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/navsim/internal/core/noise"
	"github.com/zeusync/navsim/internal/core/observability/log"
	"github.com/zeusync/navsim/internal/core/sim"
	"github.com/zeusync/navsim/internal/server"
)

// App is the assembled service: the tick driver and the server sharing one
// simulator.
type App struct {
	Logger    log.Log
	Simulator *sim.Simulator
	Driver    *sim.Driver
	Server    *server.Server
	noise     *noise.Injector
}

func NewApp(logger log.Log, simulator *sim.Simulator, driver *sim.Driver, srv *server.Server, injector *noise.Injector) *App {
	return &App{
		Logger:    logger,
		Simulator: simulator,
		Driver:    driver,
		Server:    srv,
		noise:     injector,
	}
}

// Run blocks until ctx is done or either half fails; a failure stops the
// other half.
func (a *App) Run(ctx context.Context) error {
	world, robot := a.Simulator.Frames()
	a.Logger.Info("Starting navsim",
		log.Float64("error_coeff", a.noise.Sigma()),
		log.Uint64("seed", a.noise.Seed()),
		log.String("world_frame", world),
		log.String("robot_frame", robot))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Driver.Run(gctx) })
	g.Go(func() error { return a.Server.Run(gctx) })
	return g.Wait()
}
