package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/navsim/internal/config"
	"github.com/zeusync/navsim/internal/core/events/bus"
	"github.com/zeusync/navsim/internal/core/landmark"
	"github.com/zeusync/navsim/internal/core/noise"
	"github.com/zeusync/navsim/internal/core/observability/log"
	"github.com/zeusync/navsim/internal/core/observability/metrics"
	"github.com/zeusync/navsim/internal/core/sim"
	"github.com/zeusync/navsim/internal/server"
	"github.com/zeusync/navsim/internal/timeutil"
)

// ProviderSet builds an App from a validated config.Config.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideBusMetrics,
	ProvideEventBus,
	ProvideLandmarks,
	ProvideNoise,
	wire.Bind(new(sim.Perturber), new(*noise.Injector)),
	ProvideClock,
	ProvideSimulator,
	ProvideDriver,
	ProvideServer,
	NewApp,
)

func ProvideLogger(cfg config.Config) log.Log {
	return log.New(cfg.Level())
}

func ProvideBusMetrics() *metrics.BusObserver {
	return metrics.NewBusObserver()
}

func ProvideEventBus(obs *metrics.BusObserver) bus.EventBus {
	b := bus.New()
	b.AddObserver(obs)
	return b
}

func ProvideLandmarks(cfg config.Config, logger log.Log) (*landmark.Store, error) {
	store, err := landmark.LoadFile(cfg.Landmarks)
	if err != nil {
		return nil, err
	}
	logger.Info("Landmarks loaded",
		log.String("path", cfg.Landmarks),
		log.Int("count", store.Len()),
		log.Strings("ids", store.IDs()),
		log.String("fingerprint", store.Fingerprint()))
	return store, nil
}

func ProvideNoise(cfg config.Config) (*noise.Injector, error) {
	return noise.NewInjector(cfg.ErrorCoefficient, cfg.Seed)
}

func ProvideClock() timeutil.Clock {
	return timeutil.RealClock{}
}

func ProvideSimulator(cfg config.Config, store *landmark.Store, perturber sim.Perturber, eventBus bus.EventBus, logger log.Log) (*sim.Simulator, error) {
	return sim.New(store, perturber,
		sim.WithGain(cfg.Gain),
		sim.WithFrames(cfg.WorldFrame, cfg.RobotFrame),
		sim.WithInitialPose(cfg.InitialPose),
		sim.WithBus(eventBus),
		sim.WithLogger(logger),
	)
}

func ProvideDriver(cfg config.Config, simulator *sim.Simulator, clock timeutil.Clock, logger log.Log) (*sim.Driver, error) {
	return sim.NewDriver(simulator, clock, cfg.Period(), logger)
}

func ProvideServer(cfg config.Config, simulator *sim.Simulator, eventBus bus.EventBus, obs *metrics.BusObserver, logger log.Log) (*server.Server, error) {
	return server.NewServer(server.Config{
		HTTPAddr:        cfg.HTTP.Addr,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		WSBuffer:        cfg.HTTP.ClientBuffer,
		CommandRate:     cfg.HTTP.CommandRate,
		QUICAddr:        cfg.QUIC.Addr,
		QUICIdleTimeout: cfg.QUIC.IdleTimeout,
		QUICBuffer:      cfg.QUIC.ClientBuffer,
	}, simulator, eventBus, logger, server.WithBusMetrics(obs))
}
