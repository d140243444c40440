package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/navsim/internal/config"
	"github.com/zeusync/navsim/internal/core/observability/log"
	"github.com/zeusync/navsim/internal/injector"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "navsim:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := injector.InitializeApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if l, ok := app.Logger.(interface{ Sync() error }); ok {
			_ = l.Sync()
		}
	}()

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error("Stopped with error", log.Error(err))
		return err
	}
	app.Logger.Info("Shutdown complete")
	return nil
}

// loadConfig layers flags over the config file over the defaults.
func loadConfig(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("navsim", flag.ContinueOnError)
	var (
		path      = fs.String("config", "", "path to a YAML config file")
		landmarks = fs.String("landmarks", "", "path to the landmark YAML document")
		httpAddr  = fs.String("http", "", "HTTP and WebSocket listen address")
		quicAddr  = fs.String("quic", "", "QUIC telemetry listen address (disabled when empty)")
		logLevel  = fs.String("log-level", "", "debug, info, warn, error or fatal")
		seed      = fs.Uint64("seed", 0, "noise seed (0 seeds from the OS)")
		errCoeff  = fs.Float64("error-coeff", 0, "standard deviation of the pose error")
		rate      = fs.Float64("rate", 0, "tick rate in Hz")
	)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if *path != "" {
		var err error
		if cfg, err = config.LoadFile(*path); err != nil {
			return config.Config{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "landmarks":
			cfg.Landmarks = *landmarks
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "quic":
			cfg.QUIC.Addr = *quicAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "seed":
			cfg.Seed = *seed
		case "error-coeff":
			cfg.ErrorCoefficient = *errCoeff
		case "rate":
			cfg.Rate = *rate
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
