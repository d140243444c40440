// Package config holds the service configuration: a YAML file layered over
// Default, then overridden by command-line flags in main.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/navsim/internal/core/geometry"
	"github.com/zeusync/navsim/internal/core/observability/log"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	// Landmarks is the landmark document path. Relative paths in a config
	// file are resolved against the file's directory.
	Landmarks string `yaml:"landmarks"`
	// ErrorCoefficient is the standard deviation of the pose error added to
	// x, y and yaw.
	ErrorCoefficient float64 `yaml:"error_coeff"`
	Gain             float64 `yaml:"gain"`
	// Rate is the tick frequency in Hz.
	Rate float64 `yaml:"rate"`
	// Seed fixes the noise sequence; 0 seeds from the OS.
	Seed        uint64          `yaml:"seed"`
	WorldFrame  string          `yaml:"world_frame"`
	RobotFrame  string          `yaml:"robot_frame"`
	InitialPose geometry.Pose2D `yaml:"initial_pose"`
	LogLevel    string          `yaml:"log_level"`

	HTTP HTTPConfig `yaml:"http"`
	QUIC QUICConfig `yaml:"quic"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// ClientBuffer is the number of frames queued per WebSocket client
	// before frames are dropped for it.
	ClientBuffer int `yaml:"client_buffer"`
	// CommandRate caps cmd_vel and initialpose messages per second per
	// client. Zero disables the limit.
	CommandRate int `yaml:"command_rate"`
}

// QUICConfig enables the QUIC telemetry feed when Addr is set.
type QUICConfig struct {
	Addr         string        `yaml:"addr"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	ClientBuffer int           `yaml:"client_buffer"`
}

func Default() Config {
	return Config{
		ErrorCoefficient: 0.01,
		Gain:             1.0,
		Rate:             100,
		WorldFrame:       "map",
		RobotFrame:       "base_link",
		LogLevel:         "info",
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 5 * time.Second,
			ClientBuffer:    64,
		},
		QUIC: QUICConfig{
			IdleTimeout:  30 * time.Second,
			ClientBuffer: 64,
		},
	}
}

// LoadFile reads path over Default. Unknown keys are an error.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	cfg, err := Load(f)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.Landmarks != "" && !filepath.IsAbs(cfg.Landmarks) {
		cfg.Landmarks = filepath.Join(filepath.Dir(path), cfg.Landmarks)
	}
	return cfg, nil
}

func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, nil
}

// Period is the tick period derived from Rate.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.Rate)
}

func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.LevelInfo
	}
	return level
}

func (c Config) Validate() error {
	var errs []error
	if c.Landmarks == "" {
		errs = append(errs, errors.New("landmarks: path is required"))
	}
	if !finiteNonNegative(c.ErrorCoefficient) {
		errs = append(errs, fmt.Errorf("error_coeff: must be finite and >= 0, got %v", c.ErrorCoefficient))
	}
	if !finiteNonNegative(c.Gain) {
		errs = append(errs, fmt.Errorf("gain: must be finite and >= 0, got %v", c.Gain))
	}
	if !finiteNonNegative(c.Rate) || c.Rate == 0 || c.Period() <= 0 {
		errs = append(errs, fmt.Errorf("rate: must be a positive frequency, got %v", c.Rate))
	}
	if c.WorldFrame == "" || c.RobotFrame == "" {
		errs = append(errs, errors.New("world_frame and robot_frame must be set"))
	} else if c.WorldFrame == c.RobotFrame {
		errs = append(errs, errors.New("world_frame and robot_frame must differ"))
	}
	if !c.InitialPose.IsFinite() {
		errs = append(errs, errors.New("initial_pose: must be finite"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr: required"))
	}
	if c.HTTP.ClientBuffer <= 0 {
		errs = append(errs, errors.New("http.client_buffer: must be positive"))
	}
	if c.HTTP.CommandRate < 0 {
		errs = append(errs, errors.New("http.command_rate: must not be negative"))
	}
	if c.QUIC.Addr != "" && c.QUIC.ClientBuffer <= 0 {
		errs = append(errs, errors.New("quic.client_buffer: must be positive"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
