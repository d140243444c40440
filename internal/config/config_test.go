package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/navsim/internal/core/observability/log"
)

func TestDefaultNeedsOnlyLandmarks(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.Landmarks = "landmarks.yaml"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Millisecond, cfg.Period())
	assert.Equal(t, log.LevelInfo, cfg.Level())
}

func TestLoadOverridesDefaults(t *testing.T) {
	doc := `
landmarks: /etc/navsim/landmarks.yaml
error_coeff: 0
rate: 50
seed: 42
initial_pose: {x: 1, y: -2, yaw: 0.5}
http:
  addr: ":9090"
quic:
  addr: ":9443"
`
	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/etc/navsim/landmarks.yaml", cfg.Landmarks)
	assert.Equal(t, 0.0, cfg.ErrorCoefficient)
	assert.Equal(t, 20*time.Millisecond, cfg.Period())
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 1.0, cfg.InitialPose.X)
	assert.Equal(t, -2.0, cfg.InitialPose.Y)
	assert.Equal(t, 0.5, cfg.InitialPose.Yaw)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, ":9443", cfg.QUIC.Addr)

	// untouched keys keep their defaults
	assert.Equal(t, 1.0, cfg.Gain)
	assert.Equal(t, "map", cfg.WorldFrame)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout)
}

func TestLoadEmptyDocument(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(strings.NewReader("error_coef: 0.1\n"))
	assert.Error(t, err)
}

func TestLoadFileResolvesLandmarksRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "navsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("landmarks: lm.yaml\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lm.yaml"), cfg.Landmarks)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative error", func(c *Config) { c.ErrorCoefficient = -0.1 }},
		{"nan error", func(c *Config) { c.ErrorCoefficient = math.NaN() }},
		{"negative gain", func(c *Config) { c.Gain = -1 }},
		{"zero rate", func(c *Config) { c.Rate = 0 }},
		{"infinite rate", func(c *Config) { c.Rate = math.Inf(1) }},
		{"same frames", func(c *Config) { c.RobotFrame = c.WorldFrame }},
		{"empty frame", func(c *Config) { c.WorldFrame = "" }},
		{"bad pose", func(c *Config) { c.InitialPose.Yaw = math.Inf(-1) }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"no http addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"no ws buffer", func(c *Config) { c.HTTP.ClientBuffer = 0 }},
		{"negative command rate", func(c *Config) { c.HTTP.CommandRate = -1 }},
		{"no quic buffer", func(c *Config) { c.QUIC.Addr = ":1"; c.QUIC.ClientBuffer = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Landmarks = "lm.yaml"
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
