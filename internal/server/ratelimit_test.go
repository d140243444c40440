package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/navsim/internal/core/geometry"
	"github.com/zeusync/navsim/internal/core/observability/log"
)

func TestCommandLimiterWindow(t *testing.T) {
	l := newCommandLimiter(2, log.Nop())
	now := t0
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a", TypeCmdVel))
	assert.True(t, l.allow("a", TypeCmdVel))
	assert.False(t, l.allow("a", TypeCmdVel))
	assert.True(t, l.allow("b", TypeCmdVel), "windows are per client")

	now = now.Add(time.Second)
	assert.True(t, l.allow("a", TypeInitialPose))

	l.forget("a")
	assert.True(t, l.allow("a", TypeCmdVel))
	assert.True(t, l.allow("a", TypeCmdVel))
	assert.False(t, l.allow("a", TypeCmdVel))
}

func TestCommandLimiterDisabled(t *testing.T) {
	l := newCommandLimiter(0, log.Nop())
	assert.Nil(t, l)
	for range 100 {
		assert.True(t, l.allow("a", TypeCmdVel))
	}
	l.forget("a")
}

func TestCmdVelRateLimited(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.CommandRate = 1 })
	f.srv.limiter.now = func() time.Time { return t0 }
	h := f.srv.Handler()

	rec := do(t, h, http.MethodPost, "/cmd_vel", `{"linear":{"x":1}}`, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/cmd_vel", `{"linear":{"x":2}}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, geometry.Velocity2D{Linear: 1}, f.sim.Snapshot().Command)

	rec = do(t, h, http.MethodPost, "/initialpose", `{}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRemoteKey(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "http:10.0.0.1", remoteKey(r))
	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", remoteKey(r))
}

func TestNewServerRejectsNegativeCommandRate(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.CommandRate = -1
	f := newFixture(t, nil)
	_, err := NewServer(cfg, f.sim, f.bus, log.Nop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
