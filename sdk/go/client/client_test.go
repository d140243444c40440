package client

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/navsim/internal/core/events/bus"
	"github.com/zeusync/navsim/internal/core/geometry"
	"github.com/zeusync/navsim/internal/core/landmark"
	"github.com/zeusync/navsim/internal/core/observability/log"
	"github.com/zeusync/navsim/internal/core/sim"
	"github.com/zeusync/navsim/internal/server"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func startServer(t *testing.T) (*sim.Simulator, string) {
	t.Helper()
	store, err := landmark.NewStore(
		landmark.Landmark{ID: "A", Position: geometry.Pose2D{X: 5}},
		landmark.Landmark{ID: "B", Position: geometry.Pose2D{X: 1, Y: 2}},
	)
	require.NoError(t, err)
	b := bus.New()
	s, err := sim.New(store, nil, sim.WithBus(b), sim.WithLogger(log.Nop()))
	require.NoError(t, err)

	cfg := server.DefaultServerConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	srv, err := server.NewServer(cfg, s, b, log.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	<-srv.Ready()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, srv.Addr().String()
}

func newTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	cfg := DefaultClientConfig()
	cfg.ServerAddr = addr
	cfg.Logger = log.Nop()
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientReceivesFrames(t *testing.T) {
	s, addr := startServer(t)
	c := newTestClient(t, addr)

	frames := make(chan server.FrameMessage, 8)
	c.OnFrame(func(f server.FrameMessage) { frames <- f })

	connected := make(chan struct{}, 1)
	c.OnEvent(EventTypeConnected, func(Event) { connected <- struct{}{} })

	require.NoError(t, c.Connect(context.Background()))
	<-connected
	assert.True(t, c.IsConnected())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)

	// The server registers the session just after the upgrade; retry until
	// a frame makes it through.
	var got server.FrameMessage
	require.Eventually(t, func() bool {
		if _, err := s.Tick(time.Now()); err != nil {
			return false
		}
		select {
		case got = <-frames:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	require.Len(t, got.Observations, 2)
	assert.Equal(t, "A", got.Observations[0].LandmarkID)
	assert.Positive(t, c.Received())
}

func TestClientCommandsOverWebSocket(t *testing.T) {
	s, addr := startServer(t)
	c := newTestClient(t, addr)

	var mu sync.Mutex
	var serverErrors []string
	c.OnEvent(EventTypeError, func(e Event) {
		mu.Lock()
		serverErrors = append(serverErrors, e.Message)
		mu.Unlock()
	})

	assert.ErrorIs(t, c.SendCommand(geometry.Velocity2D{}), ErrNotConnected)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.SendCommand(geometry.Velocity2D{Linear: 0.7, Angular: 0.2}))
	assert.Eventually(t, func() bool {
		return s.Snapshot().Command == geometry.Velocity2D{Linear: 0.7, Angular: 0.2}
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.SetInitialPose(geometry.Pose2D{X: -1, Y: 4, Yaw: 1}))
	assert.Eventually(t, func() bool {
		p := s.Snapshot().State.Pose
		return p.X == -1 && p.Y == 4 && math.Abs(p.Yaw-1) < 1e-12
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Empty(t, serverErrors)
	mu.Unlock()
}

func TestClientHTTP(t *testing.T) {
	s, addr := startServer(t)
	c := newTestClient(t, addr)
	ctx := context.Background()

	_, err := c.State(ctx)
	assert.ErrorIs(t, err, ErrNoFrame)

	require.NoError(t, c.PostCommand(ctx, geometry.Velocity2D{Linear: 1}))
	assert.Equal(t, geometry.Velocity2D{Linear: 1}, s.Snapshot().Command)

	require.NoError(t, c.PostInitialPose(ctx, geometry.Pose2D{X: 2}))
	assert.Equal(t, 2.0, s.Snapshot().State.Pose.X)

	_, err = s.Step(0, t0)
	require.NoError(t, err)
	frame, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.Seq)

	lms, fingerprint, err := c.Landmarks(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Landmarks().Fingerprint(), fingerprint)
	assert.Equal(t, s.Landmarks().All(), lms)
}

func TestClientClose(t *testing.T) {
	_, addr := startServer(t)
	c := newTestClient(t, addr)

	disconnected := make(chan Event, 1)
	c.OnEvent(EventTypeDisconnected, func(e Event) { disconnected <- e })
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case e := <-disconnected:
		assert.NoError(t, e.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect event")
	}
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClientClosed)
	assert.ErrorIs(t, c.PostCommand(context.Background(), geometry.Velocity2D{}), ErrClientClosed)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
