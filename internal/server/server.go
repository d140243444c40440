// Package server exposes a running simulation over HTTP, a WebSocket feed
// and an optional QUIC telemetry feed. Feeds are fed from the event bus.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/navsim/internal/core/events/bus"
	"github.com/zeusync/navsim/internal/core/geometry"
	"github.com/zeusync/navsim/internal/core/landmark"
	"github.com/zeusync/navsim/internal/core/observability/log"
	"github.com/zeusync/navsim/internal/core/observability/metrics"
	"github.com/zeusync/navsim/internal/core/sim"
)

// Simulation is what the server needs from the simulator.
type Simulation interface {
	SetCommand(v geometry.Velocity2D) error
	Reset(p geometry.Pose2D) error
	Latest() (sim.Frame, bool)
	Snapshot() sim.Snapshot
	Landmarks() *landmark.Store
}

var _ Simulation = (*sim.Simulator)(nil)

// Config holds server configuration
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	WSBuffer        int
	// CommandRate caps commands per second per client; zero disables it.
	CommandRate int

	// QUICAddr enables the QUIC feed when set.
	QUICAddr        string
	QUICIdleTimeout time.Duration
	QUICBuffer      int
	// TLS for the QUIC feed; a self-signed certificate is generated when nil.
	TLS *tls.Config
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		HTTPAddr:        "127.0.0.1:8080",
		ShutdownTimeout: 5 * time.Second,
		WSBuffer:        64,
		QUICIdleTimeout: 30 * time.Second,
		QUICBuffer:      64,
	}
}

func (c Config) validate() error {
	switch {
	case c.HTTPAddr == "":
		return fmt.Errorf("%w: empty http address", ErrInvalidConfig)
	case c.WSBuffer <= 0:
		return fmt.Errorf("%w: websocket buffer must be positive", ErrInvalidConfig)
	case c.CommandRate < 0:
		return fmt.Errorf("%w: command rate must not be negative", ErrInvalidConfig)
	case c.QUICAddr != "" && c.QUICBuffer <= 0:
		return fmt.Errorf("%w: quic buffer must be positive", ErrInvalidConfig)
	}
	return nil
}

type Server struct {
	config Config
	sim    Simulation
	bus    bus.EventBus
	logger log.Log

	ws   *WebSocketServer
	quic *QUICFeed
	http *http.Server

	metrics *metrics.BusObserver
	limiter *commandLimiter

	running atomic.Bool
	mu      sync.Mutex
	addr    net.Addr
	ready   chan struct{}
}

type Option func(*Server)

// WithBusMetrics reports the observer's per-event counters on /healthz. The
// observer must already be registered on the bus.
func WithBusMetrics(obs *metrics.BusObserver) Option {
	return func(s *Server) { s.metrics = obs }
}

func NewServer(config Config, simulation Simulation, eventBus bus.EventBus, logger log.Log, opts ...Option) (*Server, error) {
	if simulation == nil || eventBus == nil {
		return nil, fmt.Errorf("%w: simulation and event bus are required", ErrInvalidConfig)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Provide()
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultServerConfig().ShutdownTimeout
	}

	s := &Server{
		config: config,
		sim:    simulation,
		bus:    eventBus,
		logger: logger.With(log.String("component", "server")),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = newCommandLimiter(config.CommandRate, s.logger)
	s.ws = NewWebSocketServer(simulation, config.WSBuffer, logger)
	s.ws.limiter = s.limiter

	if config.QUICAddr != "" {
		tlsConf := config.TLS
		if tlsConf == nil {
			var err error
			if tlsConf, err = GenerateSelfSignedTLS(); err != nil {
				return nil, fmt.Errorf("quic tls: %w", err)
			}
		}
		s.quic = NewQUICFeed(config.QUICAddr, tlsConf, config.QUICIdleTimeout, config.QUICBuffer, logger)
	}

	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Server created",
		log.String("http_addr", config.HTTPAddr),
		log.String("quic_addr", config.QUICAddr))
	return s, nil
}

// Ready is closed once the HTTP listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound HTTP address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// QUIC returns the QUIC feed, or nil when it is disabled.
func (s *Server) QUIC() *QUICFeed { return s.quic }

// Run serves until ctx is done, then shuts down gracefully. A Server runs
// at most once.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	subs, err := s.subscribeFeeds()
	if err != nil {
		return err
	}
	defer func() {
		for _, sub := range subs {
			_ = s.bus.Unsubscribe(sub)
		}
	}()

	ln, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("%w: http %s: %w", ErrListenerFailed, s.config.HTTPAddr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("HTTP listening", log.String("addr", ln.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})
	if s.quic != nil {
		g.Go(func() error { return s.quic.Run(gctx) })
	}

	err = g.Wait()
	s.logger.Info("Server stopped")
	return err
}

func (s *Server) subscribeFeeds() ([]bus.Subscription, error) {
	handlers := []bus.EventHandler{s.ws.hub.handleEvent}
	if s.quic != nil {
		handlers = append(handlers, s.quic.hub.handleEvent)
	}
	subs := make([]bus.Subscription, 0, len(handlers))
	for _, h := range handlers {
		sub, err := s.bus.Subscribe(sim.EventFrame, h)
		if err != nil {
			for _, prev := range subs {
				_ = s.bus.Unsubscribe(prev)
			}
			return nil, fmt.Errorf("subscribe feed: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *Server) shutdown() error {
	s.logger.Info("Stopping server")

	// Hijacked WebSocket connections are not tracked by http.Server.
	s.ws.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Stats contains server statistics
type Stats struct {
	WebSocket FeedStats  `json:"websocket"`
	QUIC      *FeedStats `json:"quic,omitempty"`
}

func (s *Server) GetStats() Stats {
	stats := Stats{WebSocket: s.ws.Stats()}
	if s.quic != nil {
		q := s.quic.Stats()
		stats.QUIC = &q
	}
	return stats
}
