// Package client is a Go client for a navsim server: it follows the
// WebSocket frame feed and drives the robot over WebSocket or HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/navsim/internal/core/geometry"
	"github.com/zeusync/navsim/internal/core/landmark"
	"github.com/zeusync/navsim/internal/core/observability/log"
	"github.com/zeusync/navsim/internal/server"
)

// Client represents a navsim client connection
type Client struct {
	config Config
	http   *http.Client
	logger log.Log

	connMu sync.Mutex // serializes writes
	conn   *websocket.Conn

	frameHandlers []FrameHandler
	eventHandlers map[EventType][]EventHandler
	handlerMutex  sync.RWMutex

	connected atomic.Bool
	closed    atomic.Bool
	received  atomic.Uint64
	done      chan struct{}
	readerWG  sync.WaitGroup
}

// Config holds configuration for the client
type Config struct {
	// ServerAddr is the server's host:port.
	ServerAddr     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	Logger         log.Log
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerAddr:     "127.0.0.1:8080",
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// FrameHandler is called on the reader goroutine for every frame.
type FrameHandler func(frame server.FrameMessage)

// EventHandler defines a function type for handling client events
type EventHandler func(event Event)

// EventType represents different types of client events
type EventType string

const (
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	// EventTypeError carries an error envelope sent by the server.
	EventTypeError EventType = "error"
)

// Event represents a client event
type Event struct {
	Type      EventType
	Timestamp time.Time
	Message   string
	Error     error
}

// NewClient creates a new navsim client
func NewClient(config Config) (*Client, error) {
	if config.ServerAddr == "" {
		return nil, fmt.Errorf("%w: empty server address", ErrInvalidConfig)
	}
	if config.Logger == nil {
		config.Logger = log.Provide()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultClientConfig().RequestTimeout
	}
	return &Client{
		config:        config,
		http:          &http.Client{Timeout: config.RequestTimeout},
		logger:        config.Logger.With(log.String("component", "client")),
		eventHandlers: make(map[EventType][]EventHandler),
		done:          make(chan struct{}),
	}, nil
}

// OnFrame registers a frame handler. Handlers must be registered before
// Connect.
func (c *Client) OnFrame(handler FrameHandler) {
	c.handlerMutex.Lock()
	c.frameHandlers = append(c.frameHandlers, handler)
	c.handlerMutex.Unlock()
}

// OnEvent registers an event handler
func (c *Client) OnEvent(eventType EventType, handler EventHandler) {
	c.handlerMutex.Lock()
	c.eventHandlers[eventType] = append(c.eventHandlers[eventType], handler)
	c.handlerMutex.Unlock()
}

// Connect opens the WebSocket feed and starts delivering frames.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		c.logger.Error("Failed to connect to server",
			log.String("addr", c.config.ServerAddr),
			log.Error(err))
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)

	c.logger.Info("Connected to server", log.String("addr", c.config.ServerAddr))
	c.emitEvent(Event{Type: EventTypeConnected, Timestamp: time.Now()})

	c.readerWG.Add(1)
	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.readerWG.Done()
	var cause error
	defer func() {
		c.connected.Store(false)
		c.emitEvent(Event{Type: EventTypeDisconnected, Timestamp: time.Now(), Error: cause})
	}()

	for {
		var env server.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !c.closed.Load() {
				cause = err
			}
			return
		}
		switch env.Type {
		case server.TypeFrame:
			var frame server.FrameMessage
			if err := json.Unmarshal(env.Data, &frame); err != nil {
				c.logger.Warn("Malformed frame", log.Error(err))
				continue
			}
			c.received.Add(1)
			c.handlerMutex.RLock()
			handlers := c.frameHandlers
			c.handlerMutex.RUnlock()
			for _, h := range handlers {
				h(frame)
			}
		case server.TypeError:
			var msg server.ErrorMessage
			_ = json.Unmarshal(env.Data, &msg)
			c.emitEvent(Event{Type: EventTypeError, Timestamp: time.Now(), Message: msg.Error})
		default:
			c.logger.Debug("Ignoring envelope", log.String("type", env.Type))
		}
	}
}

// SendCommand sets the commanded velocity over the WebSocket.
func (c *Client) SendCommand(v geometry.Velocity2D) error {
	return c.send(server.TypeCmdVel, server.TwistFromVelocity(v))
}

// SetInitialPose resets the robot pose over the WebSocket.
func (c *Client) SetInitialPose(p geometry.Pose2D) error {
	return c.send(server.TypeInitialPose, server.PoseWithCovarianceStamped{
		Pose: server.PoseWithCovariance{Pose: server.PoseFromPose2D(p)},
	})
}

func (c *Client) send(typ string, data any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn.WriteJSON(server.Envelope{Type: typ, Data: raw})
}

// PostCommand sets the commanded velocity over HTTP.
func (c *Client) PostCommand(ctx context.Context, v geometry.Velocity2D) error {
	return c.post(ctx, "/cmd_vel", server.TwistFromVelocity(v))
}

// PostInitialPose resets the robot pose over HTTP.
func (c *Client) PostInitialPose(ctx context.Context, p geometry.Pose2D) error {
	return c.post(ctx, "/initialpose", server.PoseWithCovarianceStamped{
		Pose: server.PoseWithCovariance{Pose: server.PoseFromPose2D(p)},
	})
}

// State fetches the most recent frame.
func (c *Client) State(ctx context.Context) (server.FrameMessage, error) {
	var frame server.FrameMessage
	resp, err := c.get(ctx, "/state")
	if err != nil {
		return frame, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return frame, ErrNoFrame
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return frame, err
	}
	return frame, json.NewDecoder(resp.Body).Decode(&frame)
}

// Landmarks fetches the landmark set and its fingerprint.
func (c *Client) Landmarks(ctx context.Context) ([]landmark.Landmark, string, error) {
	resp, err := c.get(ctx, "/landmarks")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, "", err
	}
	var body struct {
		Fingerprint string              `json:"fingerprint"`
		Landmarks   []landmark.Landmark `json:"landmarks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", err
	}
	return body.Landmarks, body.Fingerprint, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

func (c *Client) url(path string) string {
	return (&url.URL{Scheme: "http", Host: c.config.ServerAddr, Path: path}).String()
}

func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	var msg server.ErrorMessage
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(body, &msg) != nil || msg.Error == "" {
		msg.Error = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%w: %d: %s", ErrRejected, resp.StatusCode, msg.Error)
	}
	return fmt.Errorf("server error %d: %s", resp.StatusCode, msg.Error)
}

// Received is the number of frames delivered so far.
func (c *Client) Received() uint64 { return c.received.Load() }

func (c *Client) IsConnected() bool { return c.connected.Load() }

// Close closes the feed and releases all resources. It is safe to call more
// than once.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	conn := c.conn
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}
	c.connMu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.readerWG.Wait()
	c.logger.Info("Client closed")
	return nil
}

// Done is closed by Close.
func (c *Client) Done() <-chan struct{} { return c.done }

// emitEvent emits an event to registered handlers
func (c *Client) emitEvent(event Event) {
	c.handlerMutex.RLock()
	handlers := c.eventHandlers[event.Type]
	c.handlerMutex.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}
