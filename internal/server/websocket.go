package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/navsim/internal/core/observability/log"
)

const (
	wsWriteWait      = 5 * time.Second
	wsMaxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The feed is read-only telemetry plus velocity commands; any origin
	// may connect.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WebSocketServer pushes every frame to connected clients and accepts
// cmd_vel and initialpose envelopes from them.
type WebSocketServer struct {
	sim     Simulation
	hub     *hub
	limiter *commandLimiter
	logger  log.Log
}

func NewWebSocketServer(simulation Simulation, buffer int, logger log.Log) *WebSocketServer {
	logger = logger.With(log.String("component", "websocket"))
	return &WebSocketServer{
		sim:    simulation,
		hub:    newHub("websocket", buffer, encodeFrameEnvelope, logger),
		logger: logger,
	}
}

func encodeFrameEnvelope(msg FrameMessage) ([]byte, error) {
	return newEnvelope(TypeFrame, msg)
}

func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			log.String("remote_addr", r.RemoteAddr),
			log.Error(err))
		return
	}

	sess, err := s.hub.register()
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(conn, sess)
	}()

	readErr := s.readLoop(conn, sess)
	s.hub.unregister(sess, readErr)
	s.limiter.forget(sess.id)
	<-writerDone
	_ = conn.Close()
}

// writeLoop is the only goroutine that writes to conn.
func (s *WebSocketServer) writeLoop(conn *websocket.Conn, sess *session) {
	for {
		select {
		case b := <-sess.send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				s.hub.unregister(sess, err)
				return
			}
		case <-sess.Done():
			code, text := websocket.CloseNormalClosure, ""
			if errors.Is(sess.Err(), ErrClientTooSlow) {
				code, text = websocket.ClosePolicyViolation, ErrClientTooSlow.Error()
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, text),
				time.Now().Add(wsWriteWait))
			// Unblock the reader.
			_ = conn.Close()
			return
		}
	}
}

// readLoop returns nil when the peer closes normally.
func (s *WebSocketServer) readLoop(conn *websocket.Conn, sess *session) error {
	conn.SetReadLimit(wsMaxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-sess.Done():
				return sess.Err()
			default:
			}
			return err
		}
		if err := s.dispatch(sess.id, data); err != nil {
			s.logger.Debug("Rejected client message",
				log.String("client_id", sess.id),
				log.Error(err))
			reply, encErr := newEnvelope(TypeError, ErrorMessage{Error: err.Error()})
			if encErr == nil && !sess.enqueue(reply) {
				return ErrClientTooSlow
			}
		}
	}
}

func (s *WebSocketServer) dispatch(clientID string, data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if (env.Type == TypeCmdVel || env.Type == TypeInitialPose) && !s.limiter.allow(clientID, env.Type) {
		return ErrRateLimited
	}
	switch env.Type {
	case TypeCmdVel:
		var twist Twist
		if err := json.Unmarshal(env.Data, &twist); err != nil {
			return fmt.Errorf("%w: cmd_vel: %w", ErrInvalidMessage, err)
		}
		return s.sim.SetCommand(twist.Velocity())
	case TypeInitialPose:
		var msg PoseWithCovarianceStamped
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return fmt.Errorf("%w: initialpose: %w", ErrInvalidMessage, err)
		}
		pose, err := msg.Pose2D()
		if err != nil {
			return err
		}
		return s.sim.Reset(pose)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, env.Type)
	}
}

func (s *WebSocketServer) Stats() FeedStats { return s.hub.stats() }

func (s *WebSocketServer) Close() { s.hub.closeAll() }
