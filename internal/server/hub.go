package server

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zeusync/navsim/internal/core/events/bus"
	"github.com/zeusync/navsim/internal/core/observability/log"
	"github.com/zeusync/navsim/internal/core/sim"
)

// session is one feed consumer. Frames are queued on send; done is closed
// when the session is evicted or the hub shuts down.
type session struct {
	id   string
	send chan []byte
	done chan struct{}
	once sync.Once
	err  error
}

func (s *session) close(reason error) {
	s.once.Do(func() {
		s.err = reason
		close(s.done)
	})
}

// Done is closed once the session must stop.
func (s *session) Done() <-chan struct{} { return s.done }

// Err is the reason the session was closed, or nil on a clean shutdown.
func (s *session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// enqueue never blocks; a full queue evicts the session.
func (s *session) enqueue(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

// hub fans frames out from the event bus to feed sessions. Each frame is
// encoded once per hub.
type hub struct {
	name    string
	buffer  int
	encode  func(FrameMessage) ([]byte, error)
	logger  log.Log
	mu      sync.RWMutex
	clients map[string]*session
	closed  bool

	sent    atomic.Uint64
	evicted atomic.Uint64
}

func newHub(name string, buffer int, encode func(FrameMessage) ([]byte, error), logger log.Log) *hub {
	return &hub{
		name:    name,
		buffer:  buffer,
		encode:  encode,
		logger:  logger.With(log.String("feed", name)),
		clients: make(map[string]*session),
	}
}

func (h *hub) register() (*session, error) {
	s := &session{
		id:   uuid.NewString(),
		send: make(chan []byte, h.buffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("%s feed: shutting down", h.name)
	}
	h.clients[s.id] = s
	h.logger.Info("Client connected",
		log.String("client_id", s.id),
		log.Int("total_clients", len(h.clients)))
	return s, nil
}

func (h *hub) unregister(s *session, reason error) {
	s.close(reason)
	h.mu.Lock()
	_, ok := h.clients[s.id]
	delete(h.clients, s.id)
	total := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	fields := []log.Field{log.String("client_id", s.id), log.Int("total_clients", total)}
	if reason != nil {
		fields = append(fields, log.Error(reason))
	}
	h.logger.Info("Client disconnected", fields...)
}

// handleEvent is the bus handler for sim.EventFrame.
func (h *hub) handleEvent(e bus.Event) error {
	frame, ok := e.Data().(sim.Frame)
	if !ok {
		return fmt.Errorf("%s feed: %w: unexpected payload %T", h.name, ErrInvalidMessage, e.Data())
	}
	return h.broadcast(NewFrameMessage(frame))
}

func (h *hub) broadcast(msg FrameMessage) error {
	h.mu.RLock()
	if len(h.clients) == 0 {
		h.mu.RUnlock()
		return nil
	}
	b, err := h.encode(msg)
	if err != nil {
		h.mu.RUnlock()
		return fmt.Errorf("%s feed: encode frame %d: %w", h.name, msg.Seq, err)
	}
	var slow []*session
	for _, s := range h.clients {
		if s.enqueue(b) {
			h.sent.Add(1)
			continue
		}
		slow = append(slow, s)
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.evicted.Add(1)
		h.logger.Warn("Dropping slow client", log.String("client_id", s.id), log.Uint64("seq", msg.Seq))
		h.unregister(s, ErrClientTooSlow)
	}
	return nil
}

// closeAll ends every session and refuses new ones.
func (h *hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*session, 0, len(h.clients))
	for id, s := range h.clients {
		sessions = append(sessions, s)
		delete(h.clients, id)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		s.close(nil)
	}
}

func (h *hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// FeedStats describes one outbound feed.
type FeedStats struct {
	Clients int    `json:"clients"`
	Sent    uint64 `json:"sent"`
	Evicted uint64 `json:"evicted"`
}

func (h *hub) stats() FeedStats {
	return FeedStats{Clients: h.Len(), Sent: h.sent.Load(), Evicted: h.evicted.Load()}
}
