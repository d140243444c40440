package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zeusync/navsim/internal/core/events/bus"
	"github.com/zeusync/navsim/internal/core/landmark"
	"github.com/zeusync/navsim/internal/core/motion"
	"github.com/zeusync/navsim/internal/core/observability/log"
	"github.com/zeusync/navsim/internal/core/observability/metrics"
)

const maxBodyBytes = 64 * 1024

// Handler returns the HTTP routes, including the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /cmd_vel", s.handleCmdVel)
	mux.HandleFunc("POST /initialpose", s.handleInitialPose)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /landmarks", s.handleLandmarks)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws", s.ws.handleWebSocket)
	return withRequestLogging(s.logger, mux)
}

func (s *Server) handleCmdVel(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(remoteKey(r), TypeCmdVel) {
		s.writeError(w, http.StatusTooManyRequests, ErrRateLimited)
		return
	}
	var twist Twist
	if err := decodeBody(w, r, &twist); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.sim.SetCommand(twist.Velocity()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInitialPose(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(remoteKey(r), TypeInitialPose) {
		s.writeError(w, http.StatusTooManyRequests, ErrRateLimited)
		return
	}
	var msg PoseWithCovarianceStamped
	if err := decodeBody(w, r, &msg); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	pose, err := msg.Pose2D()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.sim.Reset(pose); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	frame, ok := s.sim.Latest()
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New("no frame published yet"))
		return
	}
	s.writeJSON(w, http.StatusOK, NewFrameMessage(frame))
}

type landmarksResponse struct {
	Fingerprint string              `json:"fingerprint"`
	Landmarks   []landmark.Landmark `json:"landmarks"`
}

func (s *Server) handleLandmarks(w http.ResponseWriter, r *http.Request) {
	store := s.sim.Landmarks()
	etag := `"` + store.Fingerprint() + `"`
	w.Header().Set("ETag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	s.writeJSON(w, http.StatusOK, landmarksResponse{
		Fingerprint: store.Fingerprint(),
		Landmarks:   store.All(),
	})
}

// healthResponse omits LastTick before the first tick.
type healthResponse struct {
	Status    string               `json:"status"`
	Phase     string               `json:"phase"`
	Ticks     uint64               `json:"ticks"`
	Rejected  uint64               `json:"rejected"`
	LastTick  *time.Time           `json:"last_tick,omitempty"`
	Landmarks int                  `json:"landmarks"`
	Feeds     Stats                `json:"feeds"`
	Bus       bus.EventBusMetrics  `json:"bus"`
	Events    *metrics.BusSnapshot `json:"events,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.sim.Snapshot()
	resp := healthResponse{
		Status:    "ok",
		Phase:     snap.Phase.String(),
		Ticks:     snap.Ticks,
		Rejected:  snap.Rejected,
		Landmarks: s.sim.Landmarks().Len(),
		Feeds:     s.GetStats(),
		Bus:       s.bus.GetMetrics(),
	}
	if !snap.LastTick.IsZero() {
		resp.LastTick = &snap.LastTick
	}
	if s.metrics != nil {
		events := s.metrics.Snapshot()
		resp.Events = &events
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, motion.ErrPrecondition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("Failed to write response", log.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorMessage{Error: err.Error()})
}
