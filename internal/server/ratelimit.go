package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/zeusync/navsim/internal/core/observability/log"
)

// commandLimiter caps the number of commands (cmd_vel, initialpose) a single
// client may issue per window. A nil limiter allows everything.
type commandLimiter struct {
	logger  log.Log
	limit   int
	window  time.Duration
	now     func() time.Time
	clients sync.Map // client key -> *clientRateLimit
}

type clientRateLimit struct {
	mu     sync.Mutex
	count  int
	window time.Time
}

// newCommandLimiter returns nil when perSecond is not positive.
func newCommandLimiter(perSecond int, logger log.Log) *commandLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &commandLimiter{
		logger: logger,
		limit:  perSecond,
		window: time.Second,
		now:    time.Now,
	}
}

// allow counts one command for key and reports whether it fits the window.
func (l *commandLimiter) allow(key, kind string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	v, _ := l.clients.LoadOrStore(key, &clientRateLimit{window: now})
	cl := v.(*clientRateLimit)

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if now.Sub(cl.window) >= l.window {
		cl.count = 0
		cl.window = now
	}
	if cl.count >= l.limit {
		l.logger.Debug("Command rate limit exceeded",
			log.String("client", key),
			log.String("type", kind),
			log.Int("limit", l.limit))
		return false
	}
	cl.count++
	return true
}

func (l *commandLimiter) forget(key string) {
	if l == nil {
		return
	}
	l.clients.Delete(key)
}

// remoteKey groups HTTP callers by host so that each new TCP connection does
// not get a fresh window.
func remoteKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return "http:" + host
}
