package server

import "errors"

// Server-specific errors
var (
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrInvalidConfig        = errors.New("invalid server configuration")
	ErrListenerFailed       = errors.New("failed to create listener")
	ErrClientTooSlow        = errors.New("client is not keeping up with the feed")
	ErrRateLimited          = errors.New("command rate limit exceeded")
)
