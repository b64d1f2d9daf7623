package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

type Option func(*http.Server)

// WithErrorLog routes net/http's internal errors through slog.
func WithErrorLog(logger *slog.Logger) Option {
	return func(s *http.Server) {
		s.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelError)
	}
}

// WithWriteTimeout bounds how long a handler may take to respond. It must
// exceed the provider timeout or POST /verify is cut off mid-call.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *http.Server) {
		if d > 0 {
			s.WriteTimeout = d
		}
	}
}

// New builds the HTTP server. Webhook and verify bodies are small, so reads
// are kept short.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
