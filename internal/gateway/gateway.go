// Package gateway exposes one engine session over HTTP: an embedded
// chat UI, a REST+SSE API mirroring the engine's event stream, a
// WebSocket mirror, and operational endpoints. All chat endpoints
// share the session, serialized so one deliberation runs at a time.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentd-dev/agentd/internal/engine"
	"github.com/agentd-dev/agentd/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Server serves the agent over HTTP.
type Server struct {
	session   *engine.Session
	log       *slog.Logger
	metrics   *metrics.Metrics
	version   string
	startedAt time.Time

	// chatMu serializes deliberations; the engine holds one
	// conversation and one pending approval slot.
	chatMu      sync.Mutex
	autoApprove atomic.Bool

	server *http.Server
}

// Options carries the optional collaborators for a Server.
type Options struct {
	Metrics *metrics.Metrics
	Version string
	Log     *slog.Logger
}

// New builds a Server around an engine session.
func New(session *engine.Session, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		session:   session,
		log:       log,
		metrics:   opts.Metrics,
		version:   version,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler. Exposed so tests can drive the
// API through httptest without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleIndex)
	r.Get("/index*", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/chat_stream", s.handleChatStream)
		r.Post("/chat", s.handleChat)
		r.Post("/approve", s.handleApprove)
		r.Get("/auto_approve", s.handleAutoApproveGet)
		r.Post("/auto_approve", s.handleAutoApprovePost)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Not Found"))
	})

	return r
}

// Run listens on addr and serves until ctx is cancelled, then shuts
// down gracefully. SSE and WebSocket responses stay open for the life
// of a deliberation, so the server carries no write deadline; only
// header reads are bounded.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gateway listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("gateway shutting down")
	return s.server.Shutdown(shutdownCtx)
}
