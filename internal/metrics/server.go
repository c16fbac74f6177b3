package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/m3rciful/captionrelay/core/logger"
)

// Server serves /metrics and /healthz.
type Server struct {
	srv    *http.Server
	router *mux.Router
	ready  atomic.Bool
}

// NewServer builds the HTTP server for addr. path defaults to /metrics.
func NewServer(addr, path string, m *Metrics) *Server {
	if path == "" {
		path = "/metrics"
	}
	s := &Server{router: mux.NewRouter()}
	s.router.Handle(path, m.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// SetReady flips /healthz between 503 and 200.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("starting\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", s.srv.Addr, err)
	}
	logger.Info(ctx, "metrics", "metrics.listen", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics", "metrics.serve",
				slog.String("status", "fail"),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}
	return nil
}
