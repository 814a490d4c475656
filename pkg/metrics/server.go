package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// DefaultPath is where the exporter is mounted when no path is configured.
const DefaultPath = "/metrics"

// Server is a standalone exporter for processes without an HTTP API of
// their own, such as the Kafka indexer.
type Server struct {
	path   string
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

func NewServer(port int, path string) *Server {
	if path == "" {
		path = DefaultPath
	}
	s := &Server{
		path:   path,
		logger: slog.Default().With("component", "metrics-server"),
	}
	mux := http.NewServeMux()
	mux.Handle("GET "+path, Handler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "textindex exporter, scrape %s\n", path)
	})
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start binds the port, so a taken port is reported to the caller, and
// serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener on %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	s.logger.Info("metrics server listening", "addr", ln.Addr().String(), "path", s.path)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address; empty before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
