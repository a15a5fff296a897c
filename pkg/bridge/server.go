package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ntbridge/ntbridge-go/pkg/metrics"
	"github.com/ntbridge/ntbridge-go/pkg/session"
)

// StatusFunc reports the session status for /healthz.
type StatusFunc func() session.Status

// Server is the bridge's HTTP server.
type Server struct {
	hub     *Hub
	status  StatusFunc
	metrics *metrics.Metrics
	logger  *slog.Logger

	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewServer creates the HTTP server for hub. mt and status may be nil.
func NewServer(hub *Hub, status StatusFunc, mt *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{hub: hub, status: status, metrics: mt, logger: logger}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", s.handleHealth)
	if mt != nil {
		mux.Handle("/metrics", mt.Handler())
	}
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Handler returns the HTTP handler, for embedding in tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge listen: %w", err)
	}
	s.listener = l
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("bridge server stopped", "error", err)
		}
	}()

	s.logger.Info("bridge listening", "address", l.Addr().String())
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting requests, disconnects UI clients and waits for
// the server to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.hub.Close()
	if s.done != nil {
		<-s.done
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var st session.Status
	if s.status != nil {
		st = s.status()
	}
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.Debug("healthz encode", "error", err)
	}
}
