package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hydronet-io/hydrogate/internal/logger"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to. Empty binds all interfaces.
	Host string

	// Port is the TCP port. Zero picks an ephemeral port.
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// Server is the management API server.
type Server struct {
	cfg Config

	httpServer *http.Server
	listener   net.Listener

	shutdownOnce sync.Once
}

// NewServer creates the API server around the given handler set.
func NewServer(cfg Config, h *Handlers) *Server {
	cfg.applyDefaults()

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Handler:      NewRouter(h),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start binds the listener and serves until ctx is cancelled or the
// server fails. It blocks.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind API listener on %s: %w", addr, err)
	}
	s.listener = ln

	logger.Info("API server listening", logger.KeyBindAddr, ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return fmt.Errorf("API server error: %w", err)
	}
}

// Stop shuts the server down gracefully. Safe to call more than once.
func (s *Server) Stop() error {
	var err error
	s.shutdownOnce.Do(func() {
		logger.Info("shutting down API server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// Port returns the bound port, or zero before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}
