package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/webthing-gateway/internal/infrastructure/config"
	"github.com/nerrad567/webthing-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/webthing-gateway/internal/thing"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionStatus reports whether an upstream link is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// DBStatsProvider exposes connection pool statistics.
type DBStatsProvider interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Things   []*thing.Thing
	// Multiple serves each Thing under /{index} with a listing at /.
	Multiple bool
	Version  string

	// Optional, reported by /metrics when set.
	MQTT ConnectionStatus
	DB   DBStatsProvider
}

// Server serves one or more Things over HTTP and WebSocket.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	things       []*thing.Thing
	multiple     bool
	version      string
	mqtt         ConnectionStatus
	db           DBStatsProvider
	allowedHosts map[string]struct{}
	startTime    time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	hub      *Hub
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// In multiple mode each Thing's href prefix is set to "/{index}"; otherwise
// the single Thing is served at the root.
//
// Parameters:
//   - deps: Required dependencies (config, logger, things)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if len(deps.Things) == 0 {
		return nil, fmt.Errorf("at least one thing is required")
	}
	if !deps.Multiple && len(deps.Things) > 1 {
		return nil, fmt.Errorf("serving %d things requires multiple mode", len(deps.Things))
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		things:       deps.Things,
		multiple:     deps.Multiple,
		version:      deps.Version,
		mqtt:         deps.MQTT,
		db:           deps.DB,
		allowedHosts: make(map[string]struct{}, len(deps.Config.AllowedHosts)),
		startTime:    time.Now(),
	}
	for _, h := range deps.Config.AllowedHosts {
		s.allowedHosts[strings.ToLower(h)] = struct{}{}
	}

	if s.multiple {
		for i, t := range s.things {
			t.SetHrefPrefix("/" + strconv.Itoa(i))
		}
	} else {
		s.things[0].SetHrefPrefix("")
	}

	return s, nil
}

// Start binds the listener and serves in the background.
//
// The listener is bound before Start returns, so a port conflict is
// reported here and Addr is valid afterwards.
//
// Parameters:
//   - ctx: Parent context for the hub; cancelling it disconnects WebSocket clients
//
// Returns:
//   - error: If the server fails to bind (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String(), "things", len(s.things))
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the bound TCP port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Close gracefully shuts down the API server.
//
// WebSocket clients are disconnected first, then in-flight requests get
// up to gracefulShutdownTimeout to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, cancelTimeout := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancelTimeout()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// Things returns the served Things in index order.
func (s *Server) Things() []*thing.Thing {
	return s.things
}
