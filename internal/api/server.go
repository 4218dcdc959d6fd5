package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/flora-core/internal/broadcast"
	"github.com/nerrad567/flora-core/internal/command"
	"github.com/nerrad567/flora-core/internal/device"
	"github.com/nerrad567/flora-core/internal/infrastructure/config"
	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
	"github.com/nerrad567/flora-core/internal/infrastructure/metrics"
	"github.com/nerrad567/flora-core/internal/ingest"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionStatus reports whether an optional transport is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Hub      *broadcast.Hub
	Ingest   *ingest.Handler
	Relay    *command.Relay
	Metrics  *metrics.Metrics // optional
	MQTT     ConnectionStatus // optional
	Version  string
}

// Server is the HTTP server for Flora Core.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	registry  *device.Registry
	hub       *broadcast.Hub
	ingest    *ingest.Handler
	relay     *command.Relay
	metrics   *metrics.Metrics
	mqtt      ConnectionStatus
	version   string
	startTime time.Time
	server    *http.Server
	cancel    context.CancelFunc
}

// New validates deps and creates a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("device registry is required")
	case deps.Hub == nil:
		return nil, fmt.Errorf("broadcast hub is required")
	case deps.Ingest == nil:
		return nil, fmt.Errorf("ingest handler is required")
	case deps.Relay == nil:
		return nil, fmt.Errorf("command relay is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		registry:  deps.Registry,
		hub:       deps.Hub,
		ingest:    deps.Ingest,
		relay:     deps.Relay,
		metrics:   deps.Metrics,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start runs the hub and begins listening in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close stops the hub, which disconnects viewers, then drains HTTP requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
