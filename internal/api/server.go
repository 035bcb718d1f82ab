package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/pool-logic-core/internal/hub"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/config"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/logging"
	"github.com/nerrad567/pool-logic-core/internal/model"
	"github.com/nerrad567/pool-logic-core/internal/pump"
	"github.com/nerrad567/pool-logic-core/internal/resilience"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the engine surface the API serves. Implemented by the
// engine session; narrowed to an interface so handlers are testable
// against a fake.
type Controller interface {
	Discover(ctx context.Context) error
	EntityIDs() map[string][]string
	CircuitState(id string) (model.Circuit, bool)
	BodyState(id string) (model.Body, bool)
	HeaterState(id string) (model.Heater, bool)
	SensorState(id string) (model.Sensor, bool)
	PumpTelemetry(id string) (model.Pump, pump.Metrics, bool)
	SetCircuitState(ctx context.Context, circuitID string, on bool) error
	SetSetpoint(ctx context.Context, bodyID string, temp float64) error
	SetHeatMode(ctx context.Context, bodyID string, mode int) error
	SendCommand(ctx context.Context, objName string, params map[string]any) error
	DeadLetters() []resilience.DeadLetter
	Health() resilience.HealthSnapshot
	HubStats() hub.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Controller Controller
	Version    string
}

// Server is the HTTP API for the integration service.
//
// It serves entity reads, the guarded command surface, diagnostics, and
// a WebSocket stream of entity updates. Created with New(), started with
// Start(), stopped with Close().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	controller Controller
	version    string
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc
}

// New creates an API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		controller: deps.Controller,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server is stopped with Close().
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.logger)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// EntityUpdated broadcasts an entity change to WebSocket subscribers.
// Implements the engine's notifier contract; never blocks.
func (s *Server) EntityUpdated(kind, id string) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast("entity.updated", map[string]string{"kind": kind, "id": id})
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
