package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livefeed/internal/adapter/metrics"
	"github.com/pscheid92/livefeed/internal/broadcast"
	"github.com/pscheid92/livefeed/internal/domain"
	"github.com/pscheid92/livefeed/internal/platform/config"
)

type feedService interface {
	CreateUpdate(ctx context.Context, draft domain.Draft) (domain.Event, error)
	ListUpdates(ctx context.Context) []domain.Event
	Snapshot(limit int) []domain.Event
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	feed     feedService
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
	limits   *ConnectionLimits

	metrics      *metrics.Set
	healthChecks []HealthCheck
	startTime    time.Time

	mu       sync.Mutex
	listener net.Listener
}

// NewServer wires routes for ingress, listing, health and the live channel.
// metricSet may be nil, in which case /metrics is not served.
func NewServer(cfg *config.Config, clock clockwork.Clock, feed feedService, hub *broadcast.Hub, metricSet *metrics.Set, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:   e,
		config: cfg,
		clock:  clock,
		feed:   feed,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin may subscribe, matching the CORS policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		limits: NewConnectionLimits(clock, int64(cfg.MaxWebSocketConnections), cfg.MaxWebSocketConnectionsPerIP,
			liveConnectRate, liveConnectBurst),
		metrics:      metricSet,
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start binds the first free port in [Port, Port+PortRetryAttempts) and
// serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := listenWithRetry(ctx, s.config.Port, s.config.PortRetryAttempts)
	if err != nil {
		return fmt.Errorf("failed to bind listener: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.echo.Listener = ln
	slog.Info("Starting server", "addr", ln.Addr().String())
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Addr returns the bound address, or nil before Start has bound a port.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
