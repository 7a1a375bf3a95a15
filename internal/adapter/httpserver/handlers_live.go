package httpserver

import (
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livefeed/internal/broadcast"
	apperrors "github.com/pscheid92/livefeed/internal/platform/errors"
)

const errLiveRequiresUpgrade = "WebSocket endpoint requires WebSocket protocol"

func (s *Server) registerLiveRoutes() {
	s.echo.GET("/socket.io", s.handleLive)
	s.echo.GET("/socket.io/", s.handleLive)
	s.echo.GET("/ws", s.handleLive)
	s.echo.GET("/ws/*", s.handleLive)
}

// handleLive upgrades the request and runs a session until the
// connection ends. Plain GETs are answered with a 400.
func (s *Server) handleLive(c echo.Context) error {
	if !websocket.IsWebSocketUpgrade(c.Request()) {
		return apperrors.ValidationError(errLiveRequiresUpgrade)
	}

	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		return apperrors.UnavailableError("too many live connections").
			WithField("reason", string(reason)).
			WithField("ip", ip)
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		slog.WarnContext(c.Request().Context(), "WebSocket upgrade failed", "error", err, "ip", ip)
		return nil
	}

	session := broadcast.NewSession(s.hub, conn, s.feed, s.config.SnapshotSize)
	session.Run(c.Request().Context())
	return nil
}
