package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/livefeed/internal/domain"
)

// State is a session lifecycle stage.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one live connection: register, initial snapshot, then the
// read loop until the transport goes away.
type Session struct {
	hub          *Hub
	client       *Client
	snapshot     domain.SnapshotSource
	snapshotSize int
	state        atomic.Int32
	logger       *slog.Logger
}

// NewSession prepares a session for an upgraded connection.
// snapshotSize is the number of recent events sent as initial-updates.
func NewSession(hub *Hub, conn *websocket.Conn, snapshot domain.SnapshotSource, snapshotSize int) *Session {
	client := NewClient(conn)
	return &Session{
		hub:          hub,
		client:       client,
		snapshot:     snapshot,
		snapshotSize: snapshotSize,
		logger:       slog.With("client_id", client.ID.String()),
	}
}

// Client returns the registry entry backing this session.
func (s *Session) Client() *Client {
	return s.client
}

// State reports the current lifecycle stage.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run blocks until the session is closed. Failures end this session only.
func (s *Session) Run(ctx context.Context) {
	defer s.close()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Session panic recovered", "panic", r)
		}
	}()

	stop := context.AfterFunc(ctx, func() { _ = s.client.connection.Close() })
	defer stop()

	initial, err := s.hub.register(s.client, s.initialUpdates)
	if err != nil {
		s.logger.Warn("Failed to register client", "error", err)
		return
	}

	s.awaitInitialUpdates(initial)
	s.state.Store(int32(StateActive))

	s.readLoop()
}

// initialUpdates builds the snapshot frame. It runs on the hub goroutine
// during registration, so no new-update can be queued ahead of it.
func (s *Session) initialUpdates() []byte {
	events := s.snapshot.Snapshot(s.snapshotSize)

	payload, err := domain.InitialUpdatesEnvelope(events).Marshal()
	if err != nil {
		s.logger.Error("Failed to marshal initial updates", "error", err)
		return nil
	}
	s.logger.Debug("Initial updates queued", "events", len(events))
	return payload
}

// awaitInitialUpdates never ends the session: a client that misses its
// snapshot still receives live broadcasts.
func (s *Session) awaitInitialUpdates(initial *delivery) {
	if initial == nil {
		return
	}
	if err := initial.wait(); err != nil {
		s.logger.Error("Failed to send initial updates", "error", err)
	}
}

func (s *Session) readLoop() {
	for {
		_, data, err := s.client.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Warn("Read failed", "error", err)
			} else {
				s.logger.Debug("Connection closed", "reason", err)
			}
			return
		}

		s.client.writer.updateReadDeadline()

		if !s.handleMessage(data) {
			return
		}
	}
}

// handleMessage reports whether the session should keep reading.
func (s *Session) handleMessage(data []byte) bool {
	var msg domain.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("Ignoring non-JSON message", "size", len(data))
		return true
	}

	if msg.Type != domain.TypeHeartbeat {
		return true
	}

	s.logger.Info("Heartbeat received", "client_timestamp", string(msg.Timestamp))

	payload, err := domain.HeartbeatResponseEnvelope(s.hub.clock.Now().UnixMilli()).Marshal()
	if err != nil {
		s.logger.Error("Failed to marshal heartbeat response", "error", err)
		return true
	}

	if err := s.hub.SendDirect(s.client, payload); err != nil {
		s.logger.Warn("Failed to send heartbeat response", "error", err)
		return false
	}

	if s.hub.liveMetrics != nil {
		s.hub.liveMetrics.HeartbeatsTotal.Inc()
	}
	return true
}

func (s *Session) close() {
	s.state.Store(int32(StateClosed))
	s.hub.Unregister(s.client)
	_ = s.client.connection.Close()
}
