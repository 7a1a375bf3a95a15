package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livefeed/internal/adapter/metrics"
	"github.com/pscheid92/livefeed/internal/domain"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type fakeSnapshot struct {
	events []domain.Event
}

func (f fakeSnapshot) Snapshot(limit int) []domain.Event {
	if limit > len(f.events) {
		limit = len(f.events)
	}
	out := make([]domain.Event, limit)
	copy(out, f.events[:limit])
	return out
}

// liveServer runs a Session per upgraded request, the way the HTTP adapter does.
type liveServer struct {
	hub      *Hub
	url      string
	sessions chan *Session
}

func newLiveServer(t *testing.T, clock clockwork.Clock, liveMetrics *metrics.LiveMetrics, source domain.SnapshotSource, snapshotSize int) *liveServer {
	t.Helper()

	hub := NewHub(clock, liveMetrics)
	t.Cleanup(hub.Stop)

	ls := &liveServer{hub: hub, sessions: make(chan *Session, 16)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		session := NewSession(hub, conn, source, snapshotSize)
		ls.sessions <- session
		session.Run(r.Context())
	}))
	t.Cleanup(srv.Close)

	ls.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return ls
}

func (ls *liveServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(ls.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// dialReady connects and consumes the initial-updates frame, which the
// server only sends once the client is registered.
func (ls *liveServer) dialReady(t *testing.T) *websocket.Conn {
	t.Helper()
	conn := ls.dial(t)
	msgType, _ := readEnvelope(t, conn)
	require.Equal(t, domain.TypeInitialUpdates, msgType)
	return conn
}

func (ls *liveServer) nextSession(t *testing.T) *Session {
	t.Helper()
	select {
	case s := <-ls.sessions:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no session started")
		return nil
	}
}

type wireEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env wireEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env.Type, env.Data
}

func readRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

// upgradedPair returns the server and client ends of one connection with
// no session attached, so tests can drive the hub directly.
func upgradedPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server := <-serverConns:
		t.Cleanup(func() { _ = server.Close() })
		return server, client
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade did not complete")
		return nil, nil
	}
}

func waitForClientCount(t *testing.T, hub *Hub, expected int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == expected
	}, 2*time.Second, 10*time.Millisecond, "expected %d clients", expected)
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(clockwork.NewRealClock(), nil)
	t.Cleanup(hub.Stop)
	return hub
}
