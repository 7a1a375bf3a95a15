package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livefeed/internal/adapter/metrics"
	"github.com/pscheid92/livefeed/internal/broadcast"
	"github.com/pscheid92/livefeed/internal/feed"
	"github.com/pscheid92/livefeed/internal/platform/config"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv     *Server
	hub     *broadcast.Hub
	feed    *feed.Service
	clock   *clockwork.FakeClock
	metrics *metrics.Set
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                       "test",
		Port:                         5001,
		PortRetryAttempts:            1,
		SnapshotSize:                 10,
		ListLimit:                    20,
		IngressRateLimit:             100,
		IngressRateBurst:             100,
		MaxWebSocketConnections:      100,
		MaxWebSocketConnectionsPerIP: 10,
		ShutdownTimeout:              time.Second,
	}
}

func withConfig(mutate func(*config.Config)) func(*config.Config) {
	return mutate
}

func newTestEnv(t *testing.T, healthChecks []HealthCheck, opts ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	// Writes use clock-based deadlines, so the fake clock starts at the real time.
	clock := clockwork.NewFakeClockAt(time.Now())
	set := metrics.NewSet()
	hub := broadcast.NewHub(clock, set.Live)
	t.Cleanup(hub.Stop)

	svc := feed.NewService(feed.NewMemoryStore(clock), hub, cfg.ListLimit, set.Feed)

	return &testEnv{
		srv:     NewServer(cfg, clock, svc, hub, set, healthChecks),
		hub:     hub,
		feed:    svc,
		clock:   clock,
		metrics: set,
	}
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return serve(env, req)
}

// liveURL serves the echo instance over a real listener and returns its ws:// base.
func (env *testEnv) liveURL(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(env.srv.echo)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialLive(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wireEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wireEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env wireEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.srv.echo.ServeHTTP(rec, req)
	return rec
}
