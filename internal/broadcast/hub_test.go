package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livefeed/internal/adapter/metrics"
	"github.com/pscheid92/livefeed/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := newTestHub(t)
	server, _ := upgradedPair(t)
	client := NewClient(server)

	require.NoError(t, hub.Register(client))
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(client)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_RegisterTwiceIsNoop(t *testing.T) {
	hub := newTestHub(t)
	server, _ := upgradedPair(t)
	client := NewClient(server)

	require.NoError(t, hub.Register(client))
	require.NoError(t, hub.Register(client))
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_InitialFrameIsQueuedBeforeBroadcasts(t *testing.T) {
	hub := newTestHub(t)
	server, conn := upgradedPair(t)
	client := NewClient(server)

	broadcastDone := make(chan BroadcastResult, 1)
	initial, err := hub.register(client, func() []byte {
		// This pass can only snapshot membership after registration completes.
		go func() { broadcastDone <- hub.Broadcast([]byte(`{"type":"new-update"}`)) }()
		return []byte(`{"type":"initial-updates","data":[]}`)
	})
	require.NoError(t, err)
	require.NotNil(t, initial)
	require.NoError(t, initial.wait())

	assert.JSONEq(t, `{"type":"initial-updates","data":[]}`, string(readRaw(t, conn)))
	assert.JSONEq(t, `{"type":"new-update"}`, string(readRaw(t, conn)))
	assert.Equal(t, BroadcastResult{Recipients: 1, Delivered: 1}, <-broadcastDone)
}

func TestHub_InitialFrameSkippedWhenAlreadyRegistered(t *testing.T) {
	hub := newTestHub(t)
	server, _ := upgradedPair(t)
	client := NewClient(server)
	require.NoError(t, hub.Register(client))

	called := false
	initial, err := hub.register(client, func() []byte {
		called = true
		return []byte(`{}`)
	})
	require.NoError(t, err)
	assert.Nil(t, initial)
	assert.False(t, called)
}

func TestHub_InitialFrameNilPayload(t *testing.T) {
	hub := newTestHub(t)
	server, _ := upgradedPair(t)

	initial, err := hub.register(NewClient(server), func() []byte { return nil })
	require.NoError(t, err)
	assert.Nil(t, initial)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := newTestHub(t)
	server, _ := upgradedPair(t)
	client := NewClient(server)
	require.NoError(t, hub.Register(client))

	hub.Unregister(client)
	hub.Unregister(client)
	hub.Unregister()

	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_UnregisterUnknownClient(t *testing.T) {
	hub := newTestHub(t)
	server, _ := upgradedPair(t)

	hub.Unregister(NewClient(server))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_RemovedClientCannotReturn(t *testing.T) {
	hub := newTestHub(t)
	server, _ := upgradedPair(t)
	client := NewClient(server)
	require.NoError(t, hub.Register(client))
	hub.Unregister(client)

	err := hub.Register(client)
	assert.ErrorIs(t, err, domain.ErrClientClosed)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_SnapshotIsACopy(t *testing.T) {
	hub := newTestHub(t)
	server, _ := upgradedPair(t)
	client := NewClient(server)
	require.NoError(t, hub.Register(client))

	snapshot := hub.Snapshot()
	require.Len(t, snapshot, 1)
	hub.Unregister(client)

	assert.Len(t, snapshot, 1)
	assert.Equal(t, client.ID, snapshot[0].ID)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_Ping(t *testing.T) {
	hub := NewHub(clockwork.NewRealClock(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Ping(ctx))

	hub.Stop()
	assert.ErrorIs(t, hub.Ping(ctx), domain.ErrHubStopped)
}

func TestHub_StopSendsCloseFrameAndRejectsNewClients(t *testing.T) {
	hub := NewHub(clockwork.NewRealClock(), nil)
	server, conn := upgradedPair(t)
	require.NoError(t, hub.Register(NewClient(server)))

	hub.Stop()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, shutdownReason, closeErr.Text)

	otherServer, _ := upgradedPair(t)
	assert.ErrorIs(t, hub.Register(NewClient(otherServer)), domain.ErrHubStopped)
	assert.Nil(t, hub.Snapshot())
	assert.Equal(t, 0, hub.ClientCount())

	// Unregister after stop returns instead of blocking.
	hub.Unregister(NewClient(otherServer))
	hub.Stop()
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub := newTestHub(t)

	var conns []*websocket.Conn
	for _i := 0; _i < 3; _i++ {
		server, conn := upgradedPair(t)
		require.NoError(t, hub.Register(NewClient(server)))
		conns = append(conns, conn)
	}

	payload := []byte(`{"type":"new-update","data":{"id":1}}`)
	result := hub.Broadcast(payload)

	assert.Equal(t, BroadcastResult{Recipients: 3, Delivered: 3, Failed: 0}, result)
	for _, conn := range conns {
		assert.Equal(t, payload, readRaw(t, conn))
	}
	assert.Equal(t, 3, hub.ClientCount())
}

func TestHub_BroadcastWithNoClients(t *testing.T) {
	hub := newTestHub(t)
	assert.Equal(t, BroadcastResult{}, hub.Broadcast([]byte(`{}`)))
}

func TestHub_BroadcastRemovesFailedClientOnly(t *testing.T) {
	set := metrics.NewSet()
	hub := NewHub(clockwork.NewRealClock(), set.Live)
	t.Cleanup(hub.Stop)

	var servers []*websocket.Conn
	var conns []*websocket.Conn
	for _i := 0; _i < 3; _i++ {
		server, conn := upgradedPair(t)
		require.NoError(t, hub.Register(NewClient(server)))
		servers = append(servers, server)
		conns = append(conns, conn)
	}

	// Break one transport underneath the hub.
	require.NoError(t, servers[1].UnderlyingConn().Close())

	result := hub.Broadcast([]byte(`{"type":"new-update"}`))

	assert.Equal(t, 3, result.Recipients)
	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, hub.ClientCount())

	readRaw(t, conns[0])
	readRaw(t, conns[2])

	assert.InDelta(t, 1, testutil.ToFloat64(set.Live.DeliveryFailures.WithLabelValues("write")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(set.Live.DeliveriesTotal), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(set.Live.ActiveConnections), 0)

	// Survivors keep receiving.
	second := hub.Broadcast([]byte(`{"type":"new-update","n":2}`))
	assert.Equal(t, BroadcastResult{Recipients: 2, Delivered: 2}, second)
}

func TestHub_SendDirect(t *testing.T) {
	hub := newTestHub(t)
	server, conn := upgradedPair(t)
	client := NewClient(server)

	assert.ErrorIs(t, hub.SendDirect(client, []byte(`{}`)), domain.ErrClientNotRegistered)

	require.NoError(t, hub.Register(client))
	require.NoError(t, hub.SendDirect(client, []byte(`{"type":"heartbeat-response"}`)))
	assert.JSONEq(t, `{"type":"heartbeat-response"}`, string(readRaw(t, conn)))
}

func TestHub_SendDirectFailureRemovesClient(t *testing.T) {
	hub := newTestHub(t)
	server, _ := upgradedPair(t)
	client := NewClient(server)
	require.NoError(t, hub.Register(client))

	require.NoError(t, server.UnderlyingConn().Close())

	require.Error(t, hub.SendDirect(client, []byte(`{}`)))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_PublishBroadcasts(t *testing.T) {
	hub := newTestHub(t)
	server, conn := upgradedPair(t)
	require.NoError(t, hub.Register(NewClient(server)))

	var publisher domain.Publisher = hub
	publisher.Publish(context.Background(), []byte(`{"type":"new-update"}`))

	assert.JSONEq(t, `{"type":"new-update"}`, string(readRaw(t, conn)))
}
