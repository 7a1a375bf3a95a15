package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livefeed/internal/adapter/metrics"
	"github.com/pscheid92/livefeed/internal/domain"
)

const (
	commandBufferSize = 256
	stopTimeout       = 10 * time.Second
	shutdownReason    = "server shutting down"
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	client       *Client
	initial      func() []byte
	replyChannel chan registerReply
}

type registerReply struct {
	err     error
	initial *delivery
}

type unregisterCmd struct {
	baseHubCmd
	clients      []*Client
	replyChannel chan struct{}
}

type snapshotCmd struct {
	baseHubCmd
	replyChannel chan []*Client
}

type stopCmd struct {
	baseHubCmd
}

// Hub is the connection registry. Membership is owned by the run goroutine;
// every mutation and read goes through cmdCh.
type Hub struct {
	cmdCh       chan hubCmd
	clock       clockwork.Clock
	clients     map[uuid.UUID]*Client
	liveMetrics *metrics.LiveMetrics
	done        chan struct{}
	stopTimeout time.Duration
}

// NewHub creates a hub and starts its actor goroutine. liveMetrics may be nil.
func NewHub(clock clockwork.Clock, liveMetrics *metrics.LiveMetrics) *Hub {
	h := &Hub{
		cmdCh:       make(chan hubCmd, commandBufferSize),
		clock:       clock,
		clients:     make(map[uuid.UUID]*Client),
		liveMetrics: liveMetrics,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go h.run()
	return h
}

// Register adds a client and starts its writer. Registering the same client
// twice is a no-op.
func (h *Hub) Register(client *Client) error {
	_, err := h.register(client, nil)
	return err
}

// register adds client and, when initial is set, queues its payload as the
// first frame before the client becomes visible to broadcasts. The returned
// delivery is nil when nothing was queued.
func (h *Hub) register(client *Client, initial func() []byte) (*delivery, error) {
	replyCh := make(chan registerReply, 1)
	if !h.send(registerCmd{client: client, initial: initial, replyChannel: replyCh}) {
		return nil, domain.ErrHubStopped
	}

	select {
	case reply := <-replyCh:
		return reply.initial, reply.err
	case <-h.done:
		return nil, domain.ErrHubStopped
	}
}

// Unregister removes clients, stopping their writers and closing their
// transports. Unknown clients are ignored. Blocks until applied.
func (h *Hub) Unregister(clients ...*Client) {
	if len(clients) == 0 {
		return
	}

	replyCh := make(chan struct{})
	if !h.send(unregisterCmd{clients: clients, replyChannel: replyCh}) {
		return
	}

	select {
	case <-replyCh:
	case <-h.done:
	}
}

// Snapshot returns a point-in-time copy of the registered clients.
func (h *Hub) Snapshot() []*Client {
	replyCh := make(chan []*Client, 1)
	if !h.send(snapshotCmd{replyChannel: replyCh}) {
		return nil
	}

	select {
	case clients := <-replyCh:
		return clients
	case <-h.done:
		return nil
	}
}

// Ping round-trips a command through the actor. It fails once the hub is
// stopped or when ctx ends before the actor answers.
func (h *Hub) Ping(ctx context.Context) error {
	replyCh := make(chan []*Client, 1)
	select {
	case h.cmdCh <- snapshotCmd{replyChannel: replyCh}:
	case <-h.done:
		return domain.ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-replyCh:
		return nil
	case <-h.done:
		return domain.ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	return len(h.Snapshot())
}

// Stop closes every client with a close frame and ends the actor goroutine.
// Blocks until the goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	if !h.send(stopCmd{}) {
		return
	}

	timeout := h.clock.NewTimer(h.stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", h.stopTimeout)
	}
}

func (h *Hub) send(cmd hubCmd) bool {
	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAllClients("internal error")
		}
	}()

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			for _, client := range c.clients {
				h.handleUnregister(client)
			}
			close(c.replyChannel)
		case snapshotCmd:
			clients := make([]*Client, 0, len(h.clients))
			for _, client := range h.clients {
				clients = append(clients, client)
			}
			c.replyChannel <- clients
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if _, exists := h.clients[c.client.ID]; exists {
		c.replyChannel <- registerReply{}
		return
	}

	// A removed client stays removed; reconnecting means a new handshake.
	if c.client.writer != nil {
		c.replyChannel <- registerReply{err: domain.ErrClientClosed}
		return
	}

	c.client.writer = newClientWriter(c.client.connection, h.clock, h.liveMetrics)

	var initial *delivery
	if c.initial != nil {
		if payload := c.initial(); payload != nil {
			d := c.client.writer.enqueue(payload)
			initial = &d
		}
	}
	h.clients[c.client.ID] = c.client

	if h.liveMetrics != nil {
		h.liveMetrics.ActiveConnections.Set(float64(len(h.clients)))
		h.liveMetrics.ConnectionsTotal.Inc()
	}

	slog.Info("Client connected", "client_id", c.client.ID.String(), "remote_addr", c.client.RemoteAddr, "total_clients", len(h.clients))
	c.replyChannel <- registerReply{initial: initial}
}

func (h *Hub) handleUnregister(client *Client) {
	registered, exists := h.clients[client.ID]
	if !exists {
		return
	}

	registered.writer.stop()
	delete(h.clients, client.ID)

	if h.liveMetrics != nil {
		h.liveMetrics.ActiveConnections.Set(float64(len(h.clients)))
	}

	slog.Info("Client disconnected", "client_id", client.ID.String(), "remaining_clients", len(h.clients))
}

func (h *Hub) handleStop() {
	total := len(h.clients)
	slog.Info("Hub shutting down", "total_clients", total)

	h.closeAllClients(shutdownReason)

	slog.Info("Hub shutdown complete", "disconnected_clients", total)
}

// closeAllClients closes all client connections with the given reason.
// Used during panic recovery and graceful shutdown.
func (h *Hub) closeAllClients(reason string) {
	for id, client := range h.clients {
		if client.writer != nil {
			client.writer.stopGraceful(reason)
		}
		delete(h.clients, id)
	}
	if h.liveMetrics != nil {
		h.liveMetrics.ActiveConnections.Set(0)
	}
}
