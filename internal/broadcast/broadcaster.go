package broadcast

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pscheid92/livefeed/internal/domain"
)

// BroadcastResult summarizes one broadcast pass.
type BroadcastResult struct {
	Recipients int
	Delivered  int
	Failed     int
}

// Broadcast delivers payload to every client registered when the pass starts.
// Deliveries run independently per client; the ones that fail are removed
// together once all outcomes are known. Failed deliveries are not retried.
func (h *Hub) Broadcast(payload []byte) BroadcastResult {
	clients := h.Snapshot()
	result := BroadcastResult{Recipients: len(clients)}

	pending := make([]delivery, len(clients))
	for i, client := range clients {
		pending[i] = client.writer.enqueue(payload)
	}

	var failed []*Client
	for i, d := range pending {
		if err := d.wait(); err != nil {
			slog.Warn("Broadcast delivery failed", "client_id", clients[i].ID.String(), "error", err)
			h.recordFailure(err)
			failed = append(failed, clients[i])
			continue
		}
		result.Delivered++
	}
	result.Failed = len(failed)

	h.Unregister(failed...)

	if h.liveMetrics != nil {
		h.liveMetrics.BroadcastsTotal.Inc()
		h.liveMetrics.DeliveriesTotal.Add(float64(result.Delivered))
	}
	return result
}

// SendDirect delivers payload to a single client and removes it on failure.
func (h *Hub) SendDirect(client *Client, payload []byte) error {
	if client.writer == nil {
		return domain.ErrClientNotRegistered
	}

	if err := client.writer.enqueue(payload).wait(); err != nil {
		h.recordFailure(err)
		h.Unregister(client)
		return err
	}

	if h.liveMetrics != nil {
		h.liveMetrics.DeliveriesTotal.Inc()
	}
	return nil
}

// Publish implements domain.Publisher.
func (h *Hub) Publish(ctx context.Context, payload []byte) {
	result := h.Broadcast(payload)
	slog.DebugContext(ctx, "Broadcast complete",
		"recipients", result.Recipients,
		"delivered", result.Delivered,
		"failed", result.Failed,
	)
}

func (h *Hub) recordFailure(err error) {
	if h.liveMetrics == nil {
		return
	}

	reason := "write"
	switch {
	case errors.Is(err, domain.ErrSendQueueFull):
		reason = "queue_full"
	case errors.Is(err, domain.ErrWriterStopped):
		reason = "stopped"
	}
	h.liveMetrics.DeliveryFailures.WithLabelValues(reason).Inc()
}
