package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pscheid92/livefeed/internal/adapter/metrics"
	"github.com/pscheid92/livefeed/internal/domain"
)

// Service is the ingress side of the feed: it creates events and lists history.
type Service struct {
	store       domain.EventStore
	publisher   domain.Publisher
	listLimit   int
	feedMetrics *metrics.FeedMetrics
}

// NewService wires the store to the live channel publisher.
// listLimit caps ListUpdates. feedMetrics may be nil.
func NewService(store domain.EventStore, publisher domain.Publisher, listLimit int, feedMetrics *metrics.FeedMetrics) *Service {
	return &Service{
		store:       store,
		publisher:   publisher,
		listLimit:   listLimit,
		feedMetrics: feedMetrics,
	}
}

// CreateUpdate appends a new event and broadcasts it as a new-update envelope.
// The draft is stored as given; use domain.NewDraft for defaults.
// Delivery failures are handled per connection by the publisher and never
// reach the caller.
func (s *Service) CreateUpdate(ctx context.Context, draft domain.Draft) (domain.Event, error) {
	event := s.store.Append(draft)

	if s.feedMetrics != nil {
		s.feedMetrics.EventsCreated.Inc()
		s.feedMetrics.HistorySize.Set(float64(s.store.Len()))
	}

	payload, err := domain.NewUpdateEnvelope(event).Marshal()
	if err != nil {
		return event, fmt.Errorf("marshal new-update envelope: %w", err)
	}

	s.publisher.Publish(ctx, payload)

	slog.DebugContext(ctx, "Update created", "event_id", event.ID, "type", event.Category)
	return event, nil
}

// ListUpdates returns the most recent events, newest first.
func (s *Service) ListUpdates(_ context.Context) []domain.Event {
	return s.store.Recent(s.listLimit)
}

// Snapshot returns up to limit recent events for a newly connected client.
func (s *Service) Snapshot(limit int) []domain.Event {
	return s.store.Recent(limit)
}
