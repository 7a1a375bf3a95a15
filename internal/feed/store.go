package feed

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livefeed/internal/domain"
)

// Capacity is the number of events retained. Older events are evicted.
const Capacity = 100

// MemoryStore is a bounded ring of events. Index head points at the newest entry.
type MemoryStore struct {
	mu     sync.RWMutex
	clock  clockwork.Clock
	events [Capacity]domain.Event
	head   int
	size   int
	lastID int64
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{clock: clock, head: -1}
}

// Append finalizes the draft and stores it at the front, evicting the oldest
// entry once Capacity is reached. Creation time is kept at millisecond
// precision. IDs are creation milliseconds, bumped when needed so they stay
// strictly increasing.
func (s *MemoryStore) Append(draft domain.Draft) domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC().Truncate(time.Millisecond)
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	event := domain.Event{
		ID:        id,
		Message:   draft.Message,
		Category:  draft.Category,
		Title:     draft.Title,
		CreatedAt: now,
	}

	s.head = (s.head + 1) % Capacity
	s.events[s.head] = event
	if s.size < Capacity {
		s.size++
	}
	return event
}

// Recent returns up to limit events, newest first. The result is a copy.
func (s *MemoryStore) Recent(limit int) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit > s.size {
		limit = s.size
	}
	if limit <= 0 {
		return []domain.Event{}
	}

	out := make([]domain.Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.events[(s.head-i+Capacity)%Capacity]
	}
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}
