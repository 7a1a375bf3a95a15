package domain

import "context"

// EventStore is the bounded, newest-first history of recent events.
type EventStore interface {
	Append(draft Draft) Event
	Recent(limit int) []Event
	Len() int
}

// SnapshotSource provides the events a new live connection starts with.
type SnapshotSource interface {
	Snapshot(limit int) []Event
}

// Publisher fans a serialized envelope out to every live connection.
type Publisher interface {
	Publish(ctx context.Context, payload []byte)
}
