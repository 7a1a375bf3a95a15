package domain

import (
	"encoding/json"
	"time"
)

const (
	DefaultCategory = "info"
	DefaultTitle    = "Update"
)

// TimestampLayout is RFC 3339 in UTC with exactly three fractional digits.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Event is an immutable update record. The JSON shape is what live channel
// clients and the listing endpoint consume.
type Event struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Category  string    `json:"type"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"timestamp"`
}

// MarshalJSON writes CreatedAt with fixed millisecond precision.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return json.Marshal(struct {
		plain
		CreatedAt string `json:"timestamp"`
	}{
		plain:     plain(e),
		CreatedAt: e.CreatedAt.UTC().Format(TimestampLayout),
	})
}

// Draft is a candidate event before the store assigns id and creation time.
// Its fields are stored as given.
type Draft struct {
	Message  string
	Category string
	Title    string
}

// NewDraft builds a draft, defaulting category and title only when they
// are absent. Explicit empty strings are kept.
func NewDraft(message string, category, title *string) Draft {
	d := Draft{Message: message, Category: DefaultCategory, Title: DefaultTitle}
	if category != nil {
		d.Category = *category
	}
	if title != nil {
		d.Title = *title
	}
	return d
}
