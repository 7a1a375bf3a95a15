package domain

import "encoding/json"

// Message types exchanged over the live channel.
const (
	TypeInitialUpdates    = "initial-updates"
	TypeNewUpdate         = "new-update"
	TypeHeartbeat         = "heartbeat"
	TypeHeartbeatResponse = "heartbeat-response"
)

// Envelope is the server-to-client frame: a type discriminator plus payload.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// HeartbeatData is the payload of a heartbeat-response envelope.
type HeartbeatData struct {
	Timestamp int64 `json:"timestamp"`
}

// InboundMessage is a client-to-server frame. Only Type is interpreted;
// Timestamp is kept raw for logging and may hold any JSON value.
type InboundMessage struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Marshal serializes the envelope for the wire.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// NewUpdateEnvelope wraps a freshly created event.
func NewUpdateEnvelope(event Event) Envelope {
	return Envelope{Type: TypeNewUpdate, Data: event}
}

// InitialUpdatesEnvelope wraps the snapshot sent once per connection.
// A nil slice is sent as an empty array.
func InitialUpdatesEnvelope(events []Event) Envelope {
	if events == nil {
		events = []Event{}
	}
	return Envelope{Type: TypeInitialUpdates, Data: events}
}

// HeartbeatResponseEnvelope answers a client heartbeat.
func HeartbeatResponseEnvelope(nowMillis int64) Envelope {
	return Envelope{Type: TypeHeartbeatResponse, Data: HeartbeatData{Timestamp: nowMillis}}
}
