package broadcast

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is a live connection known to the Hub. ID is a diagnostic token only.
type Client struct {
	ID         uuid.UUID
	RemoteAddr string
	connection *websocket.Conn
	writer     *clientWriter
}

// NewClient wraps an upgraded connection. The writer starts on registration.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:         uuid.New(),
		RemoteAddr: conn.RemoteAddr().String(),
		connection: conn,
	}
}
