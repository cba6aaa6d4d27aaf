package realtime

import "time"

// Event names pushed to connected clients.
const (
	EventNotificationReceived = "notification.received"
	EventNotificationRead     = "notification.read"
	EventUserConnected        = "user.connected"
	EventUserDisconnected     = "user.disconnected"
	EventPong                 = "pong"
)

// Event is a JSON payload delivered to websocket subscribers.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// NotificationPayload is the wire form of a pushed notification.
type NotificationPayload struct {
	ID         int64          `json:"id"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Type       string         `json:"type"`
	ImageURL   string         `json:"image_url,omitempty"`
	ActionText string         `json:"action_text,omitempty"`
	ActionURL  string         `json:"action_url,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ConnectedPayload announces a joined user to all subscribers.
type ConnectedPayload struct {
	Username     string `json:"username"`
	ConnectionID string `json:"connection_id"`
}
