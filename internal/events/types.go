package events

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of hub event
type EventType string

const (
	// EventTypeSignal represents a processed-signal event
	EventTypeSignal EventType = "signal_processed"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a hub event sent to clients. Payloads carry only
// anonymized data.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalSignals     int64  `json:"total_signals"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents client connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
}

// ClientMessage represents messages sent from clients to the server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request. An empty
// Events list means all event types; an empty TenantID means all tenants.
type SubscriptionRequest struct {
	Events   []EventType `json:"events,omitempty"`
	TenantID string      `json:"tenant_id,omitempty"`
}

// Client represents a connected subscriber
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
}
