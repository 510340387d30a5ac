package models

import (
	"encoding/json"
	"time"
)

const (
	AlertOpen     = "open"
	AlertAck      = "ack"
	AlertResolved = "resolved"
)

const (
	EventAck     = "ACK"
	EventResolve = "RESOLVE"
	EventUpdate  = "UPDATE"
)

// AlertState is the part of an alert a transition reads and writes.
type AlertState struct {
	ID             string
	Status         string
	AcknowledgedAt *time.Time
	AcknowledgedBy *string
	ResolvedAt     *time.Time
	ResolvedBy     *string
}

// AlertEvent is an immutable audit row appended on every transition.
type AlertEvent struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	AlertID    string          `json:"alert_id"`
	EventType  string          `json:"event_type"`
	FromStatus string          `json:"from_status"`
	ToStatus   string          `json:"to_status"`
	ActorID    string          `json:"actor_id"`
	Message    *string         `json:"message"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}
