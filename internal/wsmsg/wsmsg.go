// Package wsmsg defines the WebSocket message envelope shared by every
// entity's socket: {type, payload, timestamp}.
package wsmsg

import "time"

// Envelope is the wire format for every inbound and outbound
// WebSocket frame.
type Envelope struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds an outbound envelope stamped with the current time.
func New(msgType string, payload any) Envelope {
	return Envelope{Type: msgType, Payload: payload, Timestamp: time.Now()}
}
