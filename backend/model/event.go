package model

import (
	"encoding/json"
)

// Inbound socket events.
const (
	EventSetup      = "setup"
	EventJoinChat   = "join chat"
	EventTyping     = "typing"
	EventStopTyping = "stop typing"
	EventNewMessage = "new message"
)

// Outbound socket events.
const (
	EventConnected       = "connected"
	EventMessageReceived = "message received"
)

// Event is a single socket frame in either direction.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

type SetupPayload struct {
	ID string `json:"_id"`
}

type Participant struct {
	ID string `json:"_id"`
}

// MessageEnvelope is the part of a "new message" payload the hub inspects.
// Users is nil when the payload has no chat.users field.
type MessageEnvelope struct {
	Chat *struct {
		Users []Participant `json:"users"`
	} `json:"chat"`
	Sender *Participant `json:"sender"`
}

// Wire carries frames between a transport session and the hub.
// RX is read by the hub, TX is drained by the transport.
type Wire struct {
	RX chan Event
	TX chan Event
}

func NewWire(txBuffer int) Wire {
	return Wire{
		RX: make(chan Event),
		TX: make(chan Event, txBuffer),
	}
}
