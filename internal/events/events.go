// Package events carries ledger notifications. Delivery is fire-and-forget:
// the ledger emits after a mutation commits and never waits on the sink.
package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"sealbox/internal/websocket"
)

// Event types as they appear on the wire.
const (
	TypeUserRegistered = "USER_REGISTERED"
	TypeMessageSent    = "MESSAGE_SENT"
	TypeMessageRead    = "MESSAGE_READ"
	TypeUserBlocked    = "USER_BLOCKED"
	TypeUserUnblocked  = "USER_UNBLOCKED"
)

type UserRegistered struct {
	UserID     uuid.UUID `json:"userId"`
	PublicName string    `json:"publicName"`
	At         time.Time `json:"at"`
}

type MessageSent struct {
	MessageID  uint64    `json:"messageId"`
	SenderID   uuid.UUID `json:"senderId"`
	ReceiverID uuid.UUID `json:"receiverId"`
	At         time.Time `json:"at"`
}

type MessageRead struct {
	MessageID uint64    `json:"messageId"`
	ReaderID  uuid.UUID `json:"readerId"`
	SenderID  uuid.UUID `json:"senderId"`
	At        time.Time `json:"at"`
}

type UserBlocked struct {
	BlockerID uuid.UUID `json:"blockerId"`
	BlockedID uuid.UUID `json:"blockedId"`
	At        time.Time `json:"at"`
}

type UserUnblocked struct {
	BlockerID uuid.UUID `json:"blockerId"`
	BlockedID uuid.UUID `json:"blockedId"`
	At        time.Time `json:"at"`
}

// Sink receives ledger events. Implementations must not block the caller.
type Sink interface {
	Emit(event any)
}

// NopSink discards everything. Used in tests.
type NopSink struct{}

func (NopSink) Emit(any) {}

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Emit(event any) {
	log.Printf("ledger event: %s", describe(event))
}

// wireEvent is the JSON envelope pushed to websocket clients.
type wireEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// HubSink pushes events to the websocket hub so connected parties get
// notified in real time.
type HubSink struct {
	Hub *websocket.Hub
}

func NewHubSink(hub *websocket.Hub) *HubSink {
	return &HubSink{Hub: hub}
}

// Emit routes each event to the users it concerns. Marshalling failures are
// logged and dropped; the ledger has already committed.
func (s *HubSink) Emit(event any) {
	var (
		eventType string
		targets   []uuid.UUID
	)

	switch e := event.(type) {
	case *UserRegistered:
		eventType = TypeUserRegistered
		targets = []uuid.UUID{e.UserID}
	case *MessageSent:
		eventType = TypeMessageSent
		targets = []uuid.UUID{e.SenderID, e.ReceiverID}
	case *MessageRead:
		eventType = TypeMessageRead
		targets = []uuid.UUID{e.ReaderID, e.SenderID}
	case *UserBlocked:
		eventType = TypeUserBlocked
		targets = []uuid.UUID{e.BlockerID}
	case *UserUnblocked:
		eventType = TypeUserUnblocked
		targets = []uuid.UUID{e.BlockerID}
	default:
		log.Printf("HubSink: unknown event type %T, dropping", event)
		return
	}

	payload, err := json.Marshal(&wireEvent{Type: eventType, Payload: event})
	if err != nil {
		log.Printf("HubSink: failed to marshal %s event: %v", eventType, err)
		return
	}

	for _, target := range targets {
		s.Hub.SendDirectMessage(target, payload)
	}
}

func describe(event any) string {
	b, err := json.Marshal(event)
	if err != nil {
		return "(unprintable event)"
	}
	return string(b)
}
