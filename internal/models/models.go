package models

import (
	"time"

	"github.com/google/uuid"

	"sealbox/internal/envelope"
)

// UserProfile is the ledger record for a registered account.
// Identity is immutable once created; counters and LastActive
// are updated by ledger operations.
type UserProfile struct {
	ID               uuid.UUID `json:"id"`
	PublicName       string    `json:"publicName"`
	Email            string    `json:"email"`
	HashedPassword   string    `json:"-"`
	IsRegistered     bool      `json:"isRegistered"`
	MessagesSent     uint64    `json:"messagesSent"`
	MessagesReceived uint64    `json:"messagesReceived"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActive       time.Time `json:"lastActive"`
}

// PublicNameMinLen and PublicNameMaxLen bound the display name at registration.
const (
	PublicNameMinLen = 1
	PublicNameMaxLen = 50
)

// Message is a sealed message between two registered accounts.
// IDs are dense and start at 1. Content is an opaque token the
// ledger stores but cannot read. Only IsRead mutates, false to
// true exactly once.
type Message struct {
	ID         uint64         `json:"id"`
	SenderID   uuid.UUID      `json:"senderId"`
	ReceiverID uuid.UUID      `json:"receiverId"`
	Content    envelope.Token `json:"content"`
	CreatedAt  time.Time      `json:"createdAt"`
	IsRead     bool           `json:"isRead"`
}

// BlockRelation is a directed pair: Blocker rejects messages from Blocked.
type BlockRelation struct {
	BlockerID uuid.UUID `json:"blockerId"`
	BlockedID uuid.UUID `json:"blockedId"`
	CreatedAt time.Time `json:"createdAt"`
}
