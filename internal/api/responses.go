// Package api defines the JSON response shapes shared by the HTTP handlers
// and their clients (frontend, simulator, tests).
package api

import "time"

// LoginResponse represents a response to a login request
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
	UserID  string `json:"userId"`
}

// UserProfileResponse is the public view of a registered account.
type UserProfileResponse struct {
	ID               string    `json:"id"`
	PublicName       string    `json:"publicName"`
	Email            string    `json:"email"`
	IsRegistered     bool      `json:"isRegistered"`
	MessagesSent     uint64    `json:"messagesSent"`
	MessagesReceived uint64    `json:"messagesReceived"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActive       time.Time `json:"lastActive"`
}

// MessageResponse is the view of one ledger message. Content carries the
// decrypted plaintext and is present only when the caller holds a grant for
// the message's token.
type MessageResponse struct {
	ID         uint64    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	IsRead     bool      `json:"isRead"`
}

// MessageListResponse pairs the ordered id sequence with the message views.
type MessageListResponse struct {
	MessageIDs []uint64          `json:"messageIds"`
	Messages   []MessageResponse `json:"messages"`
}

// BlockStatusResponse reports whether a directed block pair exists.
type BlockStatusResponse struct {
	BlockerID string `json:"blockerId"`
	BlockedID string `json:"blockedId"`
	Blocked   bool   `json:"blocked"`
}

// StatusResponse is a generic acknowledgement for mutations that return no
// record, like block changes and the pause switch.
type StatusResponse struct {
	Success bool `json:"success"`
}
