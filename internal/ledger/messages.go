package ledger

import (
	"github.com/google/uuid"
)

// Message types for the LedgerActor. Every mutation and query of the ledger
// goes through one of these; the actor mailbox serializes them so each
// operation commits fully before the next begins.
type (
	RegisterUserMsg struct {
		UserID         uuid.UUID `json:"userId"`
		PublicName     string    `json:"publicName"`
		Email          string    `json:"email"`
		HashedPassword string    `json:"-"`
	}

	SendMessageMsg struct {
		SenderID   uuid.UUID `json:"senderId"`
		ReceiverID uuid.UUID `json:"receiverId"`
		Content    []byte    `json:"content"`
	}

	MarkMessageReadMsg struct {
		CallerID  uuid.UUID `json:"callerId"`
		MessageID uint64    `json:"messageId"`
	}

	BlockUserMsg struct {
		BlockerID uuid.UUID `json:"blockerId"`
		TargetID  uuid.UUID `json:"targetId"`
	}

	UnblockUserMsg struct {
		BlockerID uuid.UUID `json:"blockerId"`
		TargetID  uuid.UUID `json:"targetId"`
	}

	SetPausedMsg struct {
		CallerID uuid.UUID `json:"callerId"`
		Paused   bool      `json:"paused"`
	}

	GetInboxMsg struct {
		UserID uuid.UUID `json:"userId"`
	}

	GetSentMsg struct {
		UserID uuid.UUID `json:"userId"`
	}

	GetMessageMsg struct {
		MessageID uint64 `json:"messageId"`
	}

	GetUserProfileMsg struct {
		UserID uuid.UUID `json:"userId"`
	}

	GetUserByEmailMsg struct {
		Email string `json:"email"`
	}

	IsBlockedMsg struct {
		BlockerID uuid.UUID `json:"blockerId"`
		BlockedID uuid.UUID `json:"blockedId"`
	}

	GetTotalMessagesMsg struct{}

	GetUnreadCountMsg struct {
		UserID uuid.UUID `json:"userId"`
	}

	GetCountsMsg struct{}
)

// LedgerCounts is the response to GetCountsMsg.
type LedgerCounts struct {
	Users    int    `json:"users"`
	Messages uint64 `json:"messages"`
	Paused   bool   `json:"paused"`
}
