package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"sealbox/internal/envelope"
	"sealbox/internal/models"
	"sealbox/internal/utils"
)

// MessageDocument represents the MongoDB document structure for sealed
// messages. The dense uint64 message ID is the primary key; the content is
// the opaque sealed token, stored as a binary blob.
type MessageDocument struct {
	ID         int64      `bson:"_id"`
	SenderID   string     `bson:"senderId"`
	ReceiverID string     `bson:"receiverId"`
	Content    []byte     `bson:"content"`
	CreatedAt  time.Time  `bson:"createdAt"`
	IsRead     bool       `bson:"isRead"`
	ReadAt     *time.Time `bson:"readAt,omitempty"`
}

func messageFromDocument(doc *MessageDocument) (*models.Message, error) {
	senderID, err := uuid.Parse(doc.SenderID)
	if err != nil {
		return nil, fmt.Errorf("invalid sender ID in database: %v", err)
	}
	receiverID, err := uuid.Parse(doc.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("invalid receiver ID in database: %v", err)
	}
	return &models.Message{
		ID:         uint64(doc.ID),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    envelope.Token(doc.Content),
		CreatedAt:  doc.CreatedAt,
		IsRead:     doc.IsRead,
	}, nil
}

// SaveMessage saves a new sealed message to MongoDB
func (m *MongoDB) SaveMessage(ctx context.Context, message *models.Message) error {
	doc := MessageDocument{
		ID:         int64(message.ID),
		SenderID:   message.SenderID.String(),
		ReceiverID: message.ReceiverID.String(),
		Content:    []byte(message.Content),
		CreatedAt:  message.CreatedAt,
		IsRead:     message.IsRead,
	}

	_, err := m.Messages.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to save message: %v", err)
	}
	return nil
}

// MarkMessageRead flips the read flag of a message. The flag is monotone:
// a message already read is left untouched and reported as a conflict.
func (m *MongoDB) MarkMessageRead(ctx context.Context, messageID uint64, at time.Time) error {
	filter := bson.M{"_id": int64(messageID), "isRead": false}
	update := bson.M{"$set": bson.M{"isRead": true, "readAt": at}}

	result, err := m.Messages.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update message read status: %v", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewAppError(utils.ErrMessageNotFound, "message not found or already read", nil)
	}
	return nil
}

// GetMessagesByUser retrieves all messages for a user (both sent and received)
func (m *MongoDB) GetMessagesByUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	userIDStr := userID.String()

	filter := bson.M{
		"$or": []bson.M{
			{"senderId": userIDStr},
			{"receiverId": userIDStr},
		},
	}
	return m.findMessages(ctx, filter)
}

// GetAllMessages retrieves every message (used for ledger replay)
func (m *MongoDB) GetAllMessages(ctx context.Context) ([]*models.Message, error) {
	return m.findMessages(ctx, bson.M{})
}

func (m *MongoDB) findMessages(ctx context.Context, filter bson.M) ([]*models.Message, error) {
	cursor, err := m.Messages.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %v", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*models.Message, 0)
	for cursor.Next(ctx) {
		var doc MessageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message: %v", err)
		}
		message, err := messageFromDocument(&doc)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, cursor.Err()
}
