// internal/database/user_repository.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sealbox/internal/models"
	"sealbox/internal/utils"
)

// UserDocument represents the MongoDB schema for a registered account
type UserDocument struct {
	ID               string    `bson:"_id"`              // MongoDB primary key
	PublicName       string    `bson:"publicName"`       // Display name (1..50 chars)
	Email            string    `bson:"email"`            // Email address
	HashedPassword   string    `bson:"hashedPassword"`   // Hashed password
	IsRegistered     bool      `bson:"isRegistered"`     // Registration flag
	MessagesSent     int64     `bson:"messagesSent"`     // Sent counter
	MessagesReceived int64     `bson:"messagesReceived"` // Received counter
	CreatedAt        time.Time `bson:"createdAt"`        // Account creation timestamp
	LastActive       time.Time `bson:"lastActive"`       // Last active timestamp
}

func userFromDocument(doc *UserDocument) (*models.UserProfile, error) {
	userID, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in database: %v", err)
	}
	return &models.UserProfile{
		ID:               userID,
		PublicName:       doc.PublicName,
		Email:            doc.Email,
		HashedPassword:   doc.HashedPassword,
		IsRegistered:     doc.IsRegistered,
		MessagesSent:     uint64(doc.MessagesSent),
		MessagesReceived: uint64(doc.MessagesReceived),
		CreatedAt:        doc.CreatedAt,
		LastActive:       doc.LastActive,
	}, nil
}

// SaveUser creates or updates a user in MongoDB
func (m *MongoDB) SaveUser(ctx context.Context, user *models.UserProfile) error {
	doc := UserDocument{
		ID:               user.ID.String(),
		PublicName:       user.PublicName,
		Email:            user.Email,
		HashedPassword:   user.HashedPassword,
		IsRegistered:     user.IsRegistered,
		MessagesSent:     int64(user.MessagesSent),
		MessagesReceived: int64(user.MessagesReceived),
		CreatedAt:        user.CreatedAt,
		LastActive:       user.LastActive,
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"_id": user.ID.String()}
	update := bson.M{"$set": doc}

	_, err := m.Users.UpdateOne(ctx, filter, update, opts)
	return err
}

// GetUser retrieves a user from MongoDB by their ID
func (m *MongoDB) GetUser(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	var doc UserDocument

	err := m.Users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewAppError(utils.ErrUserNotFound, "User not found", err)
	}
	if err != nil {
		return nil, err
	}
	return userFromDocument(&doc)
}

// GetUserByEmail retrieves a user from MongoDB by their email address
func (m *MongoDB) GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	var doc UserDocument

	err := m.Users.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewAppError(utils.ErrUserNotFound, "User not found", err)
	}
	if err != nil {
		return nil, err
	}
	return userFromDocument(&doc)
}

// GetAllUsers retrieves every registered account (used for ledger replay)
func (m *MongoDB) GetAllUsers(ctx context.Context) ([]*models.UserProfile, error) {
	cursor, err := m.Users.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query all users: %v", err)
	}
	defer cursor.Close(ctx)

	users := make([]*models.UserProfile, 0)
	for cursor.Next(ctx) {
		var doc UserDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user: %v", err)
		}
		user, err := userFromDocument(&doc)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, cursor.Err()
}

// UpdateUserActivity updates a user's last active time
func (m *MongoDB) UpdateUserActivity(ctx context.Context, userID uuid.UUID, at time.Time) error {
	filter := bson.M{"_id": userID.String()}
	update := bson.M{"$set": bson.M{"lastActive": at}}

	result, err := m.Users.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return utils.NewAppError(utils.ErrUserNotFound, "User not found", nil)
	}
	return nil
}

// BumpMessageCounters increments the sender's sent counter and the
// receiver's received counter after a committed send. The sender's
// last active time moves as well.
func (m *MongoDB) BumpMessageCounters(ctx context.Context, senderID, receiverID uuid.UUID, at time.Time) error {
	_, err := m.Users.UpdateOne(ctx,
		bson.M{"_id": senderID.String()},
		bson.M{
			"$inc": bson.M{"messagesSent": 1},
			"$set": bson.M{"lastActive": at},
		},
	)
	if err != nil {
		return err
	}
	_, err = m.Users.UpdateOne(ctx,
		bson.M{"_id": receiverID.String()},
		bson.M{"$inc": bson.M{"messagesReceived": 1}},
	)
	return err
}
