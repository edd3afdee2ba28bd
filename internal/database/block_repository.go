package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"sealbox/internal/models"
)

// BlockDocument represents the MongoDB document for a directed block pair.
// The primary key is "blocker:blocked" so a pair can exist at most once.
type BlockDocument struct {
	ID        string    `bson:"_id"`
	BlockerID string    `bson:"blockerId"`
	BlockedID string    `bson:"blockedId"`
	CreatedAt time.Time `bson:"createdAt"`
}

func blockKey(blockerID, blockedID uuid.UUID) string {
	return blockerID.String() + ":" + blockedID.String()
}

// SaveBlock records a directed block relation
func (m *MongoDB) SaveBlock(ctx context.Context, rel *models.BlockRelation) error {
	doc := BlockDocument{
		ID:        blockKey(rel.BlockerID, rel.BlockedID),
		BlockerID: rel.BlockerID.String(),
		BlockedID: rel.BlockedID.String(),
		CreatedAt: rel.CreatedAt,
	}

	_, err := m.Blocks.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to save block relation: %v", err)
	}
	return nil
}

// DeleteBlock clears a directed block relation
func (m *MongoDB) DeleteBlock(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	_, err := m.Blocks.DeleteOne(ctx, bson.M{"_id": blockKey(blockerID, blockedID)})
	if err != nil {
		return fmt.Errorf("failed to delete block relation: %v", err)
	}
	return nil
}

// GetAllBlocks retrieves every block pair (used for ledger replay)
func (m *MongoDB) GetAllBlocks(ctx context.Context) ([]*models.BlockRelation, error) {
	cursor, err := m.Blocks.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query block relations: %v", err)
	}
	defer cursor.Close(ctx)

	blocks := make([]*models.BlockRelation, 0)
	for cursor.Next(ctx) {
		var doc BlockDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode block relation: %v", err)
		}

		blockerID, err := uuid.Parse(doc.BlockerID)
		if err != nil {
			return nil, fmt.Errorf("invalid blocker ID in database: %v", err)
		}
		blockedID, err := uuid.Parse(doc.BlockedID)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked ID in database: %v", err)
		}

		blocks = append(blocks, &models.BlockRelation{
			BlockerID: blockerID,
			BlockedID: blockedID,
			CreatedAt: doc.CreatedAt,
		})
	}
	return blocks, cursor.Err()
}
