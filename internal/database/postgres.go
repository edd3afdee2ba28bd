// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"sealbox/internal/envelope"
	"sealbox/internal/models"
	"sealbox/internal/utils"
)

// Store defines the common interface for ledger persistence. MongoDB and
// PostgreSQL both implement it; the ledger actor writes through it and
// replays the GetAll* methods at startup.
type Store interface {
	// Connection
	Close(ctx context.Context) error

	// User methods
	SaveUser(ctx context.Context, user *models.UserProfile) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.UserProfile, error)
	GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error)
	GetAllUsers(ctx context.Context) ([]*models.UserProfile, error)
	UpdateUserActivity(ctx context.Context, id uuid.UUID, at time.Time) error
	BumpMessageCounters(ctx context.Context, senderID, receiverID uuid.UUID, at time.Time) error

	// Message methods
	SaveMessage(ctx context.Context, msg *models.Message) error
	MarkMessageRead(ctx context.Context, messageID uint64, at time.Time) error
	GetMessagesByUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error)
	GetAllMessages(ctx context.Context) ([]*models.Message, error)

	// Block relation methods
	SaveBlock(ctx context.Context, rel *models.BlockRelation) error
	DeleteBlock(ctx context.Context, blockerID, blockedID uuid.UUID) error
	GetAllBlocks(ctx context.Context) ([]*models.BlockRelation, error)
}

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB *sqlx.DB
}

// userRow maps the users table.
type userRow struct {
	ID               uuid.UUID `db:"id"`
	PublicName       string    `db:"public_name"`
	Email            string    `db:"email"`
	HashedPassword   string    `db:"password_hash"`
	IsRegistered     bool      `db:"is_registered"`
	MessagesSent     int64     `db:"messages_sent"`
	MessagesReceived int64     `db:"messages_received"`
	CreatedAt        time.Time `db:"created_at"`
	LastActive       time.Time `db:"last_active"`
}

// messageRow maps the messages table.
type messageRow struct {
	ID         int64        `db:"id"`
	SenderID   uuid.UUID    `db:"sender_id"`
	ReceiverID uuid.UUID    `db:"receiver_id"`
	Content    []byte       `db:"content"`
	CreatedAt  time.Time    `db:"created_at"`
	ReadAt     sql.NullTime `db:"read_at"`
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL!")

	return &PostgresDB{DB: db}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	log.Println("Closing PostgreSQL connection...")
	return p.DB.Close()
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	// Users table
	_, err := p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			public_name VARCHAR(50) NOT NULL,
			email VARCHAR(100) UNIQUE NOT NULL,
			password_hash VARCHAR(100) NOT NULL,
			is_registered BOOLEAN DEFAULT TRUE NOT NULL,
			messages_sent BIGINT DEFAULT 0 NOT NULL,
			messages_received BIGINT DEFAULT 0 NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			last_active TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %v", err)
	}

	// Messages table. The id is the ledger's dense sequence, not a serial.
	_, err = p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id BIGINT PRIMARY KEY,
			sender_id UUID REFERENCES users(id),
			receiver_id UUID REFERENCES users(id),
			content BYTEA NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			read_at TIMESTAMP WITH TIME ZONE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create messages table: %v", err)
	}

	// Block relations table
	_, err = p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS blocks (
			blocker_id UUID REFERENCES users(id),
			blocked_id UUID REFERENCES users(id),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (blocker_id, blocked_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create blocks table: %v", err)
	}

	return nil
}

func userFromRow(row *userRow) *models.UserProfile {
	return &models.UserProfile{
		ID:               row.ID,
		PublicName:       row.PublicName,
		Email:            row.Email,
		HashedPassword:   row.HashedPassword,
		IsRegistered:     row.IsRegistered,
		MessagesSent:     uint64(row.MessagesSent),
		MessagesReceived: uint64(row.MessagesReceived),
		CreatedAt:        row.CreatedAt,
		LastActive:       row.LastActive,
	}
}

func messageFromRow(row *messageRow) *models.Message {
	return &models.Message{
		ID:         uint64(row.ID),
		SenderID:   row.SenderID,
		ReceiverID: row.ReceiverID,
		Content:    envelope.Token(row.Content),
		CreatedAt:  row.CreatedAt,
		IsRead:     row.ReadAt.Valid,
	}
}

// SaveUser inserts or updates a user record.
func (p *PostgresDB) SaveUser(ctx context.Context, user *models.UserProfile) error {
	query := `
		INSERT INTO users (id, public_name, email, password_hash, is_registered, messages_sent, messages_received, created_at, last_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			messages_sent = EXCLUDED.messages_sent,
			messages_received = EXCLUDED.messages_received,
			last_active = EXCLUDED.last_active
	`
	_, err := p.DB.ExecContext(ctx, query,
		user.ID,
		user.PublicName,
		user.Email,
		user.HashedPassword,
		user.IsRegistered,
		int64(user.MessagesSent),
		int64(user.MessagesReceived),
		user.CreatedAt,
		user.LastActive,
	)
	if err != nil {
		// Duplicate email means the account identity is already taken
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return utils.NewAppError(utils.ErrAlreadyRegistered, fmt.Sprintf("user already exists: %v", pqErr.Constraint), err)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

// GetUser fetches a user by their ID.
func (p *PostgresDB) GetUser(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	query := `SELECT id, public_name, email, password_hash, is_registered, messages_sent, messages_received, created_at, last_active FROM users WHERE id = $1`
	var row userRow
	err := p.DB.GetContext(ctx, &row, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, utils.NewAppError(utils.ErrUserNotFound, "user not found", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by id", err)
	}
	return userFromRow(&row), nil
}

// GetUserByEmail fetches a user by their email address.
func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	query := `SELECT id, public_name, email, password_hash, is_registered, messages_sent, messages_received, created_at, last_active FROM users WHERE email = $1`
	var row userRow
	err := p.DB.GetContext(ctx, &row, query, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, utils.NewAppError(utils.ErrUserNotFound, "user not found", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by email", err)
	}
	return userFromRow(&row), nil
}

// GetAllUsers fetches all users from the database.
func (p *PostgresDB) GetAllUsers(ctx context.Context) ([]*models.UserProfile, error) {
	query := `SELECT id, public_name, email, password_hash, is_registered, messages_sent, messages_received, created_at, last_active FROM users ORDER BY created_at ASC`
	rows := []userRow{}
	err := p.DB.SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query all users", err)
	}
	users := make([]*models.UserProfile, len(rows))
	for i := range rows {
		users[i] = userFromRow(&rows[i])
	}
	return users, nil
}

// UpdateUserActivity updates the user's last active time.
func (p *PostgresDB) UpdateUserActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_active = $1 WHERE id = $2`
	result, err := p.DB.ExecContext(ctx, query, at, id)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update user activity", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to get rows affected after update", err)
	}
	if rowsAffected == 0 {
		return utils.NewAppError(utils.ErrUserNotFound, "user not found for activity update", nil)
	}
	return nil
}

// BumpMessageCounters adjusts both parties' counters after a committed send.
func (p *PostgresDB) BumpMessageCounters(ctx context.Context, senderID, receiverID uuid.UUID, at time.Time) error {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to begin counters transaction", err)
	}
	defer tx.Rollback() // Rollback is ignored if tx is committed.

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET messages_sent = messages_sent + 1, last_active = $1 WHERE id = $2`,
		at, senderID,
	)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to bump sender counter", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET messages_received = messages_received + 1 WHERE id = $1`,
		receiverID,
	)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to bump receiver counter", err)
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to commit counters transaction", err)
	}
	return nil
}

// SaveMessage inserts a new sealed message.
func (p *PostgresDB) SaveMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, content, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, NULL)
	`
	_, err := p.DB.ExecContext(ctx, query,
		int64(msg.ID),
		msg.SenderID,
		msg.ReceiverID,
		[]byte(msg.Content),
		msg.CreatedAt,
	)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save message", err)
	}
	return nil
}

// MarkMessageRead stamps read_at on an unread message.
func (p *PostgresDB) MarkMessageRead(ctx context.Context, messageID uint64, at time.Time) error {
	query := `UPDATE messages SET read_at = $1 WHERE id = $2 AND read_at IS NULL`
	result, err := p.DB.ExecContext(ctx, query, at, int64(messageID))
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update message read status", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return utils.NewAppError(utils.ErrMessageNotFound, "message not found or already read", nil)
	}
	return nil
}

// GetMessagesByUser fetches all messages sent or received by a user.
func (p *PostgresDB) GetMessagesByUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, content, created_at, read_at
		FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY id ASC
	`
	rows := []messageRow{}
	err := p.DB.SelectContext(ctx, &rows, query, userID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user messages", err)
	}
	messages := make([]*models.Message, len(rows))
	for i := range rows {
		messages[i] = messageFromRow(&rows[i])
	}
	return messages, nil
}

// GetAllMessages fetches every message in send order (used for ledger replay).
func (p *PostgresDB) GetAllMessages(ctx context.Context) ([]*models.Message, error) {
	query := `SELECT id, sender_id, receiver_id, content, created_at, read_at FROM messages ORDER BY id ASC`
	rows := []messageRow{}
	err := p.DB.SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query all messages", err)
	}
	messages := make([]*models.Message, len(rows))
	for i := range rows {
		messages[i] = messageFromRow(&rows[i])
	}
	return messages, nil
}

// SaveBlock records a directed block relation.
func (p *PostgresDB) SaveBlock(ctx context.Context, rel *models.BlockRelation) error {
	query := `
		INSERT INTO blocks (blocker_id, blocked_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING
	`
	_, err := p.DB.ExecContext(ctx, query, rel.BlockerID, rel.BlockedID, rel.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save block relation", err)
	}
	return nil
}

// DeleteBlock clears a directed block relation.
func (p *PostgresDB) DeleteBlock(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	query := `DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`
	_, err := p.DB.ExecContext(ctx, query, blockerID, blockedID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete block relation", err)
	}
	return nil
}

// GetAllBlocks fetches every block pair (used for ledger replay).
func (p *PostgresDB) GetAllBlocks(ctx context.Context) ([]*models.BlockRelation, error) {
	query := `SELECT blocker_id, blocked_id, created_at FROM blocks`
	type blockRow struct {
		BlockerID uuid.UUID `db:"blocker_id"`
		BlockedID uuid.UUID `db:"blocked_id"`
		CreatedAt time.Time `db:"created_at"`
	}
	rows := []blockRow{}
	err := p.DB.SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query block relations", err)
	}
	blocks := make([]*models.BlockRelation, len(rows))
	for i, row := range rows {
		blocks[i] = &models.BlockRelation{
			BlockerID: row.BlockerID,
			BlockedID: row.BlockedID,
			CreatedAt: row.CreatedAt,
		}
	}
	return blocks, nil
}
