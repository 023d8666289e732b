package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andrewanujbusiness/messenger/internal/crypto"
	"github.com/andrewanujbusiness/messenger/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
// Conversations are rows created on first resolve.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetUserByUsername retrieves a user by exact username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, `
		SELECT id, username, password_hash, name, avatar, status, created_at
		FROM users WHERE username = $1
	`, username)
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, `
		SELECT id, username, password_hash, name, avatar, status, created_at
		FROM users WHERE id = $1
	`, id)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Name,
		&user.Avatar,
		&user.Status,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// ListUsers returns every account ordered by ID.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, password_hash, name, avatar, status, created_at
		FROM users ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Avatar, &u.Status, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpsertUser inserts or updates an account. Used for seeding.
func (s *PostgresStore) UpsertUser(ctx context.Context, u models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, name, avatar, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			name = EXCLUDED.name,
			avatar = EXCLUDED.avatar,
			status = EXCLUDED.status
	`, u.ID, u.Username, u.PasswordHash, u.Name, u.Avatar, u.Status)
	return err
}

// ResolveConversation finds the conversation row for the pair, creating it
// if needed. The unique (user1_id, user2_id) pair makes concurrent first
// resolves converge on one row.
func (s *PostgresStore) ResolveConversation(ctx context.Context, userA, userB string) (string, error) {
	low, high := orderedPair(userA, userB)

	id, err := s.findConversation(ctx, low, high)
	if err != nil || id != "" {
		return id, err
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, user1_id, user2_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user1_id, user2_id) DO NOTHING
	`, crypto.NewUUIDv7().String(), low, high); err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}

	id, err = s.findConversation(ctx, low, high)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("conversation missing after insert")
	}
	return id, nil
}

func (s *PostgresStore) findConversation(ctx context.Context, low, high string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM conversations WHERE user1_id = $1 AND user2_id = $2
	`, low, high).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("find conversation: %w", err)
	}
	return id, nil
}

// AppendMessage inserts a message into the conversation.
func (s *PostgresStore) AppendMessage(ctx context.Context, key string, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, text, original_text, tone_applied, timestamp)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
	`, msg.ID, key, msg.SenderID, msg.ReceiverID, msg.Text, msg.OriginalText, string(msg.ToneApplied), msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the conversation in ascending timestamp order.
func (s *PostgresStore) ListMessages(ctx context.Context, key string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, text,
		       COALESCE(original_text, ''), COALESCE(tone_applied, ''), timestamp
		FROM messages
		WHERE conversation_id = $1
		ORDER BY timestamp ASC, seq ASC
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		var tone string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Text, &m.OriginalText, &tone, &m.Timestamp); err != nil {
			return nil, err
		}
		m.ToneApplied = models.Tone(tone)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// SetTonePreference upserts or deletes a preference.
func (s *PostgresStore) SetTonePreference(ctx context.Context, observerID, observedID string, tone models.Tone) error {
	if tone == "" {
		_, err := s.pool.Exec(ctx, `
			DELETE FROM tone_preferences WHERE user_id = $1 AND target_user_id = $2
		`, observerID, observedID)
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tone_preferences (user_id, target_user_id, tone, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, target_user_id) DO UPDATE SET
			tone = EXCLUDED.tone,
			updated_at = NOW()
	`, observerID, observedID, string(tone))
	return err
}

// GetTonePreference returns the stored preference or "".
func (s *PostgresStore) GetTonePreference(ctx context.Context, observerID, observedID string) (models.Tone, error) {
	var tone string
	err := s.pool.QueryRow(ctx, `
		SELECT tone FROM tone_preferences WHERE user_id = $1 AND target_user_id = $2
	`, observerID, observedID).Scan(&tone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return models.Tone(tone), nil
}

// Stats returns aggregate counts.
func (s *PostgresStore) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages)
	`).Scan(&stats.Users, &stats.Conversations, &stats.Messages)
	return stats, err
}
