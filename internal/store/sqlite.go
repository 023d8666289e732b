package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/andrewanujbusiness/messenger/internal/crypto"
	"github.com/andrewanujbusiness/messenger/internal/models"
)

// SQLiteStore handles SQLite database operations. It mirrors PostgresStore
// for single-node deployments and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and seeds the demo accounts.
// If dbPath is empty, defaults to "./data/messenger.db". ":memory:" keeps the
// database in process.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/messenger.db"
	}

	inMemory := dbPath == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist and seeds the demo users.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user1_id TEXT NOT NULL,
		user2_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		CHECK (user1_id < user2_id),
		UNIQUE (user1_id, user2_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		original_text TEXT,
		tone_applied TEXT,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tone_preferences (
		user_id TEXT NOT NULL,
		target_user_id TEXT NOT NULL,
		tone TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, target_user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	for _, u := range SeedUsers() {
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO users (id, username, password_hash, name, avatar, status)
			VALUES (?, ?, ?, ?, ?, ?)
		`, u.ID, u.Username, u.PasswordHash, u.Name, u.Avatar, u.Status); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUserByUsername retrieves a user by exact username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, `
		SELECT id, username, password_hash, name, avatar, status, created_at
		FROM users WHERE username = ?
	`, username)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, `
		SELECT id, username, password_hash, name, avatar, status, created_at
		FROM users WHERE id = ?
	`, id)
}

func (s *SQLiteStore) getUser(ctx context.Context, query, arg string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Name,
		&user.Avatar,
		&user.Status,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// ListUsers returns every account ordered by ID.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
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

// ResolveConversation finds or creates the conversation row for the pair.
func (s *SQLiteStore) ResolveConversation(ctx context.Context, userA, userB string) (string, error) {
	low, high := orderedPair(userA, userB)

	id, err := s.findConversation(ctx, low, high)
	if err != nil || id != "" {
		return id, err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, user1_id, user2_id) VALUES (?, ?, ?)
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

func (s *SQLiteStore) findConversation(ctx context.Context, low, high string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM conversations WHERE user1_id = ? AND user2_id = ?
	`, low, high).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("find conversation: %w", err)
	}
	return id, nil
}

// AppendMessage inserts a message into the conversation.
func (s *SQLiteStore) AppendMessage(ctx context.Context, key string, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, text, original_text, tone_applied, timestamp)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)
	`, msg.ID, key, msg.SenderID, msg.ReceiverID, msg.Text, msg.OriginalText, string(msg.ToneApplied), msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the conversation in ascending timestamp order.
func (s *SQLiteStore) ListMessages(ctx context.Context, key string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, text,
		       COALESCE(original_text, ''), COALESCE(tone_applied, ''), timestamp
		FROM messages
		WHERE conversation_id = ?
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
func (s *SQLiteStore) SetTonePreference(ctx context.Context, observerID, observedID string, tone models.Tone) error {
	if tone == "" {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM tone_preferences WHERE user_id = ? AND target_user_id = ?
		`, observerID, observedID)
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tone_preferences (user_id, target_user_id, tone, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, target_user_id) DO UPDATE SET
			tone = excluded.tone,
			updated_at = CURRENT_TIMESTAMP
	`, observerID, observedID, string(tone))
	return err
}

// GetTonePreference returns the stored preference or "".
func (s *SQLiteStore) GetTonePreference(ctx context.Context, observerID, observedID string) (models.Tone, error) {
	var tone string
	err := s.db.QueryRowContext(ctx, `
		SELECT tone FROM tone_preferences WHERE user_id = ? AND target_user_id = ?
	`, observerID, observedID).Scan(&tone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return models.Tone(tone), nil
}

// Stats returns aggregate counts.
func (s *SQLiteStore) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages)
	`).Scan(&stats.Users, &stats.Conversations, &stats.Messages)
	return stats, err
}
