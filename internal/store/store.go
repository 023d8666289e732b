package store

import (
	"context"
	"sort"
	"strings"

	"github.com/andrewanujbusiness/messenger/internal/models"
)

// UserStore looks up accounts. Lookups return (nil, nil) when no user matches.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// ConversationStore holds ordered message histories keyed by conversation.
type ConversationStore interface {
	// ResolveConversation returns the key shared by both participants.
	// The result does not depend on argument order.
	ResolveConversation(ctx context.Context, userA, userB string) (string, error)
	// AppendMessage adds msg to the end of the conversation history.
	AppendMessage(ctx context.Context, key string, msg *models.Message) error
	// ListMessages returns the history in append order, or an empty slice.
	ListMessages(ctx context.Context, key string) ([]models.Message, error)
}

// ToneStore holds per-reader tone preferences.
type ToneStore interface {
	// SetTonePreference records how observer wants messages from observed
	// rendered. An empty tone clears the preference.
	SetTonePreference(ctx context.Context, observerID, observedID string, tone models.Tone) error
	// GetTonePreference returns the stored tone, or "" when none is set.
	GetTonePreference(ctx context.Context, observerID, observedID string) (models.Tone, error)
}

// DataStore is the full storage surface used by the server.
// MemoryStore, PostgresStore, SQLiteStore and RedisStore implement it.
type DataStore interface {
	UserStore
	ConversationStore
	ToneStore

	// Connection management
	Close()
	Ping(ctx context.Context) error

	Stats(ctx context.Context) (models.Stats, error)
}

// ConversationKey derives the computed key for a pair of users: both ids
// sorted and joined with "-".
func ConversationKey(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, "-")
}

// orderedPair returns the two ids with the smaller first.
func orderedPair(userA, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}
