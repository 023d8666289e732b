package store

import (
	"context"
	"sync"
	"time"

	"github.com/andrewanujbusiness/messenger/internal/models"
)

// MemoryStore keeps everything in process. Conversation keys are computed
// with ConversationKey. Contents are lost on restart.
type MemoryStore struct {
	*userDirectory

	mu            sync.RWMutex
	conversations map[string][]models.Message
	tones         map[string]models.Tone
}

// NewMemoryStore creates a store seeded with the given users and histories.
// Either argument may be nil.
func NewMemoryStore(users []models.User, history map[string][]models.Message) *MemoryStore {
	s := &MemoryStore{
		userDirectory: newUserDirectory(users),
		conversations: make(map[string][]models.Message),
		tones:         make(map[string]models.Tone),
	}
	for key, msgs := range history {
		s.conversations[key] = append([]models.Message(nil), msgs...)
	}
	return s
}

// NewDemoMemoryStore creates a store with the demo users and conversations.
func NewDemoMemoryStore() *MemoryStore {
	return NewMemoryStore(SeedUsers(), DemoConversations(time.Now()))
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// ResolveConversation returns the computed key for the pair.
func (s *MemoryStore) ResolveConversation(ctx context.Context, userA, userB string) (string, error) {
	return ConversationKey(userA, userB), nil
}

// AppendMessage appends a copy of msg to the conversation.
func (s *MemoryStore) AppendMessage(ctx context.Context, key string, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[key] = append(s.conversations[key], *msg)
	return nil
}

// ListMessages returns a copy of the conversation history.
func (s *MemoryStore) ListMessages(ctx context.Context, key string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.conversations[key]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// SetTonePreference stores or clears a preference.
func (s *MemoryStore) SetTonePreference(ctx context.Context, observerID, observedID string, tone models.Tone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := toneKey(observerID, observedID)
	if tone == "" {
		delete(s.tones, key)
		return nil
	}
	s.tones[key] = tone
	return nil
}

// GetTonePreference returns the stored preference or "".
func (s *MemoryStore) GetTonePreference(ctx context.Context, observerID, observedID string) (models.Tone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tones[toneKey(observerID, observedID)], nil
}

// Stats returns aggregate counts.
func (s *MemoryStore) Stats(ctx context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.Stats{
		Users:         s.userDirectory.count(),
		Conversations: int64(len(s.conversations)),
	}
	for _, msgs := range s.conversations {
		stats.Messages += int64(len(msgs))
	}
	return stats, nil
}

// toneKey is ordered: observer first.
func toneKey(observerID, observedID string) string {
	return observerID + "\x00" + observedID
}
