package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/andrewanujbusiness/messenger/internal/models"
)

const (
	conversationIndexKey = "conversations"
	messageCountKey      = "stats:messages"
)

// RedisStore keeps conversation histories in Redis lists and tone
// preferences in per-reader hashes. Accounts come from the seeded directory.
// The same client backs the HTTP rate limiter.
type RedisStore struct {
	*userDirectory
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{userDirectory: newUserDirectory(SeedUsers()), client: client, logger: zerolog.Nop()}
}

// WithLogger sets the logger used to report unreadable history entries.
func (s *RedisStore) WithLogger(logger zerolog.Logger) *RedisStore {
	s.logger = logger.With().Str("component", "redis_store").Logger()
	return s
}

// Client exposes the underlying client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() {
	s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// conversationMessagesKey returns the key for a conversation's message list.
func conversationMessagesKey(key string) string {
	return fmt.Sprintf("conversation:%s:messages", key)
}

// tonePreferencesKey returns the hash holding an observer's preferences.
func tonePreferencesKey(observerID string) string {
	return fmt.Sprintf("tone:%s", observerID)
}

// ResolveConversation returns the computed key for the pair.
func (s *RedisStore) ResolveConversation(ctx context.Context, userA, userB string) (string, error) {
	return ConversationKey(userA, userB), nil
}

// AppendMessage pushes msg onto the conversation list.
func (s *RedisStore) AppendMessage(ctx context.Context, key string, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, conversationMessagesKey(key), data)
	pipe.SAdd(ctx, conversationIndexKey, key)
	pipe.Incr(ctx, messageCountKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages returns the conversation in append order.
func (s *RedisStore) ListMessages(ctx context.Context, key string) ([]models.Message, error) {
	results, err := s.client.LRange(ctx, conversationMessagesKey(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			s.logger.Warn().Err(err).
				Str("conversation", key).
				Int("bytes", len(data)).
				Msg("skipping undecodable message")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// SetTonePreference stores or clears a preference.
func (s *RedisStore) SetTonePreference(ctx context.Context, observerID, observedID string, tone models.Tone) error {
	key := tonePreferencesKey(observerID)
	if tone == "" {
		return s.client.HDel(ctx, key, observedID).Err()
	}
	return s.client.HSet(ctx, key, observedID, string(tone)).Err()
}

// GetTonePreference returns the stored preference or "".
func (s *RedisStore) GetTonePreference(ctx context.Context, observerID, observedID string) (models.Tone, error) {
	tone, err := s.client.HGet(ctx, tonePreferencesKey(observerID), observedID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return models.Tone(tone), nil
}

// Stats returns aggregate counts.
func (s *RedisStore) Stats(ctx context.Context) (models.Stats, error) {
	conversations, err := s.client.SCard(ctx, conversationIndexKey).Result()
	if err != nil {
		return models.Stats{}, err
	}
	messages, err := s.client.Get(ctx, messageCountKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.Stats{}, err
	}
	return models.Stats{
		Users:         s.userDirectory.count(),
		Conversations: conversations,
		Messages:      messages,
	}, nil
}
