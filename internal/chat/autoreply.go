package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/andrewanujbusiness/messenger/internal/models"
)

var replyPhrases = map[string][]string{
	"1": {
		"That sounds great!",
		"I'll get back to you soon.",
		"Thanks for letting me know!",
		"Can't wait to catch up!",
		"Sounds like a plan!",
	},
	"2": {
		"Absolutely!",
		"I'm on it!",
		"That works for me.",
		"Great idea!",
		"Looking forward to it!",
	},
	"3": {
		"Perfect timing!",
		"I'll check on that.",
		"Thanks for the update!",
		"That sounds good to me.",
		"I'll see you soon!",
	},
}

var defaultReplyPhrases = []string{
	"Got it!",
	"Thanks!",
	"Talk soon.",
}

// ReplyPhrases returns the canned replies used when userID answers.
func ReplyPhrases(userID string) []string {
	if phrases, ok := replyPhrases[userID]; ok {
		return phrases
	}
	return defaultReplyPhrases
}

// ReplyDelay returns a random delay within the configured auto-reply window.
func (s *Service) ReplyDelay() time.Duration {
	span := s.opts.AutoReplyMax - s.opts.AutoReplyMin
	if span <= 0 {
		return s.opts.AutoReplyMin
	}
	return s.opts.AutoReplyMin + time.Duration(s.intN(int64(span)+1))
}

// AutoReply stores a canned answer from receiver back to sender. The phrase
// comes from the receiver's pool and is rendered with the sender's tone
// preference for the receiver.
func (s *Service) AutoReply(ctx context.Context, senderID, receiverID string) (*models.Message, error) {
	key, err := s.store.ResolveConversation(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}

	phrases := ReplyPhrases(receiverID)
	reply := models.Message{
		ID:             s.newID(),
		ConversationID: key,
		SenderID:       receiverID,
		ReceiverID:     senderID,
		Text:           phrases[s.intN(int64(len(phrases)))],
		Timestamp:      s.now().UnixMilli(),
	}

	delivered, _ := s.render(ctx, reply, senderID, receiverID)
	if err := s.store.AppendMessage(ctx, key, &delivered); err != nil {
		return nil, fmt.Errorf("append reply: %w", err)
	}
	return &delivered, nil
}
