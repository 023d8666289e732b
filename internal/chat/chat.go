// Package chat implements the message pipeline: conversation resolution,
// per-reader tone adjustment, persistence and the demo auto-reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/andrewanujbusiness/messenger/internal/crypto"
	"github.com/andrewanujbusiness/messenger/internal/models"
	"github.com/andrewanujbusiness/messenger/internal/store"
	"github.com/andrewanujbusiness/messenger/internal/tone"
)

// DefaultMaxMessageSize bounds message text in bytes.
const DefaultMaxMessageSize = 4096

var (
	ErrEmptyText        = errors.New("message text is empty")
	ErrTextTooLong      = errors.New("message text is too long")
	ErrUnknownRecipient = errors.New("unknown recipient")
	ErrSelfMessage      = errors.New("cannot message yourself")
)

// IsValidationError reports whether err rejects the request itself rather
// than signalling a storage failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyText) ||
		errors.Is(err, ErrTextTooLong) ||
		errors.Is(err, ErrUnknownRecipient) ||
		errors.Is(err, ErrSelfMessage)
}

// Options tunes the pipeline. Zero values use defaults.
type Options struct {
	MaxMessageSize int
	AutoReplyMin   time.Duration
	AutoReplyMax   time.Duration
}

// Delivery is the outcome of a send. Canonical is what the sender typed;
// Delivered is what was stored and pushed to the receiver.
type Delivery struct {
	Canonical models.Message
	Delivered models.Message
	Tone      tone.Result
}

// Service runs the message pipeline over a store and a tone adjuster.
type Service struct {
	store  store.DataStore
	tone   tone.Adjuster
	logger zerolog.Logger
	opts   Options

	now   func() time.Time
	newID func() string
	intN  func(n int64) int64
}

// NewService creates a chat service.
func NewService(ds store.DataStore, adjuster tone.Adjuster, opts Options, logger zerolog.Logger) *Service {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if opts.AutoReplyMin <= 0 {
		opts.AutoReplyMin = 2 * time.Second
	}
	if opts.AutoReplyMax < opts.AutoReplyMin {
		opts.AutoReplyMax = opts.AutoReplyMin
	}
	return &Service{
		store:  ds,
		tone:   adjuster,
		logger: logger.With().Str("component", "chat").Logger(),
		opts:   opts,
		now:    time.Now,
		newID:  crypto.NewMessageID,
		intN:   rand.Int63n,
	}
}

// Validate checks a send request before any work is done.
func (s *Service) Validate(ctx context.Context, senderID, receiverID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if len(text) > s.opts.MaxMessageSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTextTooLong, len(text), s.opts.MaxMessageSize)
	}
	if receiverID == senderID {
		return ErrSelfMessage
	}
	receiver, err := s.store.GetUserByID(ctx, receiverID)
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if receiver == nil {
		return ErrUnknownRecipient
	}
	return nil
}

// Send stores a message from sender to receiver, adjusting its tone when the
// receiver has a preference for the sender. A failed adjustment delivers the
// canonical text; only store failures return an error.
func (s *Service) Send(ctx context.Context, senderID, receiverID, text string) (*Delivery, error) {
	if err := s.Validate(ctx, senderID, receiverID, text); err != nil {
		return nil, err
	}

	key, err := s.store.ResolveConversation(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}

	canonical := models.Message{
		ID:             s.newID(),
		ConversationID: key,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Text:           text,
		Timestamp:      s.now().UnixMilli(),
	}

	delivered, result := s.render(ctx, canonical, receiverID, senderID)

	if err := s.store.AppendMessage(ctx, key, &delivered); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	s.logger.Debug().
		Str("conversation", key).
		Str("sender", senderID).
		Str("receiver", receiverID).
		Bool("adjusted", delivered.Adjusted()).
		Msg("message stored")

	return &Delivery{Canonical: canonical, Delivered: delivered, Tone: result}, nil
}

// render applies observer's tone preference for observed to msg.
func (s *Service) render(ctx context.Context, msg models.Message, observerID, observedID string) (models.Message, tone.Result) {
	pref, err := s.store.GetTonePreference(ctx, observerID, observedID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("observer", observerID).
			Str("observed", observedID).
			Msg("tone preference lookup failed, delivering original text")
		return msg, tone.Result{Text: msg.Text, Reason: tone.ReasonOther, Err: err}
	}
	if pref == "" {
		return msg, tone.Result{Text: msg.Text}
	}

	result := s.tone.Adjust(ctx, msg.Text, pref)
	if !result.Adjusted {
		return msg, result
	}

	out := msg
	out.OriginalText = msg.Text
	out.Text = result.Text
	out.ToneApplied = pref
	return out, result
}
