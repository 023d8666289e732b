// Package tone rewrites message text in a requested style using a language
// model. Adjustment never fails the caller: any problem yields the original
// text together with a failure reason.
package tone

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/andrewanujbusiness/messenger/internal/metrics"
	"github.com/andrewanujbusiness/messenger/internal/models"
)

// SystemPrompt instructs the model to answer with the rewritten text only.
const SystemPrompt = "You are a helpful assistant that adjusts message tone. Respond only with the adjusted message, nothing else."

var instructions = map[models.Tone]string{
	models.ToneWarmer:        "Make this message sound warmer, friendlier, and more inviting while keeping the same meaning:",
	models.ToneProfanityFree: "Remove any profanity or inappropriate language from this message while keeping the meaning intact:",
	models.ToneFormal:        "Convert this message to a more formal, professional tone while keeping the same meaning:",
	models.ToneSimplified:    "Simplify this message to use clearer, more straightforward language while keeping the same meaning:",
	models.ToneConcise:       "Make this message more concise and direct while keeping the essential information:",
}

var (
	ErrUnsupportedTone = errors.New("unsupported tone")
	ErrNotConfigured   = errors.New("tone adjustment is not configured")
	ErrEmptyCompletion = errors.New("model returned an empty completion")
)

// Reason classifies why an adjustment fell back to the original text.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonAuthentication Reason = "authentication"
	ReasonRateLimit      Reason = "rate_limit"
	ReasonServer         Reason = "server"
	ReasonOther          Reason = "other"
)

// Result is the outcome of an adjustment. When Adjusted is false, Text is the
// original input and Reason says why.
type Result struct {
	Text     string
	Adjusted bool
	Tone     models.Tone
	Reason   Reason
	Err      error
}

// Completer sends one system+user prompt pair to a model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Adjuster rewrites text in a tone.
type Adjuster interface {
	Adjust(ctx context.Context, text string, tone models.Tone) Result
}

// Service is the Adjuster backed by a Completer.
type Service struct {
	completer Completer
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewService creates a tone service. A nil completer makes every call fall
// back to the original text.
func NewService(completer Completer, timeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		completer: completer,
		timeout:   timeout,
		logger:    logger.With().Str("component", "tone").Logger(),
	}
}

// Prompt builds the user prompt for text in the given tone.
func Prompt(text string, tone models.Tone) (string, error) {
	instruction, ok := instructions[tone]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTone, tone)
	}
	return fmt.Sprintf(`%s "%s"`, instruction, text), nil
}

// Adjust rewrites text in the given tone. It never returns an error; failures
// are reported through Result.Reason and logged.
func (s *Service) Adjust(ctx context.Context, text string, tone models.Tone) Result {
	prompt, err := Prompt(text, tone)
	if err != nil {
		return s.fallback(text, tone, ReasonOther, err)
	}
	if s.completer == nil {
		return s.fallback(text, tone, ReasonOther, ErrNotConfigured)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.completer.Complete(ctx, SystemPrompt, prompt)
	metrics.ToneAdjustmentDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return s.fallback(text, tone, Classify(err), err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return s.fallback(text, tone, ReasonOther, ErrEmptyCompletion)
	}

	metrics.ToneAdjustments.WithLabelValues(string(tone), "adjusted").Inc()
	s.logger.Debug().
		Str("tone", string(tone)).
		Dur("latency", time.Since(start)).
		Msg("message tone adjusted")

	return Result{Text: out, Adjusted: true, Tone: tone}
}

func (s *Service) fallback(text string, tone models.Tone, reason Reason, err error) Result {
	metrics.ToneAdjustments.WithLabelValues(string(tone), string(reason)).Inc()
	s.logger.Warn().
		Err(err).
		Str("tone", string(tone)).
		Str("reason", string(reason)).
		Msg("tone adjustment failed, delivering original text")
	return Result{Text: text, Tone: tone, Reason: reason, Err: err}
}

var statusCodePattern = regexp.MustCompile(`status code:? (\d{3})`)

// Classify maps a model call error to a failure reason.
func Classify(err error) Reason {
	if err == nil {
		return ReasonNone
	}

	msg := strings.ToLower(err.Error())
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == 401 || code == 403:
			return ReasonAuthentication
		case code == 429:
			return ReasonRateLimit
		case code >= 500:
			return ReasonServer
		}
		return ReasonOther
	}

	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "authentication"),
		strings.Contains(msg, "invalid api key"), strings.Contains(msg, "incorrect api key"):
		return ReasonAuthentication
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "quota"):
		return ReasonRateLimit
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"),
		strings.Contains(msg, "server error"):
		return ReasonServer
	}
	return ReasonOther
}
