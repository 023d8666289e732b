package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewanujbusiness/messenger/internal/models"
	"github.com/andrewanujbusiness/messenger/internal/store"
	"github.com/andrewanujbusiness/messenger/internal/tone"
)

// fakeAdjuster uppercases text, or fails when err is set.
type fakeAdjuster struct {
	mu    sync.Mutex
	err   error
	calls []models.Tone
}

func (f *fakeAdjuster) Adjust(ctx context.Context, text string, t models.Tone) tone.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, t)
	if f.err != nil {
		return tone.Result{Text: text, Tone: t, Reason: tone.ReasonServer, Err: f.err}
	}
	return tone.Result{Text: strings.ToUpper(text), Adjusted: true, Tone: t}
}

func newTestService(t *testing.T, adj tone.Adjuster) (*Service, *store.MemoryStore) {
	t.Helper()
	ds := store.NewMemoryStore(store.SeedUsers(), nil)
	svc := NewService(ds, adj, Options{}, zerolog.Nop())
	return svc, ds
}

func TestSendWithoutPreference(t *testing.T) {
	adj := &fakeAdjuster{}
	svc, ds := newTestService(t, adj)
	ctx := context.Background()

	d, err := svc.Send(ctx, "1", "2", "Hey Bob!")
	require.NoError(t, err)

	assert.Equal(t, "Hey Bob!", d.Canonical.Text)
	assert.Equal(t, "Hey Bob!", d.Delivered.Text)
	assert.Empty(t, d.Delivered.OriginalText)
	assert.Empty(t, d.Delivered.ToneApplied)
	assert.Equal(t, d.Canonical, d.Delivered)
	assert.Empty(t, adj.calls, "no preference means no model call")

	msgs, err := ds.ListMessages(ctx, "1-2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hey Bob!", msgs[0].Text)
	assert.Equal(t, "1", msgs[0].SenderID)
	assert.Equal(t, "2", msgs[0].ReceiverID)
	assert.Equal(t, "1-2", msgs[0].ConversationID)
}

func TestSendAppliesReceiverPreference(t *testing.T) {
	adj := &fakeAdjuster{}
	svc, ds := newTestService(t, adj)
	ctx := context.Background()

	// bob wants alice's messages formal
	require.NoError(t, ds.SetTonePreference(ctx, "2", "1", models.ToneFormal))

	d, err := svc.Send(ctx, "1", "2", "hey whats up")
	require.NoError(t, err)

	assert.Equal(t, "hey whats up", d.Canonical.Text)
	assert.Empty(t, d.Canonical.ToneApplied)

	assert.Equal(t, "HEY WHATS UP", d.Delivered.Text)
	assert.Equal(t, "hey whats up", d.Delivered.OriginalText)
	assert.Equal(t, models.ToneFormal, d.Delivered.ToneApplied)
	assert.Equal(t, d.Canonical.ID, d.Delivered.ID)
	assert.Equal(t, []models.Tone{models.ToneFormal}, adj.calls)

	msgs, err := ds.ListMessages(ctx, "1-2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, d.Delivered, msgs[0])
}

func TestSendPreferenceIsDirectional(t *testing.T) {
	adj := &fakeAdjuster{}
	svc, ds := newTestService(t, adj)
	ctx := context.Background()

	// alice's preference for bob must not affect what bob receives from alice
	require.NoError(t, ds.SetTonePreference(ctx, "1", "2", models.ToneFormal))

	d, err := svc.Send(ctx, "1", "2", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", d.Delivered.Text)
	assert.Empty(t, adj.calls)
}

func TestSendFallsBackWhenAdjustmentFails(t *testing.T) {
	adj := &fakeAdjuster{err: errors.New("status code: 503")}
	svc, ds := newTestService(t, adj)
	ctx := context.Background()

	require.NoError(t, ds.SetTonePreference(ctx, "2", "1", models.ToneFormal))

	d, err := svc.Send(ctx, "1", "2", "hey whats up")
	require.NoError(t, err)
	assert.Equal(t, "hey whats up", d.Delivered.Text)
	assert.Empty(t, d.Delivered.OriginalText)
	assert.Empty(t, d.Delivered.ToneApplied)
	assert.Equal(t, tone.ReasonServer, d.Tone.Reason)
}

func TestClearedPreferenceDeliversUnadjusted(t *testing.T) {
	adj := &fakeAdjuster{}
	svc, ds := newTestService(t, adj)
	ctx := context.Background()

	require.NoError(t, ds.SetTonePreference(ctx, "2", "1", models.ToneConcise))
	d, err := svc.Send(ctx, "1", "2", "first")
	require.NoError(t, err)
	assert.True(t, d.Delivered.Adjusted())

	require.NoError(t, ds.SetTonePreference(ctx, "2", "1", ""))
	d, err = svc.Send(ctx, "1", "2", "second")
	require.NoError(t, err)
	assert.False(t, d.Delivered.Adjusted())
	assert.Equal(t, "second", d.Delivered.Text)
}

func TestSendValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakeAdjuster{})
	ctx := context.Background()

	tests := []struct {
		name     string
		receiver string
		text     string
		want     error
	}{
		{"empty text", "2", "", ErrEmptyText},
		{"blank text", "2", "   \n", ErrEmptyText},
		{"too long", "2", strings.Repeat("a", DefaultMaxMessageSize+1), ErrTextTooLong},
		{"self", "1", "hi", ErrSelfMessage},
		{"unknown receiver", "99", "hi", ErrUnknownRecipient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Send(ctx, "1", tt.receiver, tt.text)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := svc.Send(ctx, "1", "2", strings.Repeat("a", DefaultMaxMessageSize))
	assert.NoError(t, err)
}

func TestSendAssignsDistinctIDs(t *testing.T) {
	svc, _ := newTestService(t, &fakeAdjuster{})
	ctx := context.Background()

	a, err := svc.Send(ctx, "1", "2", "one")
	require.NoError(t, err)
	b, err := svc.Send(ctx, "1", "2", "two")
	require.NoError(t, err)
	assert.NotEqual(t, a.Canonical.ID, b.Canonical.ID)
	assert.LessOrEqual(t, a.Canonical.Timestamp, b.Canonical.Timestamp)
}

func TestAutoReply(t *testing.T) {
	adj := &fakeAdjuster{}
	svc, ds := newTestService(t, adj)
	ctx := context.Background()

	reply, err := svc.AutoReply(ctx, "1", "2")
	require.NoError(t, err)
	assert.Equal(t, "2", reply.SenderID)
	assert.Equal(t, "1", reply.ReceiverID)
	assert.Contains(t, ReplyPhrases("2"), reply.Text)
	assert.False(t, reply.Adjusted())

	msgs, err := ds.ListMessages(ctx, "1-2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, reply.ID, msgs[0].ID)
}

func TestAutoReplyUsesSenderPreference(t *testing.T) {
	adj := &fakeAdjuster{}
	svc, ds := newTestService(t, adj)
	ctx := context.Background()

	// alice reads bob's replies as warmer
	require.NoError(t, ds.SetTonePreference(ctx, "1", "2", models.ToneWarmer))

	reply, err := svc.AutoReply(ctx, "1", "2")
	require.NoError(t, err)
	assert.Equal(t, models.ToneWarmer, reply.ToneApplied)
	assert.Contains(t, ReplyPhrases("2"), reply.OriginalText)
	assert.Equal(t, strings.ToUpper(reply.OriginalText), reply.Text)
}

func TestReplyPhrasesDefault(t *testing.T) {
	assert.Len(t, ReplyPhrases("1"), 5)
	assert.Equal(t, defaultReplyPhrases, ReplyPhrases("unknown"))
}

func TestReplyDelayWithinWindow(t *testing.T) {
	ds := store.NewMemoryStore(store.SeedUsers(), nil)
	svc := NewService(ds, &fakeAdjuster{}, Options{
		AutoReplyMin: 2 * time.Second,
		AutoReplyMax: 5 * time.Second,
	}, zerolog.Nop())

	for i := 0; i < 100; i++ {
		d := svc.ReplyDelay()
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}

	fixed := NewService(ds, &fakeAdjuster{}, Options{
		AutoReplyMin: time.Second,
		AutoReplyMax: time.Second,
	}, zerolog.Nop())
	assert.Equal(t, time.Second, fixed.ReplyDelay())
}
