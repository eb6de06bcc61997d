package bot

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/nudge-bot/internal/bot/bottest"
	"github.com/Proton-105/nudge-bot/internal/bot/handlers"
	"github.com/Proton-105/nudge-bot/internal/bot/messages"
	"github.com/Proton-105/nudge-bot/internal/clock"
	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
	"github.com/Proton-105/nudge-bot/internal/i18n"
	"github.com/Proton-105/nudge-bot/internal/reminder"
	"github.com/Proton-105/nudge-bot/internal/state"
	"github.com/Proton-105/nudge-bot/internal/store"
)

type jobRecorder struct {
	mu   sync.Mutex
	jobs map[int64]time.Duration
}

func (j *jobRecorder) Reschedule(userID int64, every, _ time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs[userID] = every
	return nil
}

func (j *jobRecorder) Cancel(userID int64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.jobs[userID]
	delete(j.jobs, userID)
	return ok
}

func (j *jobRecorder) Restore([]state.User) int { return 0 }

type harness struct {
	router *Router
	store  *store.Store
	jobs   *jobRecorder
}

// wednesday10 is 10:00 on Wednesday 2025-05-07 in UTC+3.
var wednesday10 = time.Date(2025, time.May, 7, 7, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(store.NewFileBackend(filepath.Join(t.TempDir(), "state.json")), log)
	require.NoError(t, st.Load(context.Background()))

	jobs := &jobRecorder{jobs: make(map[int64]time.Duration)}
	svc := reminder.NewService(st, jobs, clock.Fixed(wednesday10), log)

	m, err := i18n.Load("en")
	require.NoError(t, err)

	router := NewRouter(NewDispatcher(st, log), log)
	Setup(router, svc, messages.NewRenderer(m.Translator("en")), apperrors.NewHandler(log, false), log)

	return &harness{router: router, store: st, jobs: jobs}
}

func (h *harness) text(t *testing.T, chatID int64, text string) *bottest.Context {
	t.Helper()
	c := bottest.NewText(chatID, text)
	require.NoError(t, h.router.Route(c))
	return c
}

func (h *harness) press(t *testing.T, chatID int64, data string) *bottest.Context {
	t.Helper()
	c := bottest.NewCallback(chatID, data)
	require.NoError(t, h.router.Route(c))
	return c
}

func TestRouter_OnboardingToReset(t *testing.T) {
	h := newHarness(t)

	c := h.text(t, 42, "/start")
	require.Len(t, c.Sent, 1)
	assert.Contains(t, c.Sent[0].Text, "How should I address you?")
	require.NotNil(t, c.Sent[0].Markup)
	assert.Equal(t, "gender_female", c.Sent[0].Markup.InlineKeyboard[0][0].Data)

	c = h.press(t, 42, "gender_female")
	assert.Equal(t, 1, c.Answered)
	assert.Contains(t, c.LastSent(), "How often")

	c = h.text(t, 42, "30")
	assert.Contains(t, c.LastSent(), "Interval: 30 min.")

	c = h.text(t, 42, "+3")
	assert.Contains(t, c.LastSent(), "Starting now")
	assert.Equal(t, map[int64]time.Duration{42: 30 * time.Minute}, h.jobs.jobs)

	c = h.text(t, 42, "/status")
	assert.Contains(t, c.LastSent(), "Done today: 0")

	c = h.press(t, 42, "done")
	require.Len(t, c.Edited, 1)
	assert.Contains(t, c.Edited[0].Text, "That is 1 today.")

	c = h.text(t, 42, "/status@nudge_bot")
	assert.Contains(t, c.LastSent(), "Done today: 1")

	c = h.text(t, 42, "/reset")
	require.NotNil(t, c.Sent[0].Markup)

	c = h.press(t, 42, "confirm_reset")
	require.Len(t, c.Edited, 1)
	assert.Contains(t, c.Edited[0].Text, "All your data has been deleted")

	_, ok := h.store.User(42)
	assert.False(t, ok)
	assert.Empty(t, h.jobs.jobs)
}

func TestRouter_TextFromUnknownChatIsIgnored(t *testing.T) {
	h := newHarness(t)

	c := h.text(t, 99, "hello")
	assert.Empty(t, c.Sent)

	_, ok := h.store.User(99)
	assert.False(t, ok)
}

func TestRouter_InvalidInputReprompts(t *testing.T) {
	h := newHarness(t)
	h.text(t, 7, "/start")
	h.press(t, 7, "gender_male")

	c := h.text(t, 7, "0")
	assert.Contains(t, c.LastSent(), "whole number of minutes")

	u, ok := h.store.User(7)
	require.True(t, ok)
	assert.Equal(t, state.StateWaitingInterval, u.State)
}

func TestRouter_UnknownCallbackIsAnswered(t *testing.T) {
	h := newHarness(t)

	c := h.press(t, 1, "legacy_button")
	assert.Equal(t, 1, c.Answered)
	assert.Empty(t, c.Sent)
}

func TestRouter_MiddlewareOrder(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(nil, log)

	var order []string
	mw := func(name string) handlers.Middleware {
		return func(next handlers.Handler) handlers.Handler {
			return func(c telebot.Context) error {
				order = append(order, name)
				return next(c)
			}
		}
	}
	r.Use(mw("first"))
	r.Use(mw("second"))
	r.RegisterCommand("/ping", func(telebot.Context) error {
		order = append(order, "handler")
		return nil
	})

	require.NoError(t, r.Route(bottest.NewText(1, "/ping")))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRouter_PanicIsRecovered(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(nil, log)
	m, err := i18n.Load("en")
	require.NoError(t, err)
	r.Use(RecoveryMiddleware(log, apperrors.NewHandler(log, false), messages.NewRenderer(m.Translator("en"))))
	r.RegisterCommand("/boom", func(telebot.Context) error { panic("boom") })

	c := bottest.NewText(1, "/boom")
	require.NoError(t, r.Route(c))
	assert.Equal(t, "This action is not available right now.", c.LastSent())
}

func TestRouter_CallbackMatching(t *testing.T) {
	r := NewRouter(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var hit string
	route := func(name string) handlers.CallbackHandler {
		return func(telebot.Context) error {
			hit = name
			return nil
		}
	}
	r.RegisterCallbackPrefix("g", route("short"))
	r.RegisterCallbackPrefix("gender_", route("long"))
	r.RegisterCallback("gender_x", route("exact"))

	for data, want := range map[string]string{
		"gender_male": "long",
		"gx":          "short",
		"gender_x":    "exact",
	} {
		hit = ""
		require.NoError(t, r.Route(bottest.NewCallback(1, data)))
		assert.Equal(t, want, hit, data)
	}

	c := bottest.NewCallback(1, "other")
	require.NoError(t, r.Route(c))
	assert.Equal(t, 1, c.Answered)
}
