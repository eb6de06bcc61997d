package bot

import (
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/nudge-bot/internal/bot/handlers"
	"github.com/Proton-105/nudge-bot/internal/state"
)

// StateSource looks up the onboarding record of a chat.
type StateSource interface {
	User(id int64) (state.User, bool)
}

// Dispatcher routes free text to state-specific handlers.
type Dispatcher struct {
	states        StateSource
	stateHandlers map[state.State]handlers.Handler
	log           *slog.Logger
	mu            sync.RWMutex
}

// NewDispatcher creates a Dispatcher with an empty handlers registry.
func NewDispatcher(states StateSource, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		states:        states,
		stateHandlers: make(map[state.State]handlers.Handler),
		log:           log,
	}
}

// RegisterStateHandler registers a handler for the provided state.
func (d *Dispatcher) RegisterStateHandler(s state.State, h handlers.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateHandlers[s] = h
}

// Resolve returns the handler for the chat's current state. Chats without a
// record get nil so their text is dropped.
func (d *Dispatcher) Resolve(c telebot.Context) handlers.Handler {
	chatID, ok := handlers.ChatID(c)
	if !ok {
		d.log.Warn("cannot dispatch without chat information")
		return nil
	}

	if d.states == nil {
		return nil
	}

	u, ok := d.states.User(chatID)
	if !ok {
		d.log.Debug("ignoring text from unknown chat", slog.Int64("user_id", chatID))
		return nil
	}

	handler := d.getHandler(u.State)
	if handler == nil {
		d.log.Info("no handler registered for state", slog.String("state", string(u.State)), slog.Int64("user_id", chatID))
	}

	return handler
}

func (d *Dispatcher) getHandler(s state.State) handlers.Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stateHandlers[s]
}
