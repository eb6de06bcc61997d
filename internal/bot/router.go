package bot

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/nudge-bot/internal/bot/handlers"
)

type prefixRoute struct {
	prefix  string
	handler handlers.CallbackHandler
}

// Router dispatches commands, callbacks and free text. Free text and
// unknown commands go to the handler of the chat's onboarding state.
type Router struct {
	mu          sync.RWMutex
	commands    map[string]handlers.Handler
	callbacks   map[string]handlers.CallbackHandler
	prefixes    []prefixRoute
	dispatcher  *Dispatcher
	middlewares []handlers.Middleware
	log         *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(dispatcher *Dispatcher, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:   make(map[string]handlers.Handler),
		callbacks:  make(map[string]handlers.CallbackHandler),
		dispatcher: dispatcher,
		log:        log,
	}
}

// RegisterCommand registers a handler for a bot command such as "/start".
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd] = h
}

// RegisterCallback registers a handler for exact callback data.
func (r *Router) RegisterCallback(data string, h handlers.CallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[data] = h
}

// RegisterCallbackPrefix registers a handler for every callback whose data
// starts with prefix. Exact registrations win, then the longest prefix.
func (r *Router) RegisterCallbackPrefix(prefix string, h handlers.CallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefixes = append(r.prefixes, prefixRoute{prefix: prefix, handler: h})
	sort.SliceStable(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].prefix) > len(r.prefixes[j].prefix)
	})
}

// Use appends a middleware. The first registered runs outermost.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// Route directs an update to its handler through the middleware chain.
// Callbacks nobody handles are still answered so the button stops spinning.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	if cb := c.Callback(); cb != nil {
		h := r.callback(cb.Data)
		if h == nil {
			r.log.Info("no callback handler found", slog.String("data", cb.Data))
			return c.Respond()
		}
		return r.chain(handlers.Handler(h))(c)
	}

	h := r.message(c)
	if h == nil {
		return nil
	}
	return r.chain(h)(c)
}

func (r *Router) message(c telebot.Context) handlers.Handler {
	if text := c.Text(); strings.HasPrefix(text, "/") {
		r.mu.RLock()
		h := r.commands[commandName(text)]
		r.mu.RUnlock()
		if h != nil {
			return h
		}
	}

	if r.dispatcher == nil {
		return nil
	}
	return r.dispatcher.Resolve(c)
}

func (r *Router) callback(data string) handlers.CallbackHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.callbacks[data]; ok {
		return h
	}
	for _, route := range r.prefixes {
		if strings.HasPrefix(data, route.prefix) {
			return route.handler
		}
	}
	return nil
}

func (r *Router) chain(h handlers.Handler) handlers.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	return h
}

// commandName strips arguments and a @botname suffix from a command.
func commandName(text string) string {
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd
}
