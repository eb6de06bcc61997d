// Package bottest provides an in-memory telebot.Context for handler tests.
package bottest

import (
	"strconv"
	"sync"
	"sync/atomic"

	telebot "gopkg.in/telebot.v3"
)

// Message is something a handler sent or edited.
type Message struct {
	Text   string
	Markup *telebot.ReplyMarkup
}

// Context implements the parts of telebot.Context the bot uses. Calling any
// other method panics.
type Context struct {
	telebot.Context

	ChatID       int64
	MessageID    int
	Input        string
	CallbackID   string
	CallbackData string
	SendErr      error
	Sent     []Message
	Edited   []Message
	Answered int

	mu    sync.Mutex
	store map[string]interface{}
}

var updateSeq atomic.Int64

// NewText returns a context for a text message from chatID.
func NewText(chatID int64, text string) *Context {
	return &Context{ChatID: chatID, MessageID: int(updateSeq.Add(1)), Input: text}
}

// NewCallback returns a context for a button press with data.
func NewCallback(chatID int64, data string) *Context {
	id := updateSeq.Add(1)
	return &Context{ChatID: chatID, MessageID: int(id), CallbackID: strconv.FormatInt(id, 10), CallbackData: data}
}

func (c *Context) Chat() *telebot.Chat {
	if c.ChatID == 0 {
		return nil
	}
	return &telebot.Chat{ID: c.ChatID, Type: telebot.ChatPrivate}
}

func (c *Context) Sender() *telebot.User {
	if c.ChatID == 0 {
		return nil
	}
	return &telebot.User{ID: c.ChatID}
}

func (c *Context) Text() string {
	return c.Input
}

func (c *Context) Data() string {
	return c.CallbackData
}

func (c *Context) Callback() *telebot.Callback {
	if c.CallbackData == "" {
		return nil
	}
	return &telebot.Callback{ID: c.CallbackID, Data: c.CallbackData, Message: c.Message()}
}

func (c *Context) Message() *telebot.Message {
	if c.MessageID == 0 {
		return nil
	}
	return &telebot.Message{ID: c.MessageID, Chat: c.Chat(), Text: c.Input}
}

func (c *Context) Send(what interface{}, opts ...interface{}) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, message(what, opts))
	return nil
}

func (c *Context) Edit(what interface{}, opts ...interface{}) error {
	c.Edited = append(c.Edited, message(what, opts))
	return nil
}

func (c *Context) Respond(_ ...*telebot.CallbackResponse) error {
	c.Answered++
	return nil
}

func (c *Context) Get(key string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key]
}

func (c *Context) Set(key string, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = make(map[string]interface{})
	}
	c.store[key] = val
}

// LastSent returns the text of the last sent message or "".
func (c *Context) LastSent() string {
	if len(c.Sent) == 0 {
		return ""
	}
	return c.Sent[len(c.Sent)-1].Text
}

func message(what interface{}, opts []interface{}) Message {
	msg := Message{}
	if s, ok := what.(string); ok {
		msg.Text = s
	}
	for _, opt := range opts {
		if markup, ok := opt.(*telebot.ReplyMarkup); ok {
			msg.Markup = markup
		}
	}
	return msg
}
