package handlers

import (
	"context"
	"fmt"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/nudge-bot/internal/bot/keyboard"
	"github.com/Proton-105/nudge-bot/internal/domain"
	"github.com/Proton-105/nudge-bot/internal/reminder"
)

// NewReplyHandler runs op for the chat and sends the rendered reply.
func NewReplyHandler(op Operation, render Renderer) Handler {
	return replyWith(func(c telebot.Context, chatID int64) (reminder.Reply, error) {
		return op(RequestContext(c), chatID)
	}, render)
}

// NewTextHandler feeds free text to the onboarding flow.
func NewTextHandler(onText func(ctx context.Context, userID int64, text string) (reminder.Reply, error), render Renderer) Handler {
	return replyWith(func(c telebot.Context, chatID int64) (reminder.Reply, error) {
		return onText(RequestContext(c), chatID, c.Text())
	}, render)
}

func replyWith(call func(c telebot.Context, chatID int64) (reminder.Reply, error), render Renderer) Handler {
	return func(c telebot.Context) error {
		chatID, ok := ChatID(c)
		if !ok {
			return nil
		}

		out, err := call(c, chatID)
		if err != nil {
			return err
		}

		return send(c, render, out)
	}
}

// NewGenderHandler handles the gender buttons.
func NewGenderHandler(onGender func(ctx context.Context, userID int64, gender domain.Gender) (reminder.Reply, error), render Renderer) CallbackHandler {
	return func(c telebot.Context) error {
		chatID, ok := ChatID(c)
		if !ok {
			return nil
		}

		var gender domain.Gender
		switch c.Callback().Data {
		case keyboard.CallbackGenderFemale:
			gender = domain.GenderFemale
		case keyboard.CallbackGenderMale:
			gender = domain.GenderMale
		default:
			return c.Respond()
		}

		out, err := onGender(RequestContext(c), chatID, gender)
		if err != nil {
			_ = c.Respond()
			return err
		}

		if err := c.Respond(); err != nil {
			return fmt.Errorf("answer callback: %w", err)
		}

		return send(c, render, out)
	}
}

// NewEditHandler acknowledges a button press and replaces the message that
// carried the button with the rendered reply.
func NewEditHandler(op Operation, render Renderer) CallbackHandler {
	return func(c telebot.Context) error {
		chatID, ok := ChatID(c)
		if !ok {
			return nil
		}

		out, err := op(RequestContext(c), chatID)
		if err != nil {
			_ = c.Respond()
			return err
		}

		if err := c.Respond(); err != nil {
			return fmt.Errorf("answer callback: %w", err)
		}

		if out.Kind == reminder.ReplyNone {
			return nil
		}

		text, markup, err := render.Render(out)
		if err != nil {
			return err
		}

		if markup != nil {
			return c.Edit(text, markup)
		}
		return c.Edit(text)
	}
}

func send(c telebot.Context, render Renderer, out reminder.Reply) error {
	if out.Kind == reminder.ReplyNone {
		return nil
	}

	text, markup, err := render.Render(out)
	if err != nil {
		return err
	}

	if markup != nil {
		return c.Send(text, markup)
	}
	return c.Send(text)
}
