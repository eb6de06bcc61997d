// Package messages renders service replies into localized Telegram messages.
package messages

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/nudge-bot/internal/bot/keyboard"
	"github.com/Proton-105/nudge-bot/internal/domain"
	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
	"github.com/Proton-105/nudge-bot/internal/i18n"
	"github.com/Proton-105/nudge-bot/internal/reminder"
)

// Renderer turns replies into text and optional inline markup.
type Renderer struct {
	texts     i18n.Translator
	keyboards *keyboard.Builder
}

// NewRenderer builds a renderer for one language.
func NewRenderer(texts i18n.Translator) *Renderer {
	return &Renderer{
		texts:     texts,
		keyboards: keyboard.NewBuilder(texts),
	}
}

// Render returns the message for r. A ReplyNone renders to an empty text.
func (r *Renderer) Render(out reminder.Reply) (string, *telebot.ReplyMarkup, error) {
	text, err := r.text(out)
	if err != nil {
		return "", nil, err
	}

	markup, err := r.markup(out.Keyboard)
	if err != nil {
		return "", nil, fmt.Errorf("build %s keyboard: %w", out.Keyboard, err)
	}

	return text, markup, nil
}

// Reminder renders a scheduled reminder with its done and later buttons.
func (r *Renderer) Reminder(gender domain.Gender) (string, *telebot.ReplyMarkup, error) {
	markup, err := r.keyboards.Reminder()
	if err != nil {
		return "", nil, fmt.Errorf("build reminder keyboard: %w", err)
	}

	return r.texts.T("reminder." + genderKey(gender)), markup, nil
}

// failureKeys maps error codes to their user-facing text.
var failureKeys = map[string]string{
	apperrors.CodeValidation:  "errors.state",
	apperrors.CodePersistence: "errors.persistence",
	apperrors.CodeExternalAPI: "errors.external",
	apperrors.CodeState:       "errors.state",
	apperrors.CodeUnknownUser: "start_first",
}

// Failure returns the apology shown when handling an update failed with code.
func (r *Renderer) Failure(code string) string {
	if key, ok := failureKeys[code]; ok {
		return r.texts.T(key)
	}
	return r.texts.T("errors.generic")
}

func (r *Renderer) text(out reminder.Reply) (string, error) {
	vars := map[string]string{
		"Interval": strconv.Itoa(out.Interval),
		"Offset":   domain.FormatOffset(out.Offset),
		"Count":    strconv.Itoa(out.Count),
		"Gender":   r.texts.T("gender.label_" + genderKey(out.Gender)),
	}

	switch out.Kind {
	case reminder.ReplyNone:
		return "", nil
	case reminder.ReplyPromptGender:
		return r.texts.T("gender.prompt"), nil
	case reminder.ReplyPromptInterval:
		return r.texts.T("interval.prompt"), nil
	case reminder.ReplyInvalidInterval:
		return r.texts.T("interval.invalid"), nil
	case reminder.ReplyPromptTimezone:
		return r.texts.Format("timezone.prompt", vars), nil
	case reminder.ReplyInvalidTimezone:
		return r.texts.T("timezone.invalid"), nil
	case reminder.ReplyActivated:
		if out.StartsNow {
			return r.texts.Format("activated.now", vars), nil
		}
		vars["Weekday"] = r.texts.T("weekday." + weekdayKey(out.NextWeekday))
		return r.texts.Format("activated.later", vars), nil
	case reminder.ReplyAlreadyActive:
		return r.texts.Format("already_active", vars), nil
	case reminder.ReplyUseSettings:
		return r.texts.T("use_settings"), nil
	case reminder.ReplyStartFirst:
		return r.texts.T("start_first"), nil
	case reminder.ReplyNotConfigured:
		return r.texts.T("not_configured"), nil
	case reminder.ReplyStatus:
		return r.texts.Format("status", vars), nil
	case reminder.ReplyDone:
		return r.texts.Format("done."+genderKey(out.Gender), vars), nil
	case reminder.ReplyLater:
		return r.texts.T("later." + genderKey(out.Gender)), nil
	case reminder.ReplyResetPrompt:
		return r.texts.T("reset.prompt"), nil
	case reminder.ReplyResetDone:
		return r.texts.T("reset.done"), nil
	case reminder.ReplyResetCancelled:
		return r.texts.T("reset.cancelled"), nil
	default:
		return "", fmt.Errorf("no message for reply kind %q", out.Kind)
	}
}

func (r *Renderer) markup(kb reminder.Keyboard) (*telebot.ReplyMarkup, error) {
	switch kb {
	case reminder.KeyboardGender:
		return r.keyboards.Gender()
	case reminder.KeyboardResetConfirm:
		return r.keyboards.ResetConfirm()
	case reminder.KeyboardReminder:
		return r.keyboards.Reminder()
	default:
		return nil, nil
	}
}

// genderKey defaults to the female wording when the gender is unset.
func genderKey(g domain.Gender) string {
	if g == domain.GenderMale {
		return string(domain.GenderMale)
	}
	return string(domain.GenderFemale)
}

func weekdayKey(d time.Weekday) string {
	return strings.ToLower(d.String())
}
