package reminder

import (
	"time"

	"github.com/Proton-105/nudge-bot/internal/domain"
)

// ReplyKind names the message the transport should render.
type ReplyKind string

const (
	ReplyNone            ReplyKind = ""
	ReplyPromptGender    ReplyKind = "prompt_gender"
	ReplyPromptInterval  ReplyKind = "prompt_interval"
	ReplyInvalidInterval ReplyKind = "invalid_interval"
	ReplyPromptTimezone  ReplyKind = "prompt_timezone"
	ReplyInvalidTimezone ReplyKind = "invalid_timezone"
	ReplyActivated       ReplyKind = "activated"
	ReplyAlreadyActive   ReplyKind = "already_active"
	ReplyUseSettings     ReplyKind = "use_settings"
	ReplyStartFirst      ReplyKind = "start_first"
	ReplyNotConfigured   ReplyKind = "not_configured"
	ReplyStatus          ReplyKind = "status"
	ReplyDone            ReplyKind = "done"
	ReplyLater           ReplyKind = "later"
	ReplyResetPrompt     ReplyKind = "reset_prompt"
	ReplyResetDone       ReplyKind = "reset_done"
	ReplyResetCancelled  ReplyKind = "reset_cancelled"
)

// Keyboard names the inline keyboard attached to a reply.
type Keyboard string

const (
	KeyboardNone         Keyboard = ""
	KeyboardGender       Keyboard = "gender"
	KeyboardResetConfirm Keyboard = "reset_confirm"
	KeyboardReminder     Keyboard = "reminder"
)

// Reply is a transport-neutral response to an inbound event.
type Reply struct {
	Kind     ReplyKind
	Keyboard Keyboard

	Gender   domain.Gender
	Interval int
	Offset   int
	Count    int

	// StartsNow is set on activation inside the business window; otherwise
	// NextWeekday names the day reminders begin.
	StartsNow   bool
	NextWeekday time.Weekday
}

func reply(kind ReplyKind) Reply {
	return Reply{Kind: kind}
}
