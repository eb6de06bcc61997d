package state

import (
	"errors"

	"github.com/Proton-105/nudge-bot/internal/domain"
)

var (
	// ErrInvalidTransition indicates that a requested FSM transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrUnknownUser indicates that the event references a user without a record.
	ErrUnknownUser = errors.New("user record not found")
	// ErrUnexpectedInput indicates free text the current state does not expect.
	ErrUnexpectedInput = errors.New("unexpected input for current state")
	// ErrNotConfigured indicates an operation that needs a finished onboarding.
	ErrNotConfigured = errors.New("user has not finished onboarding")
)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe FSM transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// EventKind names an inbound event understood by the state machine.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventSettings EventKind = "settings"
	EventGender   EventKind = "gender"
	EventText     EventKind = "text"
)

// Event is one inbound user action.
type Event struct {
	Kind   EventKind
	UserID int64
	Text   string
	Gender domain.Gender
}

// Effect tells the caller what to do after a transition.
type Effect string

const (
	EffectNone           Effect = ""
	EffectPromptGender   Effect = "prompt_gender"
	EffectPromptInterval Effect = "prompt_interval"
	EffectPromptTimezone Effect = "prompt_timezone"
	EffectAlreadyActive  Effect = "already_active"
	// EffectActivate asks the caller to replace the user's reminder job.
	EffectActivate Effect = "activate"
)

// Outcome is the result of applying an event to a record.
type Outcome struct {
	// User is the record after the event, nil when no record exists.
	User *User
	// Changed is set when User differs from the input and must be persisted.
	Changed bool
	Effect  Effect
}

// Transition applies ev to current and returns the next record with the
// effect to render. It never mutates current. Validation failures are
// returned as errors together with an unchanged outcome.
func Transition(current *User, ev Event) (Outcome, error) {
	if current == nil {
		if ev.Kind != EventStart {
			return Outcome{}, ErrUnknownUser
		}

		created := User{ID: ev.UserID, State: StateWaitingGender}
		record(created.State, "")
		return Outcome{User: &created, Changed: true, Effect: EffectPromptGender}, nil
	}

	next := current.Clone()
	unchanged := Outcome{User: &next}

	switch ev.Kind {
	case EventStart:
		unchanged.Effect = promptFor(next.State)
		return unchanged, nil

	case EventSettings:
		if next.State != StateActive {
			return unchanged, ErrNotConfigured
		}
		return advance(next, StateWaitingInterval, EffectPromptInterval)

	case EventGender:
		if next.State != StateWaitingGender {
			return unchanged, ErrInvalidTransition
		}
		if !ev.Gender.Valid() {
			_, err := domain.ParseGender(string(ev.Gender))
			return unchanged, err
		}
		next.Gender = ev.Gender
		return advance(next, StateWaitingInterval, EffectPromptInterval)

	case EventText:
		switch next.State {
		case StateWaitingInterval:
			minutes, err := domain.ParseInterval(ev.Text)
			if err != nil {
				unchanged.Effect = EffectPromptInterval
				return unchanged, err
			}
			next.Interval = intPtr(minutes)
			return advance(next, StateWaitingTimezone, EffectPromptTimezone)

		case StateWaitingTimezone:
			offset, err := domain.ParseTimezoneOffset(ev.Text)
			if err != nil {
				unchanged.Effect = EffectPromptTimezone
				return unchanged, err
			}
			next.TimezoneOffset = intPtr(offset)
			return advance(next, StateActive, EffectActivate)

		default:
			return unchanged, ErrUnexpectedInput
		}
	}

	return unchanged, ErrInvalidTransition
}

func advance(next User, to State, effect Effect) (Outcome, error) {
	from := next.State
	if !IsTransitionAllowed(from, to) {
		return Outcome{User: &next}, ErrInvalidTransition
	}

	next.State = to
	record(to, from)

	return Outcome{User: &next, Changed: true, Effect: effect}, nil
}

func promptFor(s State) Effect {
	switch s {
	case StateWaitingGender:
		return EffectPromptGender
	case StateWaitingInterval:
		return EffectPromptInterval
	case StateWaitingTimezone:
		return EffectPromptTimezone
	default:
		return EffectAlreadyActive
	}
}

func record(to, from State) {
	transitionRecorder(string(from), string(to))
}
