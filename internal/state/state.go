// Package state implements the onboarding state machine.
package state

import "github.com/Proton-105/nudge-bot/internal/domain"

// State represents a finite-state machine state.
type State string

const (
	// StateWaitingGender indicates that the user has to pick the message style.
	StateWaitingGender State = "waiting_gender"
	// StateWaitingInterval indicates that the user has to enter the reminder interval.
	StateWaitingInterval State = "waiting_interval"
	// StateWaitingTimezone indicates that the user has to enter the UTC offset.
	StateWaitingTimezone State = "waiting_timezone"
	// StateActive indicates that onboarding is complete and reminders are scheduled.
	StateActive State = "active"
)

// States lists every state in onboarding order.
var States = []State{
	StateWaitingGender,
	StateWaitingInterval,
	StateWaitingTimezone,
	StateActive,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// User is the persisted record of one chat. Fields that belong to a later
// onboarding step stay unset until that step is reached.
type User struct {
	ID             int64
	State          State
	Gender         domain.Gender
	Interval       *int
	TimezoneOffset *int
}

// Clone returns a deep copy of u.
func (u User) Clone() User {
	out := u
	if u.Interval != nil {
		v := *u.Interval
		out.Interval = &v
	}
	if u.TimezoneOffset != nil {
		v := *u.TimezoneOffset
		out.TimezoneOffset = &v
	}
	return out
}

// IsActive reports whether u finished onboarding and has an interval.
func (u User) IsActive() bool {
	return u.State == StateActive && u.Interval != nil && u.TimezoneOffset != nil
}

// IntervalMinutes returns the interval or zero when unset.
func (u User) IntervalMinutes() int {
	if u.Interval == nil {
		return 0
	}
	return *u.Interval
}

// Offset returns the timezone offset or zero when unset.
func (u User) Offset() int {
	if u.TimezoneOffset == nil {
		return 0
	}
	return *u.TimezoneOffset
}

func intPtr(v int) *int {
	return &v
}
