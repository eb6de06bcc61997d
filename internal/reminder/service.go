// Package reminder ties the onboarding state machine, the stores and the
// scheduler together behind transport-neutral operations.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/nudge-bot/internal/clock"
	"github.com/Proton-105/nudge-bot/internal/domain"
	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
	"github.com/Proton-105/nudge-bot/internal/state"
	"github.com/Proton-105/nudge-bot/internal/store"
)

// Scheduler is the part of the reminder scheduler the service drives.
type Scheduler interface {
	Reschedule(userID int64, every, firstDelay time.Duration) error
	Cancel(userID int64) bool
	Restore(users []state.User) int
}

// Service handles inbound user events. Each operation mutates the store at
// most once and the store persists before the operation returns.
type Service struct {
	store     *store.Store
	scheduler Scheduler
	clock     clock.Clock
	log       *slog.Logger
}

// NewService wires the service.
func NewService(st *store.Store, sched Scheduler, clk clock.Clock, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if clk == nil {
		clk = clock.System{}
	}

	return &Service{
		store:     st,
		scheduler: sched,
		clock:     clk,
		log:       log,
	}
}

// Start handles /start: creates the record on first contact or repeats the
// prompt of the current step.
func (s *Service) Start(ctx context.Context, userID int64) (Reply, error) {
	return s.transition(ctx, state.Event{Kind: state.EventStart, UserID: userID})
}

// Settings handles /settings: an active user goes back to the interval step.
// The running job keeps firing until the timezone step replaces it.
func (s *Service) Settings(ctx context.Context, userID int64) (Reply, error) {
	return s.transition(ctx, state.Event{Kind: state.EventSettings, UserID: userID})
}

// Gender handles a gender button press.
func (s *Service) Gender(ctx context.Context, userID int64, gender domain.Gender) (Reply, error) {
	return s.transition(ctx, state.Event{Kind: state.EventGender, UserID: userID, Gender: gender})
}

// Text handles free text. Text from users without a record is ignored.
func (s *Service) Text(ctx context.Context, userID int64, text string) (Reply, error) {
	return s.transition(ctx, state.Event{Kind: state.EventText, UserID: userID, Text: text})
}

func (s *Service) transition(ctx context.Context, ev state.Event) (Reply, error) {
	var out Reply

	err := s.store.Update(ctx, func(tx *store.Tx) error {
		var current *state.User
		if u, ok := tx.User(ev.UserID); ok {
			current = &u
		}

		outcome, err := state.Transition(current, ev)
		if err != nil {
			out = s.rejected(ev, current, err)
			return nil
		}

		if outcome.Changed {
			tx.PutUser(*outcome.User)
		}

		if outcome.Effect == state.EffectActivate {
			u := *outcome.User
			every := time.Duration(u.IntervalMinutes()) * time.Minute
			if err := s.scheduler.Reschedule(u.ID, every, 0); err != nil {
				return fmt.Errorf("schedule reminders for user %d: %w", u.ID, err)
			}
			out = s.activated(u)
			return nil
		}

		out = rendered(outcome)
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	return out, nil
}

// rejected maps a refused transition to a guidance reply. Nothing is mutated.
func (s *Service) rejected(ev state.Event, current *state.User, err error) Reply {
	log := s.log.With(slog.Int64("user_id", ev.UserID), slog.String("event", string(ev.Kind)))

	switch {
	case apperrors.HasCode(err, apperrors.CodeValidation):
		log.Debug("rejected input", slog.String("reason", err.Error()))
		switch {
		case current == nil:
			return reply(ReplyNone)
		case current.State == state.StateWaitingInterval:
			return reply(ReplyInvalidInterval)
		case current.State == state.StateWaitingTimezone:
			return reply(ReplyInvalidTimezone)
		default:
			return reply(ReplyNone)
		}

	case errors.Is(err, state.ErrUnknownUser):
		if ev.Kind == state.EventText {
			return reply(ReplyNone)
		}
		return reply(ReplyStartFirst)

	case errors.Is(err, state.ErrNotConfigured):
		return reply(ReplyNotConfigured)

	case errors.Is(err, state.ErrUnexpectedInput):
		if current != nil && current.State == state.StateWaitingGender {
			return Reply{Kind: ReplyPromptGender, Keyboard: KeyboardGender}
		}
		return reply(ReplyUseSettings)

	default:
		log.Debug("ignored event", slog.Any("error", err))
		return reply(ReplyNone)
	}
}

func rendered(outcome state.Outcome) Reply {
	u := outcome.User

	switch outcome.Effect {
	case state.EffectPromptGender:
		return Reply{Kind: ReplyPromptGender, Keyboard: KeyboardGender}
	case state.EffectPromptInterval:
		return Reply{Kind: ReplyPromptInterval, Gender: u.Gender}
	case state.EffectPromptTimezone:
		return Reply{Kind: ReplyPromptTimezone, Gender: u.Gender, Interval: u.IntervalMinutes()}
	case state.EffectAlreadyActive:
		return Reply{Kind: ReplyAlreadyActive, Gender: u.Gender, Interval: u.IntervalMinutes(), Offset: u.Offset()}
	default:
		return reply(ReplyNone)
	}
}

func (s *Service) activated(u state.User) Reply {
	now := s.clock.Now()
	out := Reply{
		Kind:     ReplyActivated,
		Gender:   u.Gender,
		Interval: u.IntervalMinutes(),
		Offset:   u.Offset(),
	}

	if clock.IsBusinessWindow(clock.Localize(now, u.Offset())) {
		out.StartsNow = true
	} else {
		out.NextWeekday = clock.NextBusinessWeekday(now, u.Offset())
	}

	s.log.Info("reminders activated",
		slog.Int64("user_id", u.ID),
		slog.Int("interval_minutes", u.IntervalMinutes()),
		slog.Int("timezone_offset", u.Offset()),
	)

	return out
}

// Status reports the settings and today's count of an active user.
func (s *Service) Status(_ context.Context, userID int64) (Reply, error) {
	out := reply(ReplyNotConfigured)

	s.store.View(func(r store.Reader) {
		u, ok := r.User(userID)
		if !ok || u.State != state.StateActive {
			return
		}

		key := domain.CounterKey{UserID: userID, Date: clock.LocalDate(s.clock.Now(), u.Offset())}
		out = Reply{
			Kind:     ReplyStatus,
			Gender:   u.Gender,
			Interval: u.IntervalMinutes(),
			Offset:   u.Offset(),
			Count:    r.Counter(key),
		}
	})

	return out, nil
}

// Done counts one completed reminder for the user's current local date.
func (s *Service) Done(ctx context.Context, userID int64) (Reply, error) {
	out := reply(ReplyNotConfigured)

	err := s.store.Update(ctx, func(tx *store.Tx) error {
		u, ok := tx.User(userID)
		if !ok || u.State != state.StateActive {
			return nil
		}

		key := domain.CounterKey{UserID: userID, Date: clock.LocalDate(s.clock.Now(), u.Offset())}
		out = Reply{
			Kind:   ReplyDone,
			Gender: u.Gender,
			Count:  tx.IncrementCounter(key),
		}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	return out, nil
}

// Later acknowledges a postponed reminder without touching any state.
func (s *Service) Later(_ context.Context, userID int64) (Reply, error) {
	u, ok := s.store.User(userID)
	if !ok || u.State != state.StateActive {
		return reply(ReplyNotConfigured), nil
	}

	return Reply{Kind: ReplyLater, Gender: u.Gender}, nil
}

// ResetRequest asks a known user to confirm deleting all their data.
func (s *Service) ResetRequest(_ context.Context, userID int64) (Reply, error) {
	if _, ok := s.store.User(userID); !ok {
		return reply(ReplyNotConfigured), nil
	}

	return Reply{Kind: ReplyResetPrompt, Keyboard: KeyboardResetConfirm}, nil
}

// ResetConfirm cancels the job and deletes the user with all counters.
// Replaying it for an already deleted user is a no-op.
func (s *Service) ResetConfirm(ctx context.Context, userID int64) (Reply, error) {
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		s.scheduler.Cancel(userID)

		removed := tx.DeleteCounters(userID)
		if tx.DeleteUser(userID) {
			s.log.Info("user reset", slog.Int64("user_id", userID), slog.Int("daily_stats_removed", removed))
		}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	return reply(ReplyResetDone), nil
}

// ResetCancel acknowledges a declined reset.
func (s *Service) ResetCancel(_ context.Context, _ int64) (Reply, error) {
	return reply(ReplyResetCancelled), nil
}

// RestoreJobs recreates reminder jobs for every persisted active user.
func (s *Service) RestoreJobs(_ context.Context) int {
	var users []state.User
	s.store.View(func(r store.Reader) {
		users = r.Users()
	})

	return s.scheduler.Restore(users)
}
