// Package scheduler owns one recurring reminder job per active user.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Proton-105/nudge-bot/internal/clock"
	"github.com/Proton-105/nudge-bot/internal/domain"
	"github.com/Proton-105/nudge-bot/internal/state"
	"github.com/Proton-105/nudge-bot/pkg/metrics"
)

// Tick outcomes, also used as the reminder_ticks_total label.
const (
	TickSent     = "sent"
	TickSkipped  = "skipped"
	TickInactive = "inactive"
	TickFailed   = "failed"
)

// DefaultRestoreDelay is the first-fire grace period for restored jobs.
const DefaultRestoreDelay = 5 * time.Second

const tickTimeout = time.Minute

// UserSource looks up the current user record for a tick.
type UserSource interface {
	User(id int64) (state.User, bool)
}

// Notifier delivers a reminder to the transport.
type Notifier interface {
	NotifyReminder(ctx context.Context, r domain.Reminder) error
}

// Options tunes the scheduler.
type Options struct {
	RestoreDelay time.Duration
}

// Scheduler keeps at most one cron entry per user id.
type Scheduler struct {
	cron     *cron.Cron
	users    UserSource
	notifier Notifier
	clock    clock.Clock
	opts     Options
	log      *slog.Logger

	mu   sync.Mutex
	jobs map[int64]cron.EntryID
}

// New builds a stopped scheduler.
func New(users UserSource, notifier Notifier, clk clock.Clock, opts Options, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if clk == nil {
		clk = clock.System{}
	}
	if opts.RestoreDelay <= 0 {
		opts.RestoreDelay = DefaultRestoreDelay
	}

	cronLog := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelError))

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		users:    users,
		notifier: notifier,
		clock:    clk,
		opts:     opts,
		log:      log.With(slog.String("component", "scheduler")),
		jobs:     make(map[int64]cron.EntryID),
	}
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", slog.Int("jobs", s.Len()))
}

// Stop prevents new ticks and waits for running ticks until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running reminder ticks: %w", ctx.Err())
	}
}

// Reschedule replaces the job of userID with one firing every period, the
// first fire after firstDelay. A zero delay fires on the next loop iteration.
func (s *Scheduler) Reschedule(userID int64, every, firstDelay time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("reschedule user %d: interval must be positive, got %s", userID, every)
	}
	if firstDelay < 0 {
		firstDelay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(userID)

	// cron runs its timers on wall time, so the anchor does too. s.clock only
	// decides the business-window gate inside Tick.
	first := time.Now().Add(firstDelay)
	entryID := s.cron.Schedule(newIntervalSchedule(first, every), cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		s.Tick(ctx, userID)
	}))
	s.jobs[userID] = entryID

	metrics.SetScheduledJobs(len(s.jobs))
	s.log.Debug("reminder job scheduled",
		slog.Int64("user_id", userID),
		slog.Duration("interval", every),
		slog.Duration("first_delay", firstDelay),
	)

	return nil
}

// Cancel removes the job of userID. It reports whether a job existed.
// A tick that is already running is not interrupted.
func (s *Scheduler) Cancel(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.cancelLocked(userID)
	if removed {
		metrics.SetScheduledJobs(len(s.jobs))
		s.log.Debug("reminder job cancelled", slog.Int64("user_id", userID))
	}
	return removed
}

func (s *Scheduler) cancelLocked(userID int64) bool {
	entryID, ok := s.jobs[userID]
	if !ok {
		return false
	}

	s.cron.Remove(entryID)
	delete(s.jobs, userID)
	return true
}

// Restore schedules every active user with the restore grace delay and
// returns the number of jobs created.
func (s *Scheduler) Restore(users []state.User) int {
	restored := 0
	for _, u := range users {
		if !u.IsActive() {
			continue
		}

		every := time.Duration(u.IntervalMinutes()) * time.Minute
		if err := s.Reschedule(u.ID, every, s.opts.RestoreDelay); err != nil {
			s.log.Warn("failed to restore reminder job", slog.Int64("user_id", u.ID), slog.Any("error", err))
			continue
		}
		restored++
	}

	s.log.Info("reminder jobs restored",
		slog.Int("restored", restored),
		slog.Duration("first_delay", s.opts.RestoreDelay),
	)

	return restored
}

// Jobs returns the user ids with a live job in ascending order.
func (s *Scheduler) Jobs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of live jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Tick evaluates one fire for userID and returns its outcome.
func (s *Scheduler) Tick(ctx context.Context, userID int64) string {
	result := s.tick(ctx, userID)
	metrics.RecordTick(result)
	return result
}

func (s *Scheduler) tick(ctx context.Context, userID int64) string {
	u, ok := s.users.User(userID)
	if !ok || u.State != state.StateActive {
		s.log.Debug("tick for inactive user", slog.Int64("user_id", userID))
		return TickInactive
	}

	now := s.clock.Now()
	if !clock.IsBusinessWindow(clock.Localize(now, u.Offset())) {
		return TickSkipped
	}

	err := s.notifier.NotifyReminder(ctx, domain.Reminder{
		UserID:  u.ID,
		Gender:  u.Gender,
		FiredAt: now,
	})
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelWarn
		}
		s.log.Log(ctx, level, "failed to deliver reminder", slog.Int64("user_id", userID), slog.Any("error", err))
		return TickFailed
	}

	return TickSent
}
