package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/nudge-bot/internal/clock"
	"github.com/Proton-105/nudge-bot/internal/domain"
	"github.com/Proton-105/nudge-bot/internal/state"
)

type userMap map[int64]state.User

func (m userMap) User(id int64) (state.User, bool) {
	u, ok := m[id]
	return u, ok
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []domain.Reminder
	err   error
	fired chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{fired: make(chan struct{}, 16)}
}

func (n *recordingNotifier) NotifyReminder(_ context.Context, r domain.Reminder) error {
	n.mu.Lock()
	n.sent = append(n.sent, r)
	n.mu.Unlock()

	select {
	case n.fired <- struct{}{}:
	default:
	}
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int) *int { return &v }

func activeUser(id int64, interval, offset int) state.User {
	return state.User{
		ID:             id,
		State:          state.StateActive,
		Gender:         domain.GenderFemale,
		Interval:       intPtr(interval),
		TimezoneOffset: intPtr(offset),
	}
}

// wednesday10 is 10:00 on Wednesday 2025-05-07 in UTC+3.
var wednesday10 = time.Date(2025, time.May, 7, 7, 0, 0, 0, time.UTC)

func firstFire(t *testing.T, s *Scheduler, userID int64) time.Time {
	t.Helper()

	s.mu.Lock()
	entryID, ok := s.jobs[userID]
	s.mu.Unlock()
	require.True(t, ok)

	sched, ok := s.cron.Entry(entryID).Schedule.(*intervalSchedule)
	require.True(t, ok)
	return sched.first
}

func TestIntervalSchedule_Next(t *testing.T) {
	first := time.Date(2025, time.May, 7, 9, 0, 0, 0, time.UTC)
	sched := newIntervalSchedule(first, 30*time.Minute)

	assert.Equal(t, first, sched.Next(first.Add(time.Second)), "initial call returns first even when late")
	assert.Equal(t, first.Add(30*time.Minute), sched.Next(first.Add(time.Second)))
	assert.Equal(t, first.Add(60*time.Minute), sched.Next(first.Add(30*time.Minute)))
	assert.Equal(t, first.Add(90*time.Minute), sched.Next(first.Add(61*time.Minute+17*time.Second)))
	assert.Equal(t, first, sched.Next(first.Add(-time.Hour)))
}

func TestScheduler_RescheduleIsIdempotent(t *testing.T) {
	s := New(userMap{}, newRecordingNotifier(), clock.Fixed(wednesday10), Options{}, testLogger())

	require.NoError(t, s.Reschedule(42, 30*time.Minute, 0))
	require.NoError(t, s.Reschedule(42, 30*time.Minute, 0))
	require.NoError(t, s.Reschedule(42, 45*time.Minute, 0))

	assert.Equal(t, []int64{42}, s.Jobs())
	assert.Len(t, s.cron.Entries(), 1)

	sched := s.cron.Entries()[0].Schedule.(*intervalSchedule)
	assert.Equal(t, 45*time.Minute, sched.every)
}

func TestScheduler_RescheduleAnchorsOnWallTime(t *testing.T) {
	s := New(userMap{}, newRecordingNotifier(), clock.Fixed(wednesday10), Options{}, testLogger())

	before := time.Now()
	require.NoError(t, s.Reschedule(42, 30*time.Minute, time.Hour))
	after := time.Now()

	first := firstFire(t, s, 42)
	assert.False(t, first.Before(before.Add(time.Hour)))
	assert.False(t, first.After(after.Add(time.Hour)))
}

func TestScheduler_RescheduleRejectsNonPositiveInterval(t *testing.T) {
	s := New(userMap{}, newRecordingNotifier(), nil, Options{}, testLogger())

	assert.Error(t, s.Reschedule(1, 0, 0))
	assert.Zero(t, s.Len())
}

func TestScheduler_Cancel(t *testing.T) {
	s := New(userMap{}, newRecordingNotifier(), nil, Options{}, testLogger())

	assert.False(t, s.Cancel(42), "cancel without a job is a no-op")

	require.NoError(t, s.Reschedule(42, time.Minute, 0))
	require.NoError(t, s.Reschedule(7, time.Minute, 0))

	assert.True(t, s.Cancel(42))
	assert.False(t, s.Cancel(42))
	assert.Equal(t, []int64{7}, s.Jobs())
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_Restore(t *testing.T) {
	s := New(userMap{}, newRecordingNotifier(), nil, Options{RestoreDelay: 5 * time.Second}, testLogger())

	users := []state.User{
		activeUser(1, 30, 3),
		activeUser(2, 540, -12),
		{ID: 3, State: state.StateWaitingTimezone, Interval: intPtr(15)},
		{ID: 4, State: state.StateActive},
		activeUser(5, 1, 14),
	}

	before := time.Now()
	restored := s.Restore(users)

	assert.Equal(t, 3, restored)
	assert.Equal(t, []int64{1, 2, 5}, s.Jobs())
	assert.Len(t, s.cron.Entries(), 3)

	for _, id := range s.Jobs() {
		first := firstFire(t, s, id)
		assert.False(t, first.Before(before.Add(5*time.Second)), "restored jobs wait for the grace delay")
	}

	assert.Equal(t, 3, s.Restore(users), "restoring twice keeps one job per user")
	assert.Len(t, s.cron.Entries(), 3)
}

func TestScheduler_Tick(t *testing.T) {
	testCases := []struct {
		name   string
		users  userMap
		now    time.Time
		err    error
		want   string
		wantTx int
	}{
		{
			name:   "business hours sends",
			users:  userMap{42: activeUser(42, 30, 3)},
			now:    wednesday10,
			want:   TickSent,
			wantTx: 1,
		},
		{
			name:  "missing record is a no-op",
			users: userMap{},
			now:   wednesday10,
			want:  TickInactive,
		},
		{
			name:  "user back in settings is a no-op",
			users: userMap{42: {ID: 42, State: state.StateWaitingInterval, Interval: intPtr(30), TimezoneOffset: intPtr(3)}},
			now:   wednesday10,
			want:  TickInactive,
		},
		{
			name:  "before nine skips",
			users: userMap{42: activeUser(42, 30, 3)},
			now:   time.Date(2025, time.May, 7, 5, 59, 0, 0, time.UTC),
			want:  TickSkipped,
		},
		{
			name:  "at eighteen skips",
			users: userMap{42: activeUser(42, 30, 3)},
			now:   time.Date(2025, time.May, 7, 15, 0, 0, 0, time.UTC),
			want:  TickSkipped,
		},
		{
			name:  "saturday skips",
			users: userMap{42: activeUser(42, 30, 3)},
			now:   time.Date(2025, time.May, 10, 9, 0, 0, 0, time.UTC),
			want:  TickSkipped,
		},
		{
			name:   "offset moves friday night into saturday",
			users:  userMap{42: activeUser(42, 30, 14)},
			now:    time.Date(2025, time.May, 9, 12, 0, 0, 0, time.UTC),
			want:   TickSkipped,
			wantTx: 0,
		},
		{
			name:   "delivery failure",
			users:  userMap{42: activeUser(42, 30, 3)},
			now:    wednesday10,
			err:    errors.New("telegram down"),
			want:   TickFailed,
			wantTx: 1,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			notifier := newRecordingNotifier()
			notifier.err = tc.err
			s := New(tc.users, notifier, clock.Fixed(tc.now), Options{}, testLogger())

			assert.Equal(t, tc.want, s.Tick(context.Background(), 42))
			assert.Equal(t, tc.wantTx, notifier.count())

			if tc.wantTx > 0 {
				assert.Equal(t, domain.Reminder{UserID: 42, Gender: domain.GenderFemale, FiredAt: tc.now}, notifier.sent[0])
			}
		})
	}
}

func TestScheduler_BusinessWindowGrid(t *testing.T) {
	// 2025-05-05 is a Monday.
	monday := time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC)

	for day := 0; day < 7; day++ {
		for hour := 0; hour < 24; hour++ {
			now := monday.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
			notifier := newRecordingNotifier()
			s := New(userMap{1: activeUser(1, 10, 0)}, notifier, clock.Fixed(now), Options{}, testLogger())

			got := s.Tick(context.Background(), 1)
			if day < 5 && hour >= 9 && hour < 18 {
				assert.Equal(t, TickSent, got, "day %d hour %d", day, hour)
			} else {
				assert.Equal(t, TickSkipped, got, "day %d hour %d", day, hour)
				assert.Zero(t, notifier.count())
			}
		}
	}
}

func TestScheduler_ImmediateFirstFire(t *testing.T) {
	notifier := newRecordingNotifier()
	s := New(userMap{42: activeUser(42, 30, 3)}, notifier, clock.Fixed(wednesday10), Options{}, testLogger())
	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})

	require.NoError(t, s.Reschedule(42, time.Hour, 0))

	select {
	case <-notifier.fired:
	case <-time.After(3 * time.Second):
		t.Fatal("expected an immediate first fire")
	}

	assert.Equal(t, 1, notifier.count())
}

func TestScheduler_CancelStopsFutureFires(t *testing.T) {
	notifier := newRecordingNotifier()
	s := New(userMap{42: activeUser(42, 30, 3)}, notifier, clock.Fixed(wednesday10), Options{}, testLogger())
	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})

	require.NoError(t, s.Reschedule(42, time.Hour, 2*time.Second))
	assert.True(t, s.Cancel(42))

	select {
	case <-notifier.fired:
		t.Fatal("cancelled job must not fire")
	case <-time.After(3 * time.Second):
	}
}
