package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/nudge-bot/internal/domain"
	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
	"github.com/Proton-105/nudge-bot/internal/jobs"
	"github.com/Proton-105/nudge-bot/internal/state"
)

type users map[int64]state.User

func (u users) User(id int64) (state.User, bool) {
	v, ok := u[id]
	return v, ok
}

type notifierFunc func(ctx context.Context, r domain.Reminder) error

func (f notifierFunc) NotifyReminder(ctx context.Context, r domain.Reminder) error { return f(ctx, r) }

func intPtr(v int) *int { return &v }

func reminderTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := jobs.NewReminderTask(domain.Reminder{
		UserID:  42,
		Gender:  domain.GenderFemale,
		FiredAt: time.Date(2025, time.May, 7, 7, 30, 0, 0, time.UTC),
	}, jobs.TaskOptions{MaxRetry: 3})
	require.NoError(t, err)
	return task
}

func TestReminderDeliverHandler(t *testing.T) {
	active := users{42: {ID: 42, State: state.StateActive, Gender: domain.GenderFemale, Interval: intPtr(30), TimezoneOffset: intPtr(3)}}
	permanent := apperrors.NewExternalAPIError("telegram", errors.New("blocked"))
	permanent.Retryable = false

	testCases := []struct {
		name      string
		users     users
		sendErr   error
		wantSent  int
		wantErr   bool
		wantRetry bool
	}{
		{name: "delivers", users: active, wantSent: 1},
		{name: "reset user is dropped", users: users{}, wantSent: 0},
		{name: "transient failure retries", users: active, sendErr: apperrors.NewExternalAPIError("telegram", errors.New("timeout")), wantSent: 1, wantErr: true, wantRetry: true},
		{name: "permanent failure skips retry", users: active, sendErr: permanent, wantSent: 1, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sent := 0
			h := NewReminderDeliverHandler(notifierFunc(func(_ context.Context, r domain.Reminder) error {
				sent++
				assert.Equal(t, int64(42), r.UserID)
				return tc.sendErr
			}), tc.users, slog.New(slog.NewTextHandler(io.Discard, nil)))

			err := h.ProcessTask(context.Background(), reminderTask(t))
			assert.Equal(t, tc.wantSent, sent)

			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, !tc.wantRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestReminderDeliverHandler_BadPayloadSkipsRetry(t *testing.T) {
	h := NewReminderDeliverHandler(notifierFunc(func(context.Context, domain.Reminder) error {
		t.Fatal("must not send")
		return nil
	}), users{}, nil)

	err := h.ProcessTask(context.Background(), asynq.NewTask(jobs.TaskTypeReminderDeliver, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
