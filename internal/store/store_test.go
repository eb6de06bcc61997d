package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/nudge-bot/internal/domain"
	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
	"github.com/Proton-105/nudge-bot/internal/state"
)

type memBackend struct {
	data    []byte
	loadErr error
	saveErr error
	saves   int
}

func (m *memBackend) Load(context.Context) ([]byte, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.data == nil {
		return nil, ErrNoSnapshot
	}
	return m.data, nil
}

func (m *memBackend) Save(_ context.Context, data []byte) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = append([]byte(nil), data...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int) *int { return &v }

func activeUser(id int64, interval, offset int) state.User {
	return state.User{
		ID:             id,
		State:          state.StateActive,
		Gender:         domain.GenderMale,
		Interval:       intPtr(interval),
		TimezoneOffset: intPtr(offset),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := NewFileBackend(filepath.Join(t.TempDir(), "nested", "state.json"))
	s := New(backend, testLogger())
	require.NoError(t, s.Load(ctx))

	err := s.Update(ctx, func(tx *Tx) error {
		tx.PutUser(state.User{ID: 1, State: state.StateWaitingGender})
		tx.PutUser(state.User{ID: 2, State: state.StateWaitingInterval, Gender: domain.GenderFemale})
		tx.PutUser(state.User{ID: 3, State: state.StateWaitingTimezone, Gender: domain.GenderMale, Interval: intPtr(15)})
		tx.PutUser(activeUser(42, 30, -5))
		tx.IncrementCounter(domain.CounterKey{UserID: 42, Date: "2025-05-06"})
		tx.IncrementCounter(domain.CounterKey{UserID: 42, Date: "2025-05-07"})
		tx.IncrementCounter(domain.CounterKey{UserID: 42, Date: "2025-05-07"})
		return nil
	})
	require.NoError(t, err)

	restored := New(backend, testLogger())
	require.NoError(t, restored.Load(ctx))

	var before, after []state.User
	s.View(func(r Reader) { before = r.Users() })
	restored.View(func(r Reader) {
		after = r.Users()
		assert.Equal(t, 1, r.Counter(domain.CounterKey{UserID: 42, Date: "2025-05-06"}))
		assert.Equal(t, 2, r.Counter(domain.CounterKey{UserID: 42, Date: "2025-05-07"}))
	})

	assert.Equal(t, before, after)
	assert.Equal(t, s.counters, restored.counters)
}

func TestStore_SnapshotFormat(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := New(backend, testLogger())

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		tx.PutUser(state.User{ID: 7, State: state.StateWaitingGender})
		tx.PutUser(activeUser(42, 30, 3))
		tx.IncrementCounter(domain.CounterKey{UserID: 42, Date: "2025-05-07"})
		return nil
	}))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(backend.data, &raw))

	assert.Equal(t, float64(1), raw["schema_version"])
	users := raw["users"].(map[string]any)
	assert.Equal(t, map[string]any{"state": "waiting_gender"}, users["7"])
	assert.Equal(t, map[string]any{
		"state":           "active",
		"gender":          "male",
		"interval":        float64(30),
		"timezone_offset": float64(3),
	}, users["42"])
	assert.Equal(t, map[string]any{"42_2025-05-07": float64(1)}, raw["daily_stats"])
}

func TestStore_LoadFailsClosed(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{name: "missing version", data: `{"users":{"1":{"state":"active"}},"daily_stats":{}}`},
		{name: "future version", data: `{"schema_version":2,"users":{"1":{"state":"waiting_gender"}}}`},
		{name: "old version without migration", data: `{"schema_version":0,"users":{}}`},
		{name: "not json", data: `{"schema_version":1,`},
		{name: "bad user id", data: `{"schema_version":1,"users":{"abc":{"state":"waiting_gender"}}}`},
		{name: "bad state", data: `{"schema_version":1,"users":{"1":{"state":"idle"}}}`},
		{name: "bad gender", data: `{"schema_version":1,"users":{"1":{"state":"waiting_interval","gender":"x"}}}`},
		{name: "bad counter key", data: `{"schema_version":1,"users":{"1":{"state":"waiting_gender"}},"daily_stats":{"1-2025-05-07":3}}`},
		{name: "negative counter", data: `{"schema_version":1,"daily_stats":{"1_2025-05-07":-1}}`},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := New(&memBackend{data: []byte(tc.data)}, testLogger())
			s.users[99] = state.User{ID: 99, State: state.StateWaitingGender}

			err := s.Load(context.Background())
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodePersistence))

			s.View(func(r Reader) {
				assert.Empty(t, r.Users())
			})
			assert.Empty(t, s.counters)
		})
	}
}

func TestStore_LoadMissingSnapshot(t *testing.T) {
	s := New(NewFileBackend(filepath.Join(t.TempDir(), "absent.json")), testLogger())
	require.NoError(t, s.Load(context.Background()))
	assert.Empty(t, s.CountByState())
}

func TestStore_LoadBackendError(t *testing.T) {
	s := New(&memBackend{loadErr: errors.New("permission denied")}, testLogger())
	err := s.Load(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodePersistence))
}

func TestStore_UpdateSavesOnlyWhenDirty(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := New(backend, testLogger())

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		_, ok := tx.User(1)
		assert.False(t, ok)
		assert.False(t, tx.DeleteUser(1))
		assert.Zero(t, tx.DeleteCounters(1))
		return nil
	}))
	assert.Zero(t, backend.saves)

	validation := apperrors.NewValidationError("bad input")
	err := s.Update(ctx, func(tx *Tx) error { return validation })
	assert.ErrorIs(t, err, validation)
	assert.Zero(t, backend.saves)

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		tx.PutUser(state.User{ID: 1, State: state.StateWaitingGender})
		return nil
	}))
	assert.Equal(t, 1, backend.saves)
}

func TestStore_UpdateSaveFailure(t *testing.T) {
	backend := &memBackend{saveErr: errors.New("disk full")}
	s := New(backend, testLogger())

	err := s.Update(context.Background(), func(tx *Tx) error {
		tx.PutUser(state.User{ID: 1, State: state.StateWaitingGender})
		return nil
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePersistence))

	_, ok := s.User(1)
	assert.True(t, ok, "in-memory mutation is kept")
}

func TestStore_DeleteCounters(t *testing.T) {
	ctx := context.Background()
	s := New(&memBackend{}, testLogger())

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		tx.IncrementCounter(domain.CounterKey{UserID: 42, Date: "2025-05-06"})
		tx.IncrementCounter(domain.CounterKey{UserID: 42, Date: "2025-05-07"})
		tx.IncrementCounter(domain.CounterKey{UserID: 420, Date: "2025-05-07"})
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		assert.Equal(t, 2, tx.DeleteCounters(42))
		return nil
	}))

	s.View(func(r Reader) {
		assert.Zero(t, r.Counter(domain.CounterKey{UserID: 42, Date: "2025-05-07"}))
		assert.Equal(t, 1, r.Counter(domain.CounterKey{UserID: 420, Date: "2025-05-07"}))
	})
}

func TestStore_UserReturnsCopy(t *testing.T) {
	s := New(&memBackend{}, testLogger())
	require.NoError(t, s.Update(context.Background(), func(tx *Tx) error {
		tx.PutUser(activeUser(1, 10, 0))
		return nil
	}))

	u, ok := s.User(1)
	require.True(t, ok)
	*u.Interval = 500

	again, _ := s.User(1)
	assert.Equal(t, 10, again.IntervalMinutes())
}

func TestStore_CountByState(t *testing.T) {
	s := New(&memBackend{}, testLogger())
	require.NoError(t, s.Update(context.Background(), func(tx *Tx) error {
		tx.PutUser(state.User{ID: 1, State: state.StateWaitingGender})
		tx.PutUser(activeUser(2, 10, 0))
		tx.PutUser(activeUser(3, 10, 0))
		return nil
	}))

	assert.Equal(t, map[string]int{"waiting_gender": 1, "active": 2}, s.CountByState())
}

func TestStore_Flush(t *testing.T) {
	backend := &memBackend{}
	s := New(backend, testLogger())

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, backend.saves)
	assert.JSONEq(t, `{"schema_version":1,"users":{},"daily_stats":{}}`, string(backend.data))
}
