// Package store keeps users and daily counters in memory and persists them
// as a single versioned snapshot.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Proton-105/nudge-bot/internal/domain"
	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
	"github.com/Proton-105/nudge-bot/internal/state"
	"github.com/Proton-105/nudge-bot/pkg/metrics"
)

// Reader is the read-only view handed to View callbacks.
type Reader interface {
	User(id int64) (state.User, bool)
	Users() []state.User
	Counter(key domain.CounterKey) int
}

// Store owns the user and counter maps behind one lock. Every mutation made
// through Update is written to the backend before the lock is released.
type Store struct {
	mu       sync.RWMutex
	users    map[int64]state.User
	counters map[domain.CounterKey]int
	backend  Backend
	log      *slog.Logger
}

// New creates an empty store persisting to backend.
func New(backend Backend, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		users:    make(map[int64]state.User),
		counters: make(map[domain.CounterKey]int),
		backend:  backend,
		log:      log,
	}
}

// Load replaces the in-memory state with the persisted snapshot.
//
// A missing snapshot yields an empty store and no error. An unreadable or
// unsupported snapshot also leaves the store empty and returns a
// PersistenceError; nothing from it is applied.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[int64]state.User)
	s.counters = make(map[domain.CounterKey]int)

	data, err := s.backend.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		s.log.Info("no snapshot found, starting with empty state")
		return nil
	}
	if err != nil {
		return apperrors.NewPersistenceError(fmt.Errorf("load snapshot: %w", err))
	}

	loaded, err := decodeSnapshot(data)
	if err != nil {
		return apperrors.NewPersistenceError(err)
	}

	s.users = loaded.users
	s.counters = loaded.counters

	s.log.Info("snapshot loaded",
		slog.Int("users", len(s.users)),
		slog.Int("daily_stats", len(s.counters)),
	)

	return nil
}

// Update runs fn under the write lock. If fn changed anything, the full
// snapshot is saved before Update returns, even when fn itself failed.
// fn's error takes precedence over a save error.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{s: s}
	fnErr := fn(tx)

	var saveErr error
	if tx.dirty {
		saveErr = s.saveLocked(ctx)
	}

	if fnErr != nil {
		return fnErr
	}

	return saveErr
}

// View runs fn under the read lock.
func (s *Store) View(fn func(r Reader)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fn(&Tx{s: s})
}

// User returns a copy of the record for id.
func (s *Store) User(id int64) (state.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return state.User{}, false
	}
	return u.Clone(), true
}

// Flush writes the current state unconditionally. Used on shutdown.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(ctx)
}

// CountByState reports the number of users per onboarding state.
func (s *Store) CountByState() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(state.States))
	for _, u := range s.users {
		counts[string(u.State)]++
	}
	return counts
}

// HealthCheck delegates to the backend when it supports health checks.
func (s *Store) HealthCheck(ctx context.Context) error {
	if checker, ok := s.backend.(HealthChecker); ok {
		return checker.HealthCheck(ctx)
	}
	return nil
}

func (s *Store) saveLocked(ctx context.Context) error {
	data, err := encodeSnapshot(s.users, s.counters)
	if err == nil {
		err = s.backend.Save(ctx, data)
	}

	metrics.RecordSave(err)

	if err != nil {
		s.log.Error("failed to save snapshot", slog.Any("error", err))
		return apperrors.NewPersistenceError(fmt.Errorf("save snapshot: %w", err))
	}

	return nil
}

// Tx is the view of the store inside Update and View callbacks.
// It must not be retained after the callback returns.
type Tx struct {
	s     *Store
	dirty bool
}

// User returns a copy of the record for id.
func (tx *Tx) User(id int64) (state.User, bool) {
	u, ok := tx.s.users[id]
	if !ok {
		return state.User{}, false
	}
	return u.Clone(), true
}

// Users returns copies of all records ordered by id.
func (tx *Tx) Users() []state.User {
	out := make([]state.User, 0, len(tx.s.users))
	for _, id := range sortedIDs(tx.s.users) {
		out = append(out, tx.s.users[id].Clone())
	}
	return out
}

// PutUser inserts or replaces a record.
func (tx *Tx) PutUser(u state.User) {
	tx.s.users[u.ID] = u.Clone()
	tx.dirty = true
}

// DeleteUser removes a record and reports whether it existed.
func (tx *Tx) DeleteUser(id int64) bool {
	if _, ok := tx.s.users[id]; !ok {
		return false
	}
	delete(tx.s.users, id)
	tx.dirty = true
	return true
}

// Counter returns the count stored under key, zero when absent.
func (tx *Tx) Counter(key domain.CounterKey) int {
	return tx.s.counters[key]
}

// IncrementCounter adds one to key and returns the new count.
func (tx *Tx) IncrementCounter(key domain.CounterKey) int {
	tx.s.counters[key]++
	tx.dirty = true
	return tx.s.counters[key]
}

// DeleteCounters removes every counter of userID and returns how many were removed.
func (tx *Tx) DeleteCounters(userID int64) int {
	removed := 0
	for key := range tx.s.counters {
		if key.UserID == userID {
			delete(tx.s.counters, key)
			removed++
		}
	}
	if removed > 0 {
		tx.dirty = true
	}
	return removed
}
