package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/Proton-105/nudge-bot/internal/domain"
	"github.com/Proton-105/nudge-bot/internal/state"
)

// SchemaVersion is the snapshot layout written by this build.
const SchemaVersion = 1

var errMissingVersion = errors.New("snapshot has no schema_version")

// migrations upgrade a decoded snapshot from the keyed version to the next one.
// Versions without an entry cannot be loaded.
var migrations = map[int]func(*snapshot) error{}

type snapshot struct {
	SchemaVersion *int                  `json:"schema_version"`
	Users         map[string]userRecord `json:"users"`
	DailyStats    map[string]int        `json:"daily_stats"`
}

type userRecord struct {
	State          string `json:"state"`
	Gender         string `json:"gender,omitempty"`
	Interval       *int   `json:"interval,omitempty"`
	TimezoneOffset *int   `json:"timezone_offset,omitempty"`
}

type contents struct {
	users    map[int64]state.User
	counters map[domain.CounterKey]int
}

func encodeSnapshot(users map[int64]state.User, counters map[domain.CounterKey]int) ([]byte, error) {
	version := SchemaVersion
	snap := snapshot{
		SchemaVersion: &version,
		Users:         make(map[string]userRecord, len(users)),
		DailyStats:    make(map[string]int, len(counters)),
	}

	for id, u := range users {
		snap.Users[strconv.FormatInt(id, 10)] = userRecord{
			State:          string(u.State),
			Gender:         string(u.Gender),
			Interval:       u.Interval,
			TimezoneOffset: u.TimezoneOffset,
		}
	}

	for key, count := range counters {
		snap.DailyStats[key.String()] = count
	}

	return json.MarshalIndent(snap, "", "  ")
}

// decodeSnapshot parses data in full or not at all.
func decodeSnapshot(data []byte) (contents, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return contents{}, fmt.Errorf("decode snapshot: %w", err)
	}

	if snap.SchemaVersion == nil {
		return contents{}, errMissingVersion
	}

	if err := migrate(&snap); err != nil {
		return contents{}, err
	}

	out := contents{
		users:    make(map[int64]state.User, len(snap.Users)),
		counters: make(map[domain.CounterKey]int, len(snap.DailyStats)),
	}

	for rawID, rec := range snap.Users {
		u, err := rec.toUser(rawID)
		if err != nil {
			return contents{}, err
		}
		out.users[u.ID] = u
	}

	for rawKey, count := range snap.DailyStats {
		key, err := domain.ParseCounterKey(rawKey)
		if err != nil {
			return contents{}, err
		}
		if count < 0 {
			return contents{}, fmt.Errorf("daily stat %q: negative count %d", rawKey, count)
		}
		out.counters[key] = count
	}

	return out, nil
}

func migrate(snap *snapshot) error {
	for *snap.SchemaVersion != SchemaVersion {
		version := *snap.SchemaVersion
		step, ok := migrations[version]
		if !ok || version > SchemaVersion {
			return fmt.Errorf("unsupported snapshot schema_version %d", version)
		}
		if err := step(snap); err != nil {
			return fmt.Errorf("migrate snapshot from version %d: %w", version, err)
		}
		next := version + 1
		snap.SchemaVersion = &next
	}

	return nil
}

func (r userRecord) toUser(rawID string) (state.User, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return state.User{}, fmt.Errorf("user %q: invalid id: %w", rawID, err)
	}

	u := state.User{
		ID:             id,
		State:          state.State(r.State),
		Interval:       r.Interval,
		TimezoneOffset: r.TimezoneOffset,
	}
	if !u.State.Valid() {
		return state.User{}, fmt.Errorf("user %d: unknown state %q", id, r.State)
	}

	if r.Gender != "" {
		g, err := domain.ParseGender(r.Gender)
		if err != nil {
			return state.User{}, fmt.Errorf("user %d: %w", id, err)
		}
		u.Gender = g
	}

	return u, nil
}

func sortedIDs(users map[int64]state.User) []int64 {
	ids := make([]int64, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
