package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const counterDateLayout = "2006-01-02"

// CounterKey identifies one user's completion counter for one local date.
type CounterKey struct {
	UserID int64
	Date   string
}

// String returns the persisted form "<id>_<YYYY-MM-DD>".
func (k CounterKey) String() string {
	return fmt.Sprintf("%d_%s", k.UserID, k.Date)
}

// ParseCounterKey parses the persisted form produced by String.
func ParseCounterKey(s string) (CounterKey, error) {
	idx := strings.LastIndex(s, "_")
	if idx <= 0 || idx == len(s)-1 {
		return CounterKey{}, fmt.Errorf("counter key %q: missing separator", s)
	}

	userID, err := strconv.ParseInt(s[:idx], 10, 64)
	if err != nil {
		return CounterKey{}, fmt.Errorf("counter key %q: user id: %w", s, err)
	}

	date := s[idx+1:]
	if _, err := time.Parse(counterDateLayout, date); err != nil {
		return CounterKey{}, fmt.Errorf("counter key %q: date: %w", s, err)
	}

	return CounterKey{UserID: userID, Date: date}, nil
}
