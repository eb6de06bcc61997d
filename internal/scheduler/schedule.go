package scheduler

import "time"

// intervalSchedule fires once at first and then every period, anchored on
// first so that late wake-ups never shift later fires.
//
// cron calls Next only from its run loop, so started needs no lock.
type intervalSchedule struct {
	first   time.Time
	every   time.Duration
	started bool
}

func newIntervalSchedule(first time.Time, every time.Duration) *intervalSchedule {
	return &intervalSchedule{first: first, every: every}
}

// Next returns first on the initial call, even when first is already in the
// past, and afterwards the earliest anchored fire strictly after t.
func (s *intervalSchedule) Next(t time.Time) time.Time {
	if !s.started {
		s.started = true
		return s.first
	}

	if t.Before(s.first) {
		return s.first
	}

	steps := t.Sub(s.first)/s.every + 1
	return s.first.Add(steps * s.every)
}
