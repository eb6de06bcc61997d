// Package clock converts UTC instants into a user's local wall-clock view.
package clock

import "time"

const (
	// BusinessHourStart is the first local hour when reminders are delivered.
	BusinessHourStart = 9
	// BusinessHourEnd is the exclusive upper bound of the business window.
	BusinessHourEnd = 18

	dateLayout = "2006-01-02"
)

// Clock is the source of the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

// Now returns the current UTC instant.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant. Useful in tests.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}

// Local is the wall-clock view of an instant for a fixed hour offset.
type Local struct {
	// Weekday is Monday-first: 0 is Monday, 6 is Sunday.
	Weekday int
	Hour    int
	Date    string
	Time    time.Time
}

// Localize shifts utc by offsetHours and returns the local attributes.
func Localize(utc time.Time, offsetHours int) Local {
	local := utc.UTC().Add(time.Duration(offsetHours) * time.Hour)

	return Local{
		Weekday: mondayFirst(local.Weekday()),
		Hour:    local.Hour(),
		Date:    local.Format(dateLayout),
		Time:    local,
	}
}

// LocalDate returns the YYYY-MM-DD date of utc in the given offset.
func LocalDate(utc time.Time, offsetHours int) string {
	return Localize(utc, offsetHours).Date
}

// IsBusinessWindow reports whether local falls on Mon-Fri between 09:00 and 18:00.
func IsBusinessWindow(local Local) bool {
	return local.Weekday < 5 && local.Hour >= BusinessHourStart && local.Hour < BusinessHourEnd
}

// NextBusinessWeekday returns the weekday on which reminders actually start.
//
// After 18:00 on a weekday the start moves to tomorrow, on a weekend it moves
// to the next Monday, otherwise it is today. A candidate on a weekend is
// advanced until it reaches a weekday.
func NextBusinessWeekday(utc time.Time, offsetHours int) time.Weekday {
	local := Localize(utc, offsetHours)
	start := local.Time

	switch {
	case local.Weekday >= 5:
		start = start.AddDate(0, 0, 7-local.Weekday)
	case local.Hour >= BusinessHourEnd:
		start = start.AddDate(0, 0, 1)
	}

	for mondayFirst(start.Weekday()) >= 5 {
		start = start.AddDate(0, 0, 1)
	}

	return start.Weekday()
}

func mondayFirst(w time.Weekday) int {
	return (int(w) + 6) % 7
}
