// Package recurrence computes the next occurrence of a recurring invoice
// schedule.
//
// All functions are pure: the result depends only on the rule and the
// explicit reference time, never on the wall clock. Month arithmetic is done
// on the first of the month and the target day is clamped to the length of
// the resulting month, so a rule anchored on the 31st yields Feb 28 (29 in
// leap years), Apr 30 and so on, and returns to the 31st in long months.
package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Frequency is the unit of a recurring schedule.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// IsValid reports whether f is a known frequency.
func (f Frequency) IsValid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Rule describes a recurring schedule. Day and Month are optional anchors:
// zero means "use the reference date's value".
type Rule struct {
	Frequency Frequency `json:"frequency"`
	Every     int       `json:"every"`           // >= 1
	Day       int       `json:"day,omitempty"`   // 1-31, monthly and yearly
	Month     int       `json:"month,omitempty"` // 1-12, yearly
}

// Validate checks the rule's ranges.
func (r Rule) Validate() error {
	var errs []error
	if !r.Frequency.IsValid() {
		errs = append(errs, fmt.Errorf("recurrence: unknown frequency %q", r.Frequency))
	}
	if r.Every < 1 {
		errs = append(errs, fmt.Errorf("recurrence: every must be >= 1, got %d", r.Every))
	}
	if r.Day < 0 || r.Day > 31 {
		errs = append(errs, fmt.Errorf("recurrence: day must be 1-31, got %d", r.Day))
	}
	if r.Month < 0 || r.Month > 12 {
		errs = append(errs, fmt.Errorf("recurrence: month must be 1-12, got %d", r.Month))
	}
	return errors.Join(errs...)
}

// AnchoredAt fills unset anchors from at: the day for monthly and yearly
// rules, and the month for yearly rules. Explicit anchors are kept.
func (r Rule) AnchoredAt(at time.Time) Rule {
	switch r.Frequency {
	case Monthly:
		if r.Day == 0 {
			r.Day = at.Day()
		}
	case Yearly:
		if r.Day == 0 {
			r.Day = at.Day()
		}
		if r.Month == 0 {
			r.Month = int(at.Month())
		}
	}
	return r
}

// Next returns the occurrence that follows from.
func (r Rule) Next(from time.Time) time.Time {
	return NextDate(r.Frequency, r.Every, r.Day, r.Month, from)
}

// NextAfter advances from until the result is strictly after now. Missed
// occurrences are skipped rather than returned one by one. The result is
// always at least one step past from.
func (r Rule) NextAfter(from, now time.Time) time.Time {
	next := r.Next(from)
	for !next.After(now) {
		next = r.Next(next)
	}
	return next
}

// NextDate computes the next occurrence after from. The time of day and
// location of from are preserved.
func NextDate(freq Frequency, every, day, month int, from time.Time) time.Time {
	if every < 1 {
		every = 1
	}

	switch freq {
	case Daily:
		return from.AddDate(0, 0, every)
	case Weekly:
		return from.AddDate(0, 0, 7*every)
	case Monthly:
		if day == 0 {
			day = from.Day()
		}
		first := firstOfMonth(from.Year(), from.Month()+time.Month(every), from)
		return withDay(first, day)
	case Yearly:
		if day == 0 {
			day = from.Day()
		}
		m := from.Month()
		if month >= 1 && month <= 12 {
			m = time.Month(month)
		}
		first := firstOfMonth(from.Year()+every, m, from)
		return withDay(first, day)
	default:
		return from.AddDate(0, 0, every)
	}
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// firstOfMonth normalizes month overflow (e.g. month 14) before any day is
// applied, avoiding time.Date's day-overflow rollover.
func firstOfMonth(year int, month time.Month, clock time.Time) time.Time {
	return time.Date(year, month, 1, clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), clock.Location())
}

func withDay(first time.Time, day int) time.Time {
	if n := DaysIn(first.Year(), first.Month()); day > n {
		day = n
	}
	if day < 1 {
		day = 1
	}
	return first.AddDate(0, 0, day-1)
}
