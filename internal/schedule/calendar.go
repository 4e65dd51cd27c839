package schedule

import (
	"errors"
	"time"

	"servio/internal/domain"
)

// Pure date arithmetic for recurrence patterns. Everything here is a function
// of its inputs; dates are normalized to midnight UTC before comparison.

var (
	ErrNoExpansion        = errors.New("schedule: recurrence type does not expand")
	ErrDaySelectorMissing = errors.New("schedule: rule is missing its day selector")
	ErrAnchorMismatch     = errors.New("schedule: anchor weekday does not match day selector")
)

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole-day difference to - from.
func DaysBetween(from, to time.Time) int {
	return int(DateOnly(to).Sub(DateOnly(from)) / (24 * time.Hour))
}

// clampedMonthDay builds the date for dayOfMonth inside year/month, clamping
// to the month's last day when the month is shorter (a rule pinned to the
// 31st fires on Feb 28/29).
func clampedMonthDay(year int, month time.Month, dayOfMonth int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if dayOfMonth > last {
		dayOfMonth = last
	}
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

// NextOccurrence returns the first date on or after afterOrOn that matches the
// recurrence pattern. Biweekly and triweekly additionally require the
// candidate to be a whole multiple of 14 (21) days from the anchor.
func NextOccurrence(afterOrOn time.Time, rtype domain.RecurrenceType, anchor time.Time, dayOfWeek, dayOfMonth *int) (time.Time, error) {
	afterOrOn = DateOnly(afterOrOn)
	anchor = DateOnly(anchor)

	switch rtype {
	case domain.RecurrenceWeekly, domain.RecurrenceBiweekly, domain.RecurrenceTriweekly:
		if dayOfWeek == nil || *dayOfWeek < 0 || *dayOfWeek > 6 {
			return time.Time{}, ErrDaySelectorMissing
		}
		delta := (*dayOfWeek - int(afterOrOn.Weekday()) + 7) % 7
		candidate := afterOrOn.AddDate(0, 0, delta)
		if rtype == domain.RecurrenceWeekly {
			return candidate, nil
		}
		cycle := 14
		if rtype == domain.RecurrenceTriweekly {
			cycle = 21
		}
		// Walk week by week until the candidate is in phase with the anchor.
		for i := 0; i < cycle/7; i++ {
			if mod(DaysBetween(anchor, candidate), cycle) == 0 {
				return candidate, nil
			}
			candidate = candidate.AddDate(0, 0, 7)
		}
		return time.Time{}, ErrAnchorMismatch

	case domain.RecurrenceMonthly:
		if dayOfMonth == nil || *dayOfMonth < 1 || *dayOfMonth > 31 {
			return time.Time{}, ErrDaySelectorMissing
		}
		candidate := clampedMonthDay(afterOrOn.Year(), afterOrOn.Month(), *dayOfMonth)
		if candidate.Before(afterOrOn) {
			candidate = clampedMonthDay(afterOrOn.Year(), afterOrOn.Month()+1, *dayOfMonth)
		}
		return candidate, nil

	default:
		return time.Time{}, ErrNoExpansion
	}
}

// Advance moves one occurrence forward by the recurrence interval. For
// monthly rules dayOfMonth carries the pinned day so a clamped occurrence
// (Feb 28 for a rule on the 31st) recovers in longer months.
func Advance(occurrence time.Time, rtype domain.RecurrenceType, dayOfMonth *int) time.Time {
	occurrence = DateOnly(occurrence)
	switch rtype {
	case domain.RecurrenceWeekly:
		return occurrence.AddDate(0, 0, 7)
	case domain.RecurrenceBiweekly:
		return occurrence.AddDate(0, 0, 14)
	case domain.RecurrenceTriweekly:
		return occurrence.AddDate(0, 0, 21)
	case domain.RecurrenceMonthly:
		day := occurrence.Day()
		if dayOfMonth != nil {
			day = *dayOfMonth
		}
		return clampedMonthDay(occurrence.Year(), occurrence.Month()+1, day)
	default:
		return occurrence
	}
}

// PatternHits reports whether the rule's pattern, by itself, produces an
// occurrence on the given date. Exceptions are not consulted here.
func PatternHits(rule Rule, date time.Time) bool {
	date = DateOnly(date)
	switch rule.Type {
	case domain.RecurrenceWeekly:
		return rule.DayOfWeek != nil && int(date.Weekday()) == *rule.DayOfWeek
	case domain.RecurrenceBiweekly:
		return rule.DayOfWeek != nil && int(date.Weekday()) == *rule.DayOfWeek &&
			mod(DaysBetween(rule.AnchorStart, date), 14) == 0
	case domain.RecurrenceTriweekly:
		return rule.DayOfWeek != nil && int(date.Weekday()) == *rule.DayOfWeek &&
			mod(DaysBetween(rule.AnchorStart, date), 21) == 0
	case domain.RecurrenceMonthly:
		if rule.DayOfMonth == nil {
			return false
		}
		return clampedMonthDay(date.Year(), date.Month(), *rule.DayOfMonth).Equal(date)
	default:
		return false
	}
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}
