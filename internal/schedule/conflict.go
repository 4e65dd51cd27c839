package schedule

import (
	"sort"
	"time"

	"servio/internal/domain"
)

// Conflict reasons surfaced on unavailable slots. A conflict is an expected
// business outcome, never an error.
const (
	ReasonOccupied          = "occupied"
	ReasonRecurringConflict = "recurring_conflict"
)

// Availability is the per-slot verdict of the resolver.
type Availability struct {
	Available bool
	Reason    string
}

// RequestContext describes the recurrence of the booking the caller is trying
// to place. Pattern collisions are only evaluated when the request itself
// recurs; a one-off booking only cares about direct occupancy.
type RequestContext struct {
	Type        domain.RecurrenceType
	AnchorStart time.Time // the slot's date doubles as the anchor of the new series
}

// Resolve decides whether one slot is bookable given the persisted
// appointments, the active recurrence rules and their exceptions.
func Resolve(slot domain.Slot, appointments []domain.Appointment, rules []Rule, exceptions map[int64][]domain.RecurrenceException, req RequestContext) Availability {
	if !slot.IsAvailable {
		return Availability{Available: false, Reason: slot.ConflictReason}
	}

	for _, a := range appointments {
		if a.ProviderID != slot.ProviderID {
			continue
		}
		if a.Status != domain.AppointmentPending && a.Status != domain.AppointmentConfirmed {
			continue
		}
		if overlaps(slot.StartTime, slot.EndTime, a.StartTime, a.EndTime) {
			return Availability{Available: false, Reason: ReasonOccupied}
		}
	}

	if req.Type.Repeats() {
		for _, rule := range rules {
			if !rule.Active || rule.ProviderID != slot.ProviderID {
				continue
			}
			if rulesCollide(rule, slot, req, exceptions[rule.ID]) {
				return Availability{Available: false, Reason: ReasonRecurringConflict}
			}
		}
	}

	return Availability{Available: true}
}

// rulesCollide reports whether an existing rule's pattern claims the slot's
// time for the recurring booking being requested. Two week-based cycles only
// collide when their phases ever line up: weekly hits every week, biweekly
// against biweekly needs the 14-day parity to match, and mixed cycles of 14
// and 21 days always meet on the shared weekday.
func rulesCollide(rule Rule, slot domain.Slot, req RequestContext, excs []domain.RecurrenceException) bool {
	startClock, err1 := time.Parse("15:04", rule.StartTime)
	endClock, err2 := time.Parse("15:04", rule.EndTime)
	if err1 != nil || err2 != nil {
		return false
	}
	ruleStart := composeClock(slot.Date, startClock)
	ruleEnd := composeClock(slot.Date, endClock)
	if !overlaps(slot.StartTime, slot.EndTime, ruleStart, ruleEnd) {
		return false
	}

	date := DateOnly(slot.Date)
	collides := false
	switch rule.Type {
	case domain.RecurrenceWeekly:
		collides = rule.DayOfWeek != nil && int(date.Weekday()) == *rule.DayOfWeek
	case domain.RecurrenceBiweekly:
		if rule.DayOfWeek == nil || int(date.Weekday()) != *rule.DayOfWeek {
			break
		}
		if req.Type == domain.RecurrenceBiweekly {
			collides = mod(DaysBetween(rule.AnchorStart, date), 14) == 0
		} else {
			collides = true
		}
	case domain.RecurrenceTriweekly:
		if rule.DayOfWeek == nil || int(date.Weekday()) != *rule.DayOfWeek {
			break
		}
		if req.Type == domain.RecurrenceTriweekly {
			collides = mod(DaysBetween(rule.AnchorStart, date), 21) == 0
		} else {
			collides = true
		}
	case domain.RecurrenceMonthly:
		collides = PatternHits(rule, date)
	}
	if !collides {
		return false
	}

	// A cancelled or rescheduled occurrence frees its original slot time.
	for _, exc := range excs {
		if exc.Valid() && dateKey(exc.OccurrenceDate) == dateKey(date) {
			return false
		}
	}
	return true
}

// VirtualStatus computes the displayed status of a virtual instance. Only the
// instance's own end time makes it completed; a completed base rule never
// marks future occurrences completed.
func VirtualStatus(base domain.AppointmentStatus, end, now time.Time) domain.AppointmentStatus {
	if end.Before(now) {
		return domain.AppointmentCompleted
	}
	if base == domain.AppointmentPending {
		return domain.AppointmentPending
	}
	return domain.AppointmentConfirmed
}

// Deduplicate merges real instances with virtual ones. When both map to the
// same dedup key the real row wins and the virtual instance is silently
// dropped; that situation is normal, not an error. The result is ascending by
// start time, stable for equal starts.
func Deduplicate(real, virtual []Instance) []Instance {
	out := make([]Instance, 0, len(real)+len(virtual))
	taken := make(map[string]struct{}, len(real))
	for _, inst := range real {
		taken[inst.DedupKey()] = struct{}{}
		out = append(out, inst)
	}
	for _, inst := range virtual {
		if _, dup := taken[inst.DedupKey()]; dup {
			continue
		}
		out = append(out, inst)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
