package schedule

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"servio/internal/domain"
)

// DefaultMaxInstances bounds expansion when the caller does not say otherwise.
// It is a performance guard, not a correctness requirement: consumers only
// ever render a visible horizon.
const DefaultMaxInstances = 30

// ExpandOptions tunes a single expansion call.
type ExpandOptions struct {
	// MaxInstances caps the number of emitted instances; <=0 means
	// DefaultMaxInstances.
	MaxInstances int
	// ExcludeKeys suppresses occurrences whose ConflictKey already belongs to
	// a real appointment row, so a separately confirmed duplicate does not
	// show up twice.
	ExcludeKeys map[string]struct{}
}

// Expander turns recurrence rules plus exceptions into virtual instances.
// It performs no I/O and is safe for concurrent use.
type Expander struct {
	log          *zap.Logger
	clock        Clock
	maxInstances int
}

func NewExpander(log *zap.Logger, clock Clock) *Expander {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Expander{log: log, clock: clock, maxInstances: DefaultMaxInstances}
}

// SetMaxInstances overrides the default per-rule cap for calls that do not
// set one in their options.
func (e *Expander) SetMaxInstances(n int) {
	if n > 0 {
		e.maxInstances = n
	}
}

// Expand produces the rule's instances inside [windowStart, windowEnd),
// ascending by start time. Malformed rules yield zero instances with a
// warning; upstream data cannot be trusted to be well-formed and a partial
// calendar beats a failed one.
func (e *Expander) Expand(rule Rule, exceptions []domain.RecurrenceException, windowStart, windowEnd time.Time, opts ExpandOptions) []Instance {
	if !rule.Active || !rule.Type.Repeats() {
		return nil
	}

	maxInstances := opts.MaxInstances
	if maxInstances <= 0 {
		maxInstances = e.maxInstances
	}
	if maxInstances <= 0 {
		maxInstances = DefaultMaxInstances
	}

	startClock, err1 := time.Parse("15:04", rule.StartTime)
	endClock, err2 := time.Parse("15:04", rule.EndTime)
	if err1 != nil || err2 != nil {
		e.log.Warn("recurrence rule has unparseable times, skipping",
			zap.Int64("rule_id", rule.ID),
			zap.String("start", rule.StartTime),
			zap.String("end", rule.EndTime))
		return nil
	}

	byDate := e.exceptionsByDate(rule.ID, exceptions)

	occ, err := NextOccurrence(windowStart, rule.Type, rule.AnchorStart, rule.DayOfWeek, rule.DayOfMonth)
	if err != nil {
		e.log.Warn("recurrence rule cannot be expanded, skipping",
			zap.Int64("rule_id", rule.ID),
			zap.String("type", string(rule.Type)),
			zap.Error(err))
		return nil
	}

	now := e.clock.Now()
	windowEnd = DateOnly(windowEnd)
	out := make([]Instance, 0, maxInstances)

	for len(out) < maxInstances && occ.Before(windowEnd) {
		start := composeClock(occ, startClock)
		end := composeClock(occ, endClock)
		if !end.After(start) {
			end = end.AddDate(0, 0, 1) // window crosses midnight
		}

		var applied *domain.RecurrenceException
		skip := false
		if exc, ok := byDate[dateKey(occ)]; ok {
			switch exc.ActionType {
			case domain.ExceptionCancelled:
				skip = true
			case domain.ExceptionRescheduled:
				start = *exc.NewStartTime
				end = *exc.NewEndTime
				applied = exc
			}
		}

		if !skip && opts.ExcludeKeys != nil {
			if _, dup := opts.ExcludeKeys[ConflictKey(rule.ProviderID, start, end)]; dup {
				skip = true
			}
		}

		if !skip {
			inst := Instance{
				ID:               VirtualID(rule.ID, start),
				RuleID:           rule.ID,
				ProviderID:       rule.ProviderID,
				ClientID:         rule.ClientID,
				ListingID:        rule.ListingID,
				StartTime:        start,
				EndTime:          end,
				Status:           VirtualStatus(rule.Status, end, now),
				SourceType:       SourceVirtual,
				Rescheduled:      applied != nil,
				AppliedException: applied,
				ClientName:       rule.ClientName,
				ServiceName:      rule.ServiceName,
				Address:          rule.Address,
				Notes:            rule.Notes,
			}
			out = append(out, inst)
		}

		next := Advance(occ, rule.Type, rule.DayOfMonth)
		if !next.After(occ) {
			break
		}
		occ = next
	}

	// Rescheduled occurrences may have moved off their pattern date.
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// ExpandAll expands every rule and merges the results into one ascending
// sequence. Exceptions are grouped by rule id.
func (e *Expander) ExpandAll(rules []Rule, exceptions map[int64][]domain.RecurrenceException, windowStart, windowEnd time.Time, opts ExpandOptions) []Instance {
	var out []Instance
	for _, rule := range rules {
		out = append(out, e.Expand(rule, exceptions[rule.ID], windowStart, windowEnd, opts)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// exceptionsByDate indexes valid exceptions by occurrence date. Invalid rows
// (a reschedule without both new times) are skipped with a warning so the
// rest of the series still renders.
func (e *Expander) exceptionsByDate(ruleID int64, exceptions []domain.RecurrenceException) map[string]*domain.RecurrenceException {
	byDate := make(map[string]*domain.RecurrenceException, len(exceptions))
	for i := range exceptions {
		exc := &exceptions[i]
		if exc.RuleID != ruleID {
			continue
		}
		if !exc.Valid() {
			e.log.Warn("recurrence exception is malformed, ignoring",
				zap.Int64("rule_id", ruleID),
				zap.Int64("exception_id", exc.ID),
				zap.String("action", string(exc.ActionType)))
			continue
		}
		byDate[dateKey(exc.OccurrenceDate)] = exc
	}
	return byDate
}

func composeClock(day time.Time, clock time.Time) time.Time {
	y, m, d := day.UTC().Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, time.UTC)
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
