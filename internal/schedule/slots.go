package schedule

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"servio/internal/domain"
)

// TickDuration is the platform-wide slot length. Services longer than one
// tick still book at slot granularity.
const TickDuration = 30 * time.Minute

// Window is one bookable time range inside a single day, in "15:04" form.
// Both template paths (availability rows and the JSON weekly map) normalize
// to this so they produce identical slot boundaries.
type Window struct {
	Start string
	End   string
}

// WindowsFromRows extracts the active windows for a day-of-week from explicit
// availability rows, ordered by start time.
func WindowsFromRows(rows []domain.AvailabilityRule, dayOfWeek int) []Window {
	var out []Window
	for _, r := range rows {
		if !r.IsActive || r.DayOfWeek != dayOfWeek {
			continue
		}
		out = append(out, Window{Start: r.StartTime, End: r.EndTime})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// WindowsFromTemplate extracts the windows for a weekday from the JSON weekly
// template, ordered by start time. Disabled days yield nothing.
func WindowsFromTemplate(raw json.RawMessage, weekday time.Weekday) ([]Window, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var tpl domain.WeeklyTemplate
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return nil, err
	}
	day, ok := tpl[WeekdayKey(weekday)]
	if !ok || !day.Enabled {
		return nil, nil
	}
	out := make([]Window, 0, len(day.Windows))
	for _, w := range day.Windows {
		out = append(out, Window{Start: w.Start, End: w.End})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// WeekdayKey maps a weekday to its template key.
func WeekdayKey(w time.Weekday) string {
	switch w {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	default:
		return "sunday"
	}
}

// ValidateWindows rejects overlapping windows within one day. Overlap is
// rejected at the template-edit boundary; the generator itself only dedupes
// identical slot starts.
func ValidateWindows(windows []Window) bool {
	parsed := make([][2]time.Time, 0, len(windows))
	for _, w := range windows {
		s, err1 := time.Parse("15:04", w.Start)
		e, err2 := time.Parse("15:04", w.End)
		if err1 != nil || err2 != nil || !e.After(s) {
			return false
		}
		parsed = append(parsed, [2]time.Time{s, e})
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i][0].Before(parsed[j][0]) })
	for i := 1; i < len(parsed); i++ {
		if parsed[i][0].Before(parsed[i-1][1]) {
			return false
		}
	}
	return true
}

// Generator walks availability windows on the fixed tick grid.
type Generator struct {
	log  *zap.Logger
	tick time.Duration
}

func NewGenerator(log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{log: log, tick: TickDuration}
}

// GenerateDay emits the slots the windows imply for one date. A slot is only
// emitted when it fits entirely inside a window ("full fit"): a window ending
// 09:50 yields 09:00-09:30 and nothing more. Slots from overlapping windows
// collapse onto their start time so duplicates never reach storage.
func (g *Generator) GenerateDay(providerID, listingID int64, date time.Time, windows []Window) []domain.Slot {
	date = DateOnly(date)
	seen := make(map[int64]struct{})
	var out []domain.Slot

	for _, w := range windows {
		startClock, err1 := time.Parse("15:04", w.Start)
		endClock, err2 := time.Parse("15:04", w.End)
		if err1 != nil || err2 != nil {
			g.log.Warn("availability window has unparseable times, skipping",
				zap.String("start", w.Start), zap.String("end", w.End))
			continue
		}
		windowStart := composeClock(date, startClock)
		windowEnd := composeClock(date, endClock)

		for tick := windowStart; !tick.Add(g.tick).After(windowEnd); tick = tick.Add(g.tick) {
			if _, dup := seen[tick.Unix()]; dup {
				continue
			}
			seen[tick.Unix()] = struct{}{}
			out = append(out, domain.Slot{
				ProviderID:  providerID,
				ListingID:   listingID,
				Date:        date,
				StartTime:   tick,
				EndTime:     tick.Add(g.tick),
				IsAvailable: true,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// GenerateRange emits the slots for every date in [from, to], resolving the
// windows per weekday through windowsFor.
func (g *Generator) GenerateRange(providerID, listingID int64, from, to time.Time, windowsFor func(time.Weekday) []Window) []domain.Slot {
	var out []domain.Slot
	for d := DateOnly(from); !d.After(DateOnly(to)); d = d.AddDate(0, 0, 1) {
		out = append(out, g.GenerateDay(providerID, listingID, d, windowsFor(d.Weekday()))...)
	}
	return out
}

// SlotKey identifies a slot by its business key, the same key the storage
// layer's uniqueness constraint uses.
func SlotKey(providerID, listingID int64, start time.Time) string {
	return ConflictKey(providerID, start, start) + "|" + strconv.FormatInt(listingID, 10)
}

// MissingSlots returns the implied slots that are absent from existing.
// Reconciliation is strictly additive: persisted slots outside the current
// template are left alone, deletion is a separate explicit operation.
func MissingSlots(implied, existing []domain.Slot) []domain.Slot {
	have := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		have[SlotKey(s.ProviderID, s.ListingID, s.StartTime)] = struct{}{}
	}
	var out []domain.Slot
	for _, s := range implied {
		if _, ok := have[SlotKey(s.ProviderID, s.ListingID, s.StartTime)]; ok {
			continue
		}
		out = append(out, s)
	}
	return out
}
