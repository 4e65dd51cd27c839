package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"servio/internal/domain"
	"servio/internal/pkg/validator"
	"servio/internal/schedule"
)

// Service materializes the slot grid from templates, resolves per-slot
// availability against bookings and recurring series, and runs the
// optimistic toggle overlay.
type Service struct {
	slots      SlotRepository
	rules      RuleRepository
	listings   ListingRepository
	appts      AppointmentSource
	exceptions ExceptionSource
	notifier   EventNotifier
	generator  *schedule.Generator
	overlay    *schedule.PendingOverlay
	clock      schedule.Clock
	log        *zap.Logger
}

func NewService(
	slots SlotRepository,
	rules RuleRepository,
	listings ListingRepository,
	appts AppointmentSource,
	exceptions ExceptionSource,
	notifier EventNotifier,
	overlay *schedule.PendingOverlay,
	clock schedule.Clock,
	log *zap.Logger,
) *Service {
	if clock == nil {
		clock = schedule.SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if overlay == nil {
		overlay = schedule.NewPendingOverlay(schedule.DefaultOverlayTTL, clock)
	}
	return &Service{
		slots:      slots,
		rules:      rules,
		listings:   listings,
		appts:      appts,
		exceptions: exceptions,
		notifier:   notifier,
		generator:  schedule.NewGenerator(log),
		overlay:    overlay,
		clock:      clock,
		log:        log,
	}
}

// EnsureSlots reconciles the persisted grid with the template for a range.
// Reconciliation is additive: rows the template no longer implies are kept,
// toggled state on existing rows is never touched. Returns how many rows
// were inserted.
func (s *Service) EnsureSlots(ctx context.Context, providerID, listingID int64, from, to time.Time) (int, error) {
	windowsFor, err := s.windowsFor(ctx, providerID, listingID)
	if err != nil {
		return 0, err
	}

	implied := s.generator.GenerateRange(providerID, listingID, from, to, windowsFor)
	existing, err := s.slots.ListRange(ctx, providerID, listingID, from, to)
	if err != nil {
		return 0, fmt.Errorf("ensure slots: %w", err)
	}

	missing := schedule.MissingSlots(implied, existing)
	if len(missing) == 0 {
		return 0, nil
	}
	inserted, err := s.slots.InsertMissing(ctx, missing)
	if err != nil {
		return 0, fmt.Errorf("ensure slots: %w", err)
	}
	return inserted, nil
}

// DaySlots returns the resolved grid for one day. Each slot is checked
// against direct occupancy and, when the request itself recurs, against
// the provider's recurring series; the pending overlay is applied last.
func (s *Service) DaySlots(ctx context.Context, q DayQuery) ([]domain.Slot, error) {
	dayStart := schedule.DateOnly(q.Date)
	dayEnd := dayStart.AddDate(0, 0, 1)

	if _, err := s.EnsureSlots(ctx, q.ProviderID, q.ListingID, dayStart, dayEnd); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListRange(ctx, q.ProviderID, q.ListingID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("day slots: %w", err)
	}

	busy, err := s.appts.GetBusyForProvider(ctx, q.ProviderID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("day slots: %w", err)
	}
	baseRows, err := s.appts.GetActiveBaseRules(ctx, q.ProviderID, domain.RoleProvider, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("day slots: %w", err)
	}

	rules := make([]schedule.Rule, 0, len(baseRows))
	ruleIDs := make([]int64, 0, len(baseRows))
	for _, a := range baseRows {
		rules = append(rules, schedule.RuleFromAppointment(a))
		ruleIDs = append(ruleIDs, a.ID)
	}
	exceptions, err := s.exceptions.ListByRuleIDs(ctx, ruleIDs)
	if err != nil {
		return nil, fmt.Errorf("day slots: %w", err)
	}

	req := schedule.RequestContext{
		Type:        q.Recurrence,
		AnchorStart: schedule.DateOnly(q.AnchorStart),
	}
	if req.Type == "" {
		req.Type = domain.RecurrenceNone
	}

	out := make([]domain.Slot, 0, len(slots))
	for _, slot := range slots {
		av := schedule.Resolve(slot, busy, rules, exceptions, req)
		slot.IsAvailable = av.Available
		slot.ConflictReason = av.Reason

		key := schedule.SlotKey(slot.ProviderID, slot.ListingID, slot.StartTime)
		if entry, ok := s.overlay.Get(key); ok {
			slot.IsAvailable = slot.IsAvailable && entry.Available
			if !entry.Available {
				slot.ConflictReason = ""
			}
		}
		out = append(out, slot)
	}
	return out, nil
}

// ToggleSlot flips a slot's availability through the optimistic overlay:
// the overlay answers reads immediately while the write is in flight, and
// is rolled back if the write fails.
func (s *Service) ToggleSlot(ctx context.Context, providerID int64, req ToggleSlotRequest) error {
	if req.Available == nil {
		return ErrValidation
	}
	start := req.StartTime.UTC()
	key := schedule.SlotKey(providerID, req.ListingID, start)

	s.overlay.MarkPending(key, *req.Available)
	if err := s.slots.SetAvailability(ctx, providerID, req.ListingID, start, *req.Available); err != nil {
		s.overlay.Rollback(key)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSlotNotFound
		}
		return fmt.Errorf("toggle slot: %w", err)
	}
	s.overlay.Confirm(key)

	if s.notifier != nil {
		s.notifier.SlotToggled(providerID, req.ListingID, domain.Slot{
			ProviderID:  providerID,
			ListingID:   req.ListingID,
			Date:        schedule.DateOnly(start),
			StartTime:   start,
			EndTime:     start.Add(schedule.TickDuration),
			IsAvailable: *req.Available,
		})
	}
	return nil
}

// DeleteSlot removes one slot row. Reconciliation is additive only, so a
// removed slot stays gone until the provider deletes the rule window or the
// slot is re-ensured; deletion is never implicit.
func (s *Service) DeleteSlot(ctx context.Context, providerID, listingID int64, start time.Time) error {
	start = start.UTC()
	if err := s.slots.Delete(ctx, providerID, listingID, start); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSlotNotFound
		}
		return fmt.Errorf("delete slot: %w", err)
	}
	s.log.Info("slot deleted",
		zap.Int64("provider_id", providerID),
		zap.Int64("listing_id", listingID),
		zap.Time("start", start))
	return nil
}

// ListRules returns the provider's explicit per-day availability rows.
func (s *Service) ListRules(ctx context.Context, providerID int64) ([]domain.AvailabilityRule, error) {
	rows, err := s.rules.ListForProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}
	return rows, nil
}

// SaveRule adds or updates one explicit availability window.
func (s *Service) SaveRule(ctx context.Context, providerID int64, req SaveRuleRequest) (*domain.AvailabilityRule, error) {
	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		return nil, ErrValidation
	}
	if !schedule.ValidateWindows([]schedule.Window{{Start: req.StartTime, End: req.EndTime}}) {
		return nil, ErrValidation
	}
	rule := &domain.AvailabilityRule{
		ProviderID: providerID,
		DayOfWeek:  req.DayOfWeek,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		IsActive:   true,
	}
	if fields := validator.Validate(rule); fields != nil {
		return nil, ErrValidation
	}
	if err := s.rules.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("save availability rule: %w", err)
	}
	return rule, nil
}

// DeactivateRule retires one explicit window. Slots it produced stay.
func (s *Service) DeactivateRule(ctx context.Context, providerID, ruleID int64) error {
	if err := s.rules.Deactivate(ctx, providerID, ruleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deactivate availability rule: %w", err)
	}
	return nil
}

// GetTemplate returns the listing's JSON weekly template in decoded form.
func (s *Service) GetTemplate(ctx context.Context, listingID int64) (domain.WeeklyTemplate, error) {
	raw, err := s.listings.GetWeeklyTemplate(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get weekly template: %w", err)
	}
	var tpl domain.WeeklyTemplate
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return nil, fmt.Errorf("get weekly template: %w", err)
	}
	return tpl, nil
}

// UpdateTemplate replaces the listing's weekly template. Overlapping or
// inverted windows reject the whole update.
func (s *Service) UpdateTemplate(ctx context.Context, providerID, listingID int64, tpl domain.WeeklyTemplate) error {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return ErrNotFound
	}
	if listing.ProviderID != providerID {
		return ErrForbidden
	}

	for day, entry := range tpl {
		if !entry.Enabled {
			continue
		}
		windows := make([]schedule.Window, 0, len(entry.Windows))
		for _, w := range entry.Windows {
			windows = append(windows, schedule.Window{Start: w.Start, End: w.End})
		}
		if !schedule.ValidateWindows(windows) {
			s.log.Warn("weekly template rejected", zap.String("day", day), zap.Int64("listing_id", listingID))
			return ErrInvalidTemplate
		}
	}

	raw, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("update weekly template: %w", err)
	}
	if err := s.listings.SaveWeeklyTemplate(ctx, listingID, raw); err != nil {
		return fmt.Errorf("update weekly template: %w", err)
	}
	return nil
}

// windowsFor picks the template source: explicit rows when the provider has
// any active ones, the listing's JSON weekly map otherwise. Both sources
// yield identical slot boundaries for identical windows.
func (s *Service) windowsFor(ctx context.Context, providerID, listingID int64) (func(time.Weekday) []schedule.Window, error) {
	rows, err := s.rules.ListForProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load availability rows: %w", err)
	}
	active := rows[:0]
	for _, r := range rows {
		if r.IsActive {
			active = append(active, r)
		}
	}
	if len(active) > 0 {
		return func(w time.Weekday) []schedule.Window {
			return schedule.WindowsFromRows(active, int(w))
		}, nil
	}

	raw, err := s.listings.GetWeeklyTemplate(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load weekly template: %w", err)
	}
	return func(w time.Weekday) []schedule.Window {
		windows, err := schedule.WindowsFromTemplate(raw, w)
		if err != nil {
			s.log.Warn("weekly template unreadable, day skipped",
				zap.Int64("listing_id", listingID), zap.String("day", schedule.WeekdayKey(w)), zap.Error(err))
			return nil
		}
		return windows
	}, nil
}
