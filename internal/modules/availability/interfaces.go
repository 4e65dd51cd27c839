package availability

import (
	"context"
	"encoding/json"
	"time"

	"servio/internal/domain"
)

// SlotRepository persists the materialized slot grid.
type SlotRepository interface {
	InsertMissing(ctx context.Context, slots []domain.Slot) (int, error)
	ListRange(ctx context.Context, providerID, listingID int64, from, to time.Time) ([]domain.Slot, error)
	SetAvailability(ctx context.Context, providerID, listingID int64, start time.Time, available bool) error
	Delete(ctx context.Context, providerID, listingID int64, start time.Time) error
}

// RuleRepository stores the per-day-of-week availability rows.
type RuleRepository interface {
	ListForProvider(ctx context.Context, providerID int64) ([]domain.AvailabilityRule, error)
	Save(ctx context.Context, rule *domain.AvailabilityRule) error
	Deactivate(ctx context.Context, providerID, ruleID int64) error
}

// ListingRepository supplies the JSON weekly template fallback.
type ListingRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Listing, error)
	GetWeeklyTemplate(ctx context.Context, listingID int64) (json.RawMessage, error)
	SaveWeeklyTemplate(ctx context.Context, listingID int64, tpl json.RawMessage) error
}

// AppointmentSource feeds the conflict resolver with the provider's
// existing bookings and recurring series.
type AppointmentSource interface {
	GetBusyForProvider(ctx context.Context, providerID int64, from, to time.Time) ([]domain.Appointment, error)
	GetActiveBaseRules(ctx context.Context, actorID int64, role domain.UserRole, to time.Time) ([]domain.Appointment, error)
}

// ExceptionSource returns the exceptions that can free occupied occurrences.
type ExceptionSource interface {
	ListByRuleIDs(ctx context.Context, ruleIDs []int64) (map[int64][]domain.RecurrenceException, error)
}

// EventNotifier pushes slot changes to connected calendar sessions.
type EventNotifier interface {
	SlotToggled(providerID, listingID int64, slot domain.Slot)
}
