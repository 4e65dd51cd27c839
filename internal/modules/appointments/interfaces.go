package appointments

import (
	"context"
	"time"

	"servio/internal/domain"
)

// AppointmentRepository is the persistence surface the service needs.
type AppointmentRepository interface {
	Create(ctx context.Context, a *domain.Appointment) error
	GetByID(ctx context.Context, id int64) (*domain.Appointment, error)
	GetForActorInRange(ctx context.Context, actorID int64, role domain.UserRole, from, to time.Time) ([]domain.Appointment, error)
	GetActiveBaseRules(ctx context.Context, actorID int64, role domain.UserRole, to time.Time) ([]domain.Appointment, error)
	GetBusyForProvider(ctx context.Context, providerID int64, from, to time.Time) ([]domain.Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status domain.AppointmentStatus) error
	DeactivateSeries(ctx context.Context, ruleID int64) error
}

// ExceptionRepository reads and writes per-occurrence exceptions.
type ExceptionRepository interface {
	Upsert(ctx context.Context, e *domain.RecurrenceException) error
	ListByRuleIDs(ctx context.Context, ruleIDs []int64) (map[int64][]domain.RecurrenceException, error)
	Delete(ctx context.Context, ruleID int64, occurrenceDate time.Time) error
}

// ListingRepository supplies the listing for denormalized display fields.
type ListingRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Listing, error)
}

// UserRepository supplies the client for denormalized display fields.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// EventNotifier pushes schedule changes to connected calendar sessions.
// Implementations must never fail the business operation.
type EventNotifier interface {
	AppointmentCreated(a *domain.Appointment)
	AppointmentStatusChanged(a *domain.Appointment)
	OccurrenceChanged(ruleID int64, providerID, clientID int64, e *domain.RecurrenceException)
}
