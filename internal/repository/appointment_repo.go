package repository

import (
	"context"
	"fmt"
	"time"

	"servio/internal/domain"

	"gorm.io/gorm"
)

type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

type appointmentModel struct {
	ID         int64 `gorm:"column:id;primaryKey"`
	ProviderID int64 `gorm:"column:provider_id;uniqueIndex:idx_no_double_booking,priority:1"`
	ClientID   int64 `gorm:"column:client_id"`
	ListingID  int64 `gorm:"column:listing_id"`

	StartTime time.Time `gorm:"column:start_time;uniqueIndex:idx_no_double_booking,priority:2"`
	EndTime   time.Time `gorm:"column:end_time"`
	Status    string    `gorm:"column:status"`

	RecurrenceType      string    `gorm:"column:recurrence_type"`
	DayOfWeek           *int      `gorm:"column:day_of_week"`
	DayOfMonth          *int      `gorm:"column:day_of_month"`
	AnchorStartDate     time.Time `gorm:"column:anchor_start_date"`
	IsRecurringInstance bool      `gorm:"column:is_recurring_instance"`
	SeriesActive        bool      `gorm:"column:series_active"`
	RuleID              *int64    `gorm:"column:rule_id"`

	ClientName  *string `gorm:"column:client_name"`
	ServiceName *string `gorm:"column:service_name"`
	Address     *string `gorm:"column:address"`

	Notes       *string    `gorm:"column:notes"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
}

func (appointmentModel) TableName() string { return "appointments" }

func toDomainAppointment(m appointmentModel) domain.Appointment {
	a := domain.Appointment{
		ID:                  m.ID,
		ProviderID:          m.ProviderID,
		ClientID:            m.ClientID,
		ListingID:           m.ListingID,
		StartTime:           m.StartTime,
		EndTime:             m.EndTime,
		Status:              domain.AppointmentStatus(m.Status),
		RecurrenceType:      domain.RecurrenceType(m.RecurrenceType),
		DayOfWeek:           m.DayOfWeek,
		DayOfMonth:          m.DayOfMonth,
		AnchorStartDate:     m.AnchorStartDate,
		IsRecurringInstance: m.IsRecurringInstance,
		SeriesActive:        m.SeriesActive,
		RuleID:              m.RuleID,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
		CancelledAt:         m.CancelledAt,
	}
	if m.ClientName != nil {
		a.ClientName = *m.ClientName
	}
	if m.ServiceName != nil {
		a.ServiceName = *m.ServiceName
	}
	if m.Address != nil {
		a.Address = *m.Address
	}
	if m.Notes != nil {
		a.Notes = *m.Notes
	}
	return a
}

func toAppointmentModel(a *domain.Appointment) appointmentModel {
	strPtr := func(s string) *string {
		if s == "" {
			return nil
		}
		v := s
		return &v
	}
	return appointmentModel{
		ID:                  a.ID,
		ProviderID:          a.ProviderID,
		ClientID:            a.ClientID,
		ListingID:           a.ListingID,
		StartTime:           a.StartTime,
		EndTime:             a.EndTime,
		Status:              string(a.Status),
		RecurrenceType:      string(a.RecurrenceType),
		DayOfWeek:           a.DayOfWeek,
		DayOfMonth:          a.DayOfMonth,
		AnchorStartDate:     a.AnchorStartDate,
		IsRecurringInstance: a.IsRecurringInstance,
		SeriesActive:        a.SeriesActive,
		RuleID:              a.RuleID,
		ClientName:          strPtr(a.ClientName),
		ServiceName:         strPtr(a.ServiceName),
		Address:             strPtr(a.Address),
		Notes:               strPtr(a.Notes),
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
		CancelledAt:         a.CancelledAt,
	}
}

func (r *AppointmentRepository) Create(ctx context.Context, a *domain.Appointment) error {
	m := toAppointmentModel(a)
	m.ID = 0
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	a.ID = m.ID
	a.CreatedAt = m.CreatedAt
	a.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id int64) (*domain.Appointment, error) {
	var m appointmentModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	a := toDomainAppointment(m)
	return &a, nil
}

// GetForActorInRange returns the actor's appointments whose span intersects
// [from, to).
func (r *AppointmentRepository) GetForActorInRange(ctx context.Context, actorID int64, role domain.UserRole, from, to time.Time) ([]domain.Appointment, error) {
	q := r.db.WithContext(ctx).
		Where("start_time < ? AND end_time > ?", to, from).
		Order("start_time ASC")
	q = scopeActor(q, actorID, role)

	var rows []appointmentModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch appointments in range: %w", err)
	}
	return toDomainAppointments(rows), nil
}

// GetActiveBaseRules returns recurring base rows for the actor bounded only
// by start_time <= to: a series that began before the window still produces
// occurrences inside it.
func (r *AppointmentRepository) GetActiveBaseRules(ctx context.Context, actorID int64, role domain.UserRole, to time.Time) ([]domain.Appointment, error) {
	q := r.db.WithContext(ctx).
		Where("is_recurring_instance = ?", false).
		Where("recurrence_type IN ?", []string{
			string(domain.RecurrenceWeekly),
			string(domain.RecurrenceBiweekly),
			string(domain.RecurrenceTriweekly),
			string(domain.RecurrenceMonthly),
		}).
		Where("series_active = ?", true).
		Where("start_time <= ?", to).
		Order("start_time ASC")
	q = scopeActor(q, actorID, role)

	var rows []appointmentModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch recurring base rules: %w", err)
	}
	return toDomainAppointments(rows), nil
}

// GetBusyForProvider returns pending/confirmed appointments overlapping
// [from, to) for conflict resolution.
func (r *AppointmentRepository) GetBusyForProvider(ctx context.Context, providerID int64, from, to time.Time) ([]domain.Appointment, error) {
	var rows []appointmentModel
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Where("status IN ?", []string{string(domain.AppointmentPending), string(domain.AppointmentConfirmed)}).
		Where("start_time < ? AND end_time > ?", to, from).
		Order("start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch busy appointments: %w", err)
	}
	return toDomainAppointments(rows), nil
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id int64, status domain.AppointmentStatus) error {
	updates := map[string]any{"status": string(status), "updated_at": time.Now()}
	if status == domain.AppointmentCancelled {
		now := time.Now()
		updates["cancelled_at"] = &now
	}
	return r.db.WithContext(ctx).Model(&appointmentModel{}).Where("id = ?", id).Updates(updates).Error
}

// DeactivateSeries turns off expansion for a base rule without touching rows
// already materialized from it.
func (r *AppointmentRepository) DeactivateSeries(ctx context.Context, ruleID int64) error {
	return r.db.WithContext(ctx).Model(&appointmentModel{}).
		Where("id = ?", ruleID).
		Updates(map[string]any{"series_active": false, "updated_at": time.Now()}).Error
}

func scopeActor(q *gorm.DB, actorID int64, role domain.UserRole) *gorm.DB {
	if role == domain.RoleProvider {
		return q.Where("provider_id = ?", actorID)
	}
	return q.Where("client_id = ?", actorID)
}

func toDomainAppointments(rows []appointmentModel) []domain.Appointment {
	out := make([]domain.Appointment, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainAppointment(m))
	}
	return out
}
