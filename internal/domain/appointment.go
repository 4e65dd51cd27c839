package domain

import "time"

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentRejected  AppointmentStatus = "rejected"
)

type RecurrenceType string

const (
	RecurrenceNone      RecurrenceType = "none"
	RecurrenceOnce      RecurrenceType = "once"
	RecurrenceWeekly    RecurrenceType = "weekly"
	RecurrenceBiweekly  RecurrenceType = "biweekly"
	RecurrenceTriweekly RecurrenceType = "triweekly"
	RecurrenceMonthly   RecurrenceType = "monthly"
)

// Repeats reports whether the type produces more than one occurrence.
func (t RecurrenceType) Repeats() bool {
	switch t {
	case RecurrenceWeekly, RecurrenceBiweekly, RecurrenceTriweekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Appointment is a persisted appointment row. A recurring booking agreement
// is stored as a base row (IsRecurringInstance=false, RecurrenceType repeating);
// the recurrence fields on that row are the rule and StartTime's date is the
// anchor the pattern began on. Materialized occurrences of a series carry
// IsRecurringInstance=true and point back to the base row via RuleID.
type Appointment struct {
	ID         int64 `json:"id"`
	ProviderID int64 `json:"provider_id" validate:"required"`
	ClientID   int64 `json:"client_id" validate:"required"`
	ListingID  int64 `json:"listing_id" validate:"required"`

	StartTime time.Time         `json:"start_time" validate:"required"`
	EndTime   time.Time         `json:"end_time" validate:"required"`
	Status    AppointmentStatus `json:"status"`

	RecurrenceType      RecurrenceType `json:"recurrence_type"`
	DayOfWeek           *int           `json:"day_of_week,omitempty"`
	DayOfMonth          *int           `json:"day_of_month,omitempty"`
	AnchorStartDate     time.Time      `json:"anchor_start_date"`
	IsRecurringInstance bool           `json:"is_recurring_instance"`
	SeriesActive        bool           `json:"series_active"`
	RuleID              *int64         `json:"rule_id,omitempty"`

	// Denormalized for display so a calendar row needs no extra lookups.
	ClientName  string `json:"client_name,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	Address     string `json:"address,omitempty"`

	Notes       string     `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// IsBaseRule reports whether the row is the base of a recurring series.
func (a Appointment) IsBaseRule() bool {
	return !a.IsRecurringInstance && a.RecurrenceType.Repeats()
}
