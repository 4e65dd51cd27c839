package domain

import "time"

type ExceptionAction string

const (
	ExceptionCancelled   ExceptionAction = "cancelled"
	ExceptionRescheduled ExceptionAction = "rescheduled"
)

// RecurrenceException is a deviation from a recurring series on one computed
// occurrence date. At most one exception is authoritative per (rule, date);
// a later change replaces the row rather than mutating the base rule.
type RecurrenceException struct {
	ID             int64           `json:"id"`
	RuleID         int64           `json:"rule_id" validate:"required"`
	OccurrenceDate time.Time       `json:"occurrence_date" validate:"required"`
	ActionType     ExceptionAction `json:"action_type" validate:"required"`
	NewStartTime   *time.Time      `json:"new_start_time,omitempty"`
	NewEndTime     *time.Time      `json:"new_end_time,omitempty"`
	Notes          string          `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Valid reports whether the exception is internally consistent. A rescheduled
// exception must carry both new times; processing skips invalid rows.
func (e RecurrenceException) Valid() bool {
	if e.ActionType == ExceptionRescheduled {
		return e.NewStartTime != nil && e.NewEndTime != nil
	}
	return e.ActionType == ExceptionCancelled
}
