package schedule

import (
	"fmt"
	"time"

	"servio/internal/domain"
)

type SourceType string

const (
	// SourceAppointment marks a persisted appointment row.
	SourceAppointment SourceType = "appointment"
	// SourceVirtual marks an instance computed from a recurrence rule. It is
	// never persisted; callers must not try to mutate or delete it.
	SourceVirtual SourceType = "virtual_instance"
)

// Rule is the in-memory projection of a recurring base appointment row.
type Rule struct {
	ID         int64
	ProviderID int64
	ClientID   int64
	ListingID  int64

	Type        domain.RecurrenceType
	AnchorStart time.Time // date the pattern began
	StartTime   string    // "15:04"
	EndTime     string
	DayOfWeek   *int // 0=Sunday .. 6=Saturday, weekly family
	DayOfMonth  *int // 1..31, monthly

	Active bool
	Status domain.AppointmentStatus // status of the base row

	ClientName  string
	ServiceName string
	Address     string
	Notes       string
}

// Instance is one concrete occurrence, either a persisted appointment or a
// virtually expanded one.
type Instance struct {
	ID            string `json:"id"`
	AppointmentID int64  `json:"appointment_id,omitempty"` // 0 for virtual instances
	RuleID        int64  `json:"rule_id,omitempty"`
	ProviderID    int64  `json:"provider_id"`
	ClientID      int64  `json:"client_id"`
	ListingID     int64  `json:"listing_id"`

	StartTime time.Time                `json:"start_time"`
	EndTime   time.Time                `json:"end_time"`
	Status    domain.AppointmentStatus `json:"status"`

	SourceType       SourceType                  `json:"source_type"`
	Rescheduled      bool                        `json:"rescheduled,omitempty"`
	AppliedException *domain.RecurrenceException `json:"-"`

	ClientName  string `json:"client_name,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	Address     string `json:"address,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// VirtualID derives the synthetic id of a virtual instance.
func VirtualID(ruleID int64, start time.Time) string {
	return fmt.Sprintf("virtual-%d-%s", ruleID, start.UTC().Format(time.RFC3339))
}

// DedupKey identifies the logical occurrence an instance describes. When both
// a real row and a virtual instance produce the same key, the real one wins.
func (i Instance) DedupKey() string {
	return fmt.Sprintf("%d|%s|%d|%d", i.ProviderID, i.StartTime.UTC().Format(time.RFC3339), i.ClientID, i.ListingID)
}

// ConflictKey identifies an occupied time span where client linkage is not
// available (expander duplicate suppression).
func ConflictKey(providerID int64, start, end time.Time) string {
	return fmt.Sprintf("%d|%s|%s", providerID, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
}

// FromAppointment converts a persisted row into its instance form.
func FromAppointment(a domain.Appointment) Instance {
	ruleID := int64(0)
	if a.RuleID != nil {
		ruleID = *a.RuleID
	}
	return Instance{
		ID:            fmt.Sprintf("%d", a.ID),
		AppointmentID: a.ID,
		RuleID:        ruleID,
		ProviderID:    a.ProviderID,
		ClientID:      a.ClientID,
		ListingID:     a.ListingID,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Status:        a.Status,
		SourceType:    SourceAppointment,
		ClientName:    a.ClientName,
		ServiceName:   a.ServiceName,
		Address:       a.Address,
		Notes:         a.Notes,
	}
}

// RuleFromAppointment projects a recurring base row into its rule form.
func RuleFromAppointment(a domain.Appointment) Rule {
	anchor := a.AnchorStartDate
	if anchor.IsZero() {
		anchor = a.StartTime
	}
	return Rule{
		ID:          a.ID,
		ProviderID:  a.ProviderID,
		ClientID:    a.ClientID,
		ListingID:   a.ListingID,
		Type:        a.RecurrenceType,
		AnchorStart: anchor,
		StartTime:   a.StartTime.UTC().Format("15:04"),
		EndTime:     a.EndTime.UTC().Format("15:04"),
		DayOfWeek:   a.DayOfWeek,
		DayOfMonth:  a.DayOfMonth,
		Active:      a.SeriesActive,
		Status:      a.Status,
		ClientName:  a.ClientName,
		ServiceName: a.ServiceName,
		Address:     a.Address,
		Notes:       a.Notes,
	}
}
