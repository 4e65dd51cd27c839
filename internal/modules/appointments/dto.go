package appointments

import "time"

type CreateAppointmentRequest struct {
	ProviderID     int64     `json:"provider_id" binding:"required"`
	ClientID       int64     `json:"client_id" binding:"required"`
	ListingID      int64     `json:"listing_id" binding:"required"`
	StartTime      time.Time `json:"start_time" binding:"required"`
	EndTime        time.Time `json:"end_time" binding:"required"`
	RecurrenceType string    `json:"recurrence_type"`
	DayOfWeek      *int      `json:"day_of_week,omitempty"`
	DayOfMonth     *int      `json:"day_of_month,omitempty"`
	Notes          string    `json:"notes"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type CancelOccurrenceRequest struct {
	Date  string `json:"date" binding:"required"` // "2006-01-02"
	Notes string `json:"notes"`
}

type RescheduleOccurrenceRequest struct {
	Date         string    `json:"date" binding:"required"`
	NewStartTime time.Time `json:"new_start_time" binding:"required"`
	NewEndTime   time.Time `json:"new_end_time" binding:"required"`
	Notes        string    `json:"notes"`
}
