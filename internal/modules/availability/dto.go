package availability

import (
	"time"

	"servio/internal/domain"
)

type EnsureSlotsRequest struct {
	ListingID int64     `json:"listing_id" binding:"required"`
	From      time.Time `json:"from" binding:"required"`
	To        time.Time `json:"to" binding:"required"`
}

type ToggleSlotRequest struct {
	ListingID int64     `json:"listing_id" binding:"required"`
	StartTime time.Time `json:"start_time" binding:"required"`
	Available *bool     `json:"available" binding:"required"`
}

type SaveRuleRequest struct {
	DayOfWeek int    `json:"day_of_week" binding:"min=0,max=6"`
	StartTime string `json:"start_time" binding:"required"` // "15:04"
	EndTime   string `json:"end_time" binding:"required"`
}

type UpdateTemplateRequest struct {
	Template domain.WeeklyTemplate `json:"template" binding:"required"`
}

// DayQuery carries the optional recurring-booking context: pattern
// collisions apply only when the request being placed repeats itself.
type DayQuery struct {
	ProviderID  int64
	ListingID   int64
	Date        time.Time
	Recurrence  domain.RecurrenceType
	AnchorStart time.Time
}
