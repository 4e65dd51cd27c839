package domain

import "time"

// AvailabilityRule is one explicit per-day-of-week availability window for a
// provider. This is the row form of the slot template; the JSON weekly map on
// a listing (WeeklyTemplate) is the other accepted form.
type AvailabilityRule struct {
	ID         int64     `json:"id"`
	ProviderID int64     `json:"provider_id" validate:"required"`
	DayOfWeek  int       `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime  string    `json:"start_time" validate:"required"` // "15:04"
	EndTime    string    `json:"end_time" validate:"required"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TemplateWindow is one bookable window inside a template day.
type TemplateWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// TemplateDay is one day's entry of the JSON weekly template.
type TemplateDay struct {
	Enabled bool             `json:"enabled"`
	Windows []TemplateWindow `json:"windows"`
}

// WeeklyTemplate is keyed by lowercase day name ("monday" .. "sunday").
type WeeklyTemplate map[string]TemplateDay

// DefaultWeeklyTemplate is the schedule new listings start with:
// 09:00-18:00 on weekdays, weekends off.
func DefaultWeeklyTemplate() WeeklyTemplate {
	tpl := WeeklyTemplate{}
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		tpl[day] = TemplateDay{
			Enabled: true,
			Windows: []TemplateWindow{{Start: "09:00", End: "18:00"}},
		}
	}
	tpl["saturday"] = TemplateDay{}
	tpl["sunday"] = TemplateDay{}
	return tpl
}

// Slot is one discrete bookable unit on the availability grid. Duration is
// the platform tick (30 minutes) regardless of the listing's service length.
type Slot struct {
	ID             int64     `json:"id"`
	ProviderID     int64     `json:"provider_id"`
	ListingID      int64     `json:"listing_id"` // 0 in preview mode
	Date           time.Time `json:"date"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	IsAvailable    bool      `json:"is_available"`
	ConflictReason string    `json:"conflict_reason,omitempty" gorm:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
