package domain

import (
	"encoding/json"
	"time"
)

// Listing is a bookable service offered by a provider (cleaning, tutoring,
// grooming and so on). DurationMinutes is the nominal service length; slots
// are still generated on the fixed platform grid regardless of it.
type Listing struct {
	ID              int64           `json:"id"`
	ProviderID      int64           `json:"provider_id" validate:"required"`
	Title           string          `json:"title" validate:"required"`
	Description     string          `json:"description,omitempty"`
	DurationMinutes int             `json:"duration_minutes"`
	PricePerVisit   float64         `json:"price_per_visit"`
	IsActive        bool            `json:"is_active"`
	WeeklyTemplate  json.RawMessage `json:"weekly_template,omitempty" gorm:"type:json"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	Provider *User `json:"provider,omitempty" gorm:"foreignKey:ProviderID"`
}
