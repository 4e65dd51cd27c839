package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"servio/internal/domain"

	"gorm.io/gorm"
)

type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

type listingModel struct {
	ID              int64           `gorm:"column:id;primaryKey"`
	ProviderID      int64           `gorm:"column:provider_id;index"`
	Title           string          `gorm:"column:title"`
	Description     *string         `gorm:"column:description"`
	DurationMinutes int             `gorm:"column:duration_minutes"`
	PricePerVisit   float64         `gorm:"column:price_per_visit"`
	IsActive        bool            `gorm:"column:is_active"`
	WeeklyTemplate  json.RawMessage `gorm:"column:weekly_template;type:json"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
}

func (listingModel) TableName() string { return "listings" }

func toDomainListing(m listingModel) *domain.Listing {
	var desc string
	if m.Description != nil {
		desc = *m.Description
	}
	return &domain.Listing{
		ID:              m.ID,
		ProviderID:      m.ProviderID,
		Title:           m.Title,
		Description:     desc,
		DurationMinutes: m.DurationMinutes,
		PricePerVisit:   m.PricePerVisit,
		IsActive:        m.IsActive,
		WeeklyTemplate:  m.WeeklyTemplate,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func (r *ListingRepository) GetByID(ctx context.Context, id int64) (*domain.Listing, error) {
	var m listingModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return toDomainListing(m), nil
}

func (r *ListingRepository) ListByProvider(ctx context.Context, providerID int64) ([]domain.Listing, error) {
	var rows []listingModel
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	out := make([]domain.Listing, 0, len(rows))
	for _, m := range rows {
		out = append(out, *toDomainListing(m))
	}
	return out, nil
}

func (r *ListingRepository) Create(ctx context.Context, l *domain.Listing) error {
	var desc *string
	if l.Description != "" {
		v := l.Description
		desc = &v
	}
	m := listingModel{
		ProviderID:      l.ProviderID,
		Title:           l.Title,
		Description:     desc,
		DurationMinutes: l.DurationMinutes,
		PricePerVisit:   l.PricePerVisit,
		IsActive:        l.IsActive,
		WeeklyTemplate:  l.WeeklyTemplate,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	l.ID = m.ID
	return nil
}

// GetWeeklyTemplate returns the listing's JSON weekly template; missing or
// empty templates fall back to the platform default.
func (r *ListingRepository) GetWeeklyTemplate(ctx context.Context, listingID int64) (json.RawMessage, error) {
	var m listingModel
	err := r.db.WithContext(ctx).Select("id", "weekly_template").First(&m, "id = ?", listingID).Error
	if err != nil {
		return nil, err
	}
	if len(m.WeeklyTemplate) == 0 {
		return json.Marshal(domain.DefaultWeeklyTemplate())
	}
	return m.WeeklyTemplate, nil
}

func (r *ListingRepository) SaveWeeklyTemplate(ctx context.Context, listingID int64, tpl json.RawMessage) error {
	return r.db.WithContext(ctx).Model(&listingModel{}).
		Where("id = ?", listingID).
		Update("weekly_template", tpl).Error
}
