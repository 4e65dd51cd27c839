package repository

import (
	"context"
	"fmt"
	"time"

	"servio/internal/domain"

	"gorm.io/gorm"
)

type AvailabilityRepository struct {
	db *gorm.DB
}

func NewAvailabilityRepository(db *gorm.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

type availabilityRuleModel struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	ProviderID int64     `gorm:"column:provider_id;index"`
	DayOfWeek  int       `gorm:"column:day_of_week"`
	StartTime  string    `gorm:"column:start_time"`
	EndTime    string    `gorm:"column:end_time"`
	IsActive   bool      `gorm:"column:is_active"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (availabilityRuleModel) TableName() string { return "provider_availability" }

func toDomainAvailabilityRule(m availabilityRuleModel) domain.AvailabilityRule {
	return domain.AvailabilityRule{
		ID:         m.ID,
		ProviderID: m.ProviderID,
		DayOfWeek:  m.DayOfWeek,
		StartTime:  m.StartTime,
		EndTime:    m.EndTime,
		IsActive:   m.IsActive,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func (r *AvailabilityRepository) ListForProvider(ctx context.Context, providerID int64) ([]domain.AvailabilityRule, error) {
	var rows []availabilityRuleModel
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("day_of_week ASC, start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch availability rules: %w", err)
	}
	out := make([]domain.AvailabilityRule, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainAvailabilityRule(m))
	}
	return out, nil
}

func (r *AvailabilityRepository) Save(ctx context.Context, rule *domain.AvailabilityRule) error {
	m := availabilityRuleModel{
		ID:         rule.ID,
		ProviderID: rule.ProviderID,
		DayOfWeek:  rule.DayOfWeek,
		StartTime:  rule.StartTime,
		EndTime:    rule.EndTime,
		IsActive:   rule.IsActive,
	}
	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return fmt.Errorf("save availability rule: %w", err)
	}
	rule.ID = m.ID
	return nil
}

func (r *AvailabilityRepository) Deactivate(ctx context.Context, providerID, ruleID int64) error {
	return r.db.WithContext(ctx).Model(&availabilityRuleModel{}).
		Where("id = ? AND provider_id = ?", ruleID, providerID).
		Update("is_active", false).Error
}
