package repository

import (
	"context"
	"fmt"
	"time"

	"servio/internal/domain"

	"gorm.io/gorm"
)

type RefreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

type refreshTokenModel struct {
	ID        int64      `gorm:"column:id;primaryKey"`
	UserID    int64      `gorm:"column:user_id;index"`
	TokenHash string     `gorm:"column:token_hash;size:64;uniqueIndex"`
	FamilyID  string     `gorm:"column:family_id;size:36;index"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	ExpiresAt time.Time  `gorm:"column:expires_at;index"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	RevokedAt *time.Time `gorm:"column:revoked_at;index"`
}

func (refreshTokenModel) TableName() string { return "refresh_tokens" }

func toDomainRefreshToken(m refreshTokenModel) *domain.RefreshToken {
	return &domain.RefreshToken{
		ID:        m.ID,
		UserID:    m.UserID,
		TokenHash: m.TokenHash,
		FamilyID:  m.FamilyID,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		UsedAt:    m.UsedAt,
		RevokedAt: m.RevokedAt,
	}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	m := refreshTokenModel{
		UserID:    t.UserID,
		TokenHash: t.TokenHash,
		FamilyID:  t.FamilyID,
		ExpiresAt: t.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	t.ID = m.ID
	t.CreatedAt = m.CreatedAt
	return nil
}

func (r *RefreshTokenRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	var m refreshTokenModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&m).Error; err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return toDomainRefreshToken(m), nil
}

// MarkUsed stamps the token as consumed by a rotation.
func (r *RefreshTokenRepository) MarkUsed(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).Model(&refreshTokenModel{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("mark refresh token used: %w", err)
	}
	return nil
}

// RevokeFamily kills every live token descended from the same login.
func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, familyID string) error {
	err := r.db.WithContext(ctx).Model(&refreshTokenModel{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Update("revoked_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("revoke token family: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) RevokeByUser(ctx context.Context, userID int64) error {
	err := r.db.WithContext(ctx).Model(&refreshTokenModel{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) error {
	err := r.db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC()).
		Delete(&refreshTokenModel{}).Error
	if err != nil {
		return fmt.Errorf("delete expired tokens: %w", err)
	}
	return nil
}
