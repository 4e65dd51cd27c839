package auth

import (
	"context"

	"servio/internal/domain"
)

// UserRepositoryInterface covers only what the auth flows need.
type UserRepositoryInterface interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// RefreshTokenRepositoryInterface stores rotation state for refresh tokens.
type RefreshTokenRepositoryInterface interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	MarkUsed(ctx context.Context, id int64) error
	RevokeFamily(ctx context.Context, familyID string) error
	RevokeByUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context) error
}
