package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"servio/internal/domain"
)

const (
	maxFailedLoginAttempts = 5
	lockoutDuration        = 15 * time.Minute
)

type jwtService interface {
	GenerateToken(userID int64, role string) (string, error)
}

type loginAttempts struct {
	failures    int
	lockedUntil time.Time
}

// Service holds the registration, login and token rotation flows.
type Service struct {
	users              UserRepositoryInterface
	tokens             RefreshTokenRepositoryInterface
	jwt                jwtService
	refreshTokenPepper string
	refreshTTL         time.Duration

	mu       sync.Mutex
	attempts map[string]*loginAttempts
}

type LoginResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

func NewService(
	users UserRepositoryInterface,
	tokens RefreshTokenRepositoryInterface,
	jwt jwtService,
	refreshTokenPepper string,
	refreshTTL time.Duration,
) *Service {
	return &Service{
		users:              users,
		tokens:             tokens,
		jwt:                jwt,
		refreshTokenPepper: refreshTokenPepper,
		refreshTTL:         refreshTTL,
		attempts:           make(map[string]*loginAttempts),
	}
}

// Register creates a client or provider account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := domain.RoleClient
	if req.Role == string(domain.RoleProvider) {
		role = domain.RoleProvider
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Phone:        req.Phone,
		Address:      req.Address,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues an access/refresh pair. Repeated
// failures lock the email for a cooldown period.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if s.isLocked(email) {
		return nil, ErrAccountLocked
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.recordFailure(email)
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		s.recordFailure(email)
		return nil, ErrInvalidCredentials
	}
	s.clearFailures(email)

	access, err := s.jwt.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	refresh, err := s.issueRefreshToken(ctx, user.ID, uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates a refresh token. A token presented twice means the raw
// value leaked, so the whole family is revoked.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	stored, err := s.tokens.GetByHash(ctx, s.hashToken(rawToken))
	if err != nil {
		return nil, ErrUnauthorized
	}

	now := time.Now().UTC()
	if stored.IsUsed() {
		_ = s.tokens.RevokeFamily(ctx, stored.FamilyID)
		return nil, ErrUnauthorized
	}
	if stored.IsRevoked() || stored.IsExpired(now) {
		return nil, ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, ErrUnauthorized
	}

	if err := s.tokens.MarkUsed(ctx, stored.ID); err != nil {
		return nil, err
	}
	access, err := s.jwt.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	refresh, err := s.issueRefreshToken(ctx, user.ID, stored.FamilyID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes every live refresh token of the user.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.tokens.RevokeByUser(ctx, userID)
}

func (s *Service) Me(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

func (s *Service) issueRefreshToken(ctx context.Context, userID int64, familyID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)

	record := &domain.RefreshToken{
		UserID:    userID,
		TokenHash: s.hashToken(token),
		FamilyID:  familyID,
		ExpiresAt: time.Now().UTC().Add(s.refreshTTL),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) hashToken(token string) string {
	sum := sha256.Sum256([]byte(token + s.refreshTokenPepper))
	return hex.EncodeToString(sum[:])
}

func (s *Service) isLocked(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[email]
	return ok && time.Now().Before(a.lockedUntil)
}

func (s *Service) recordFailure(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[email]
	if !ok {
		a = &loginAttempts{}
		s.attempts[email] = a
	}
	a.failures++
	if a.failures >= maxFailedLoginAttempts {
		a.lockedUntil = time.Now().Add(lockoutDuration)
		a.failures = 0
	}
}

func (s *Service) clearFailures(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, email)
}
