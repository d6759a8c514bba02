package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fakemyrun/internal/domain"
	"fakemyrun/internal/repository"
)

// AuthService manages credentials and bearer sessions: password hashing,
// token issuance and per-request token validation.
type AuthService interface {
	Register(ctx context.Context, email, username, password string) (*domain.User, string, error)
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

type authService struct {
	users      repository.UserRepository
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
}

// NewAuthService builds an AuthService around the given user store. The
// signing secret and token TTL are fixed at construction; cost <= 0 selects
// the bcrypt library default.
func NewAuthService(users repository.UserRepository, secret string, tokenTTL time.Duration, cost int) AuthService {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &authService{
		users:      users,
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		bcryptCost: cost,
	}
}

func (s *authService) Register(ctx context.Context, email, username, password string) (*domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if email == "" {
		return nil, "", validationf("email is required")
	}
	if username == "" {
		return nil, "", validationf("username is required")
	}
	if len(password) < 8 {
		return nil, "", validationf("password must be at least 8 characters")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, "", validationf("email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, "", validationf("username already taken")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration can still trip the unique constraint
		// after the checks above.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, "", validationf("email or username already taken")
		}
		return nil, "", err
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return sanitizeUser(user), token, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", fmt.Errorf("missing credentials: %w", ErrUnauthorized)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", fmt.Errorf("unknown email: %w", ErrUnauthorized)
		}
		return nil, "", err
	}
	if !user.IsActive {
		return nil, "", fmt.Errorf("account deactivated: %w", ErrUnauthorized)
	}
	// CompareHashAndPassword also rejects malformed stored hashes.
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", fmt.Errorf("password mismatch: %w", ErrUnauthorized)
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return sanitizeUser(user), token, nil
}

func (s *authService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	subject, err := s.parseToken(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("token subject no longer exists: %w", ErrUnauthorized)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("account deactivated: %w", ErrUnauthorized)
	}
	return sanitizeUser(user), nil
}

func (s *authService) issueToken(subject string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *authService) parseToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid token: %w", ErrUnauthorized)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token missing subject: %w", ErrUnauthorized)
	}
	return claims.Subject, nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		IsActive:  user.IsActive,
	}
}
