// Package auth is the identity service: sign-up, sign-in, sign-out and
// password reset over the user directory, with bcrypt password hashes and
// HS256 session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/models"
	"github.com/Vasu1712/chatwise-backend/internal/storage"
)

const (
	purposeSession = "session"
	purposeReset   = "reset"

	resetTTL = time.Hour
)

// Claims is the payload of every token the service issues.
type Claims struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Purpose   string `json:"purpose"`
	jwt.RegisteredClaims
}

// Token is a signed session token.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ResetNotifier delivers password reset tokens.
type ResetNotifier interface {
	SendReset(ctx context.Context, email, token string) error
}

// LogNotifier writes reset tokens to the log instead of mailing them.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) SendReset(ctx context.Context, email, token string) error {
	n.Log.Info().Str("email", email).Str("reset_token", token).Msg("password reset requested")
	return nil
}

// Service implements the identity operations.
type Service struct {
	users    storage.Users
	secret   []byte
	ttl      time.Duration
	notifier ResetNotifier
	log      zerolog.Logger

	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry
}

func NewService(users storage.Users, secret string, ttl time.Duration, notifier ResetNotifier, logger zerolog.Logger) *Service {
	return &Service{
		users:    users,
		secret:   []byte(secret),
		ttl:      ttl,
		notifier: notifier,
		log:      logger,
		revoked:  make(map[string]time.Time),
	}
}

// SignUp validates the credentials and stores a new user.
func (s *Service) SignUp(ctx context.Context, email, password string, profile models.Profile) (models.Identity, error) {
	if err := ValidateEmail(email); err != nil {
		return models.Identity{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return models.Identity{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		Identity: models.Identity{
			Email:     models.NormalizeEmail(email),
			FirstName: profile.FirstName,
			LastName:  profile.LastName,
		},
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return models.Identity{}, err
	}

	s.log.Info().Str("email", u.Email).Msg("user signed up")
	return u.Identity, nil
}

// SignIn checks the password and issues a session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (Token, models.Identity, error) {
	if err := ValidateEmail(email); err != nil {
		return Token{}, models.Identity{}, err
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return Token{}, models.Identity{}, apperr.Auth("invalid email or password")
	}
	if err != nil {
		return Token{}, models.Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Token{}, models.Identity{}, apperr.Auth("invalid email or password")
	}

	tok, err := s.issue(u.Identity, purposeSession, s.ttl)
	if err != nil {
		return Token{}, models.Identity{}, err
	}
	s.log.Info().Str("email", u.Email).Msg("user signed in")
	return tok, u.Identity, nil
}

// SignOut revokes a session token until it would have expired.
func (s *Service) SignOut(token string) error {
	claims, err := s.parse(token, purposeSession)
	if err != nil {
		return err
	}

	s.revoke(claims)
	s.log.Info().Str("email", claims.Email).Msg("user signed out")
	return nil
}

// Verify returns the identity behind a valid, unrevoked session token.
func (s *Service) Verify(token string) (models.Identity, error) {
	claims, err := s.parse(token, purposeSession)
	if err != nil {
		return models.Identity{}, err
	}
	if s.isRevoked(claims.ID) {
		return models.Identity{}, apperr.Auth("session ended")
	}
	return models.Identity{
		ID:        claims.Subject,
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
	}, nil
}

// SendPasswordReset issues a short-lived reset token for email and hands
// it to the notifier.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Auth("failed to send password reset email")
	}
	if err != nil {
		return err
	}

	tok, err := s.issue(u.Identity, purposeReset, resetTTL)
	if err != nil {
		return err
	}
	if err := s.notifier.SendReset(ctx, u.Email, tok.Value); err != nil {
		return apperr.Auth("failed to send password reset email")
	}
	return nil
}

// ResetPassword sets a new password using a reset token. A token is
// spent by the first reset that succeeds with it.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	claims, err := s.parse(token, purposeReset)
	if err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if !s.revoke(claims) {
		return apperr.Auth("reset link already used")
	}
	if err := s.users.UpdatePassword(ctx, claims.Email, string(hash)); err != nil {
		s.mu.Lock()
		delete(s.revoked, claims.ID)
		s.mu.Unlock()
		return err
	}
	s.log.Info().Str("email", claims.Email).Msg("password reset")
	return nil
}

// revoke records claims.ID until the token expires and prunes expired
// entries. It reports false when the id was already revoked.
func (s *Service) revoke(claims *Claims) bool {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	if _, ok := s.revoked[claims.ID]; ok {
		return false
	}
	s.revoked[claims.ID] = claims.ExpiresAt.Time
	return true
}

func (s *Service) isRevoked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[id]
	return ok
}

func (s *Service) issue(id models.Identity, purpose string, ttl time.Duration) (Token, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Email:     id.Email,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Purpose:   purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

func (s *Service) parse(token, purpose string) (*Claims, error) {
	if token == "" {
		return nil, apperr.Auth("missing token")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, apperr.Auth("invalid token")
	}
	if claims.Purpose != purpose {
		return nil, apperr.Auth("invalid token")
	}
	return claims, nil
}
