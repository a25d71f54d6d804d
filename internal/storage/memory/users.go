package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/models"
)

// CreateUser stores u keyed by its normalized email. A missing ID is
// filled in.
func (s *DMStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := models.NormalizeEmail(u.Email)
	if _, exists := s.users[email]; exists {
		return apperr.Auth("email already in use")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.Email = email

	stored := *u
	s.users[email] = &stored
	s.log.Debug().Str("email", email).Msg("user created")
	return nil
}

func (s *DMStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[models.NormalizeEmail(email)]
	if !ok {
		return nil, apperr.NotFound("user " + email)
	}
	out := *u
	return &out, nil
}

func (s *DMStore) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[models.NormalizeEmail(email)]
	if !ok {
		return apperr.NotFound("user " + email)
	}
	u.PasswordHash = passwordHash
	return nil
}
