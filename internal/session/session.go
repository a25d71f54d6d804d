// Package session holds the identity a connected client acts as. A
// Session is created per client and handed to every component that needs
// the current identity; it is never global.
package session

import (
	"sync"
	"time"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/models"
)

// Status is the load state of a session.
type Status int

const (
	// Loading means the identity has not been resolved yet.
	Loading Status = iota
	// SignedIn means Identity is valid.
	SignedIn
	// SignedOut means the session was invalidated and cannot be reused.
	SignedOut
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case SignedIn:
		return "signed_in"
	default:
		return "signed_out"
	}
}

// Session is safe for concurrent use.
type Session struct {
	mu       sync.RWMutex
	status   Status
	identity models.Identity
	loc      *time.Location
	done     chan struct{}
}

// New returns a session in the Loading state.
func New() *Session {
	return &Session{status: Loading, loc: time.UTC, done: make(chan struct{})}
}

// Start marks the session signed in as id, rendering days in loc.
// Starting an invalidated session is an auth error.
func (s *Session) Start(id models.Identity, loc *time.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == SignedOut {
		return apperr.Auth("session already ended")
	}
	if loc == nil {
		loc = time.UTC
	}
	id.Email = models.NormalizeEmail(id.Email)
	s.identity = id
	s.loc = loc
	s.status = SignedIn
	return nil
}

// Invalidate ends the session. Done is closed exactly once.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == SignedOut {
		return
	}
	s.status = SignedOut
	s.identity = models.Identity{}
	close(s.done)
}

// Identity returns the signed-in identity, or an auth error.
func (s *Session) Identity() (models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != SignedIn {
		return models.Identity{}, apperr.Auth("not signed in")
	}
	return s.identity, nil
}

// Email returns the signed-in email or "".
func (s *Session) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.Email
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Location is the timezone used for day separators.
func (s *Session) Location() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loc
}

// Done is closed when the session is invalidated.
func (s *Session) Done() <-chan struct{} { return s.done }

// ParseLocation loads an IANA zone name, returning fallback (or UTC) for
// an empty name.
func ParseLocation(name string, fallback *time.Location) (*time.Location, error) {
	if name == "" {
		if fallback == nil {
			return time.UTC, nil
		}
		return fallback, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperr.Validation("unknown timezone " + name)
	}
	return loc, nil
}
