package ws

import (
	"sync"

	"github.com/Vasu1712/chatwise-backend/internal/session"
)

// Hub tracks the live sessions opened with each token so signing out can
// end all of them.
type Hub struct {
	Sessions map[string]map[*session.Session]bool // token -> sessions
	mu       sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		Sessions: make(map[string]map[*session.Session]bool),
	}
}

func (h *Hub) Register(token string, s *session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Sessions[token] == nil {
		h.Sessions[token] = make(map[*session.Session]bool)
	}
	h.Sessions[token][s] = true
}

func (h *Hub) Unregister(token string, s *session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sessions, ok := h.Sessions[token]; ok {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(h.Sessions, token)
		}
	}
}

// EndSession invalidates every session opened with token and returns how
// many there were.
func (h *Hub) EndSession(token string) int {
	h.mu.Lock()
	sessions := h.Sessions[token]
	delete(h.Sessions, token)
	h.mu.Unlock()

	for s := range sessions {
		s.Invalidate()
	}
	return len(sessions)
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sessions := range h.Sessions {
		n += len(sessions)
	}
	return n
}
