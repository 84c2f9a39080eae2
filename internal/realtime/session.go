package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session is one live connection. It starts anonymous and is bound to a
// user id by identify.
type Session struct {
	ID string

	mu       sync.RWMutex
	userID   string
	language string
	legacy   atomic.Bool
}

func NewSession(language string) *Session {
	return &Session{ID: uuid.NewString(), language: language}
}

// Bind attaches userID, replacing any earlier binding. An empty language
// keeps the current one.
func (s *Session) Bind(userID, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	if language != "" {
		s.language = language
	}
}

func (s *Session) UserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

func (s *Session) Bound() bool {
	_, ok := s.UserID()
	return ok
}

func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// markLegacy switches the session to legacy outbound event names.
func (s *Session) markLegacy() { s.legacy.Store(true) }

// Legacy reports whether the client has used a legacy event name.
func (s *Session) Legacy() bool { return s.legacy.Load() }
