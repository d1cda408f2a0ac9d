// Package session holds the process-wide identity the client acts as.
//
// A Session is initialized once on startup (from config or a fresh login)
// and invalidated on logout or when the remote store rejects the
// credential. Components read it through the narrow accessors below instead
// of reaching into config.
package session

import (
	"sync"

	"github.com/joescharf/teamboard/internal/models"
)

// Session is safe for concurrent use.
type Session struct {
	mu        sync.RWMutex
	identity  models.Identity
	valid     bool
	listeners []func()
}

// New returns an empty, invalid session.
func New() *Session {
	return &Session{}
}

// FromIdentity returns a session initialized with id.
func FromIdentity(id models.Identity) *Session {
	s := New()
	s.Init(id)
	return s
}

// Init installs id as the current identity. An empty token leaves the
// session invalid.
func (s *Session) Init(id models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
	s.valid = id.Token != ""
}

// Identity returns the current identity and whether it is usable.
func (s *Session) Identity() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.valid
}

// Token returns the bearer credential, or "" once invalidated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.valid {
		return ""
	}
	return s.identity.Token
}

// TeamID returns the team new issues are filed under.
func (s *Session) TeamID() (models.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.valid || s.identity.TeamID.IsZero() {
		return "", false
	}
	return s.identity.TeamID, true
}

// Valid reports whether the session currently holds a credential.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valid
}

// OnInvalidate registers fn to run after each Invalidate.
func (s *Session) OnInvalidate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Invalidate drops the credential. Listeners run outside the lock.
func (s *Session) Invalidate() {
	s.mu.Lock()
	wasValid := s.valid
	s.valid = false
	s.identity.Token = ""
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	if !wasValid {
		return
	}
	for _, fn := range listeners {
		fn()
	}
}
