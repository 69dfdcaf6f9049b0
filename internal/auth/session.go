package auth

import (
	"crypto/subtle"
	"sync"
	"time"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string // "success", "info", "error"
	Message string
}

// Session is an authenticated admin session.
type Session struct {
	Username  string
	CSRFToken string
	CreatedAt time.Time
	ExpiresAt time.Time

	flashes []Flash
}

// ValidCSRF reports whether token matches the session's CSRF token.
func (s *Session) ValidCSRF(token string) bool {
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.CSRFToken)) == 1
}

// SessionStore manages in-memory sessions with TTL.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewSessionStore creates a session store and starts a background cleanup
// goroutine that stops when stopCh is closed.
func NewSessionStore(ttl time.Duration, stopCh <-chan struct{}) *SessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	ss := &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
	go ss.cleanup(stopCh)
	return ss
}

// Create starts a session for username and returns its cookie token.
func (ss *SessionStore) Create(username string) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	csrf, err := GenerateToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	ss.mu.Lock()
	ss.sessions[token] = &Session{
		Username:  username,
		CSRFToken: csrf,
		CreatedAt: now,
		ExpiresAt: now.Add(ss.ttl),
	}
	ss.mu.Unlock()
	return token, nil
}

// Get returns the live session for token, or nil.
func (ss *SessionStore) Get(token string) *Session {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	s, ok := ss.sessions[token]
	if !ok {
		return nil
	}
	if time.Now().After(s.ExpiresAt) {
		return nil
	}
	return s
}

func (ss *SessionStore) Delete(token string) {
	ss.mu.Lock()
	delete(ss.sessions, token)
	ss.mu.Unlock()
}

// AddFlash queues a message for the session's next page view.
func (ss *SessionStore) AddFlash(token string, f Flash) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.sessions[token]; ok {
		s.flashes = append(s.flashes, f)
	}
}

// PopFlashes returns and clears the session's queued messages.
func (ss *SessionStore) PopFlashes(token string) []Flash {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.sessions[token]
	if !ok {
		return nil
	}
	out := s.flashes
	s.flashes = nil
	return out
}

func (ss *SessionStore) cleanup(stopCh <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ss.purgeExpired(time.Now())
		}
	}
}

func (ss *SessionStore) purgeExpired(now time.Time) {
	ss.mu.Lock()
	for token, s := range ss.sessions {
		if now.After(s.ExpiresAt) {
			delete(ss.sessions, token)
		}
	}
	ss.mu.Unlock()
}
