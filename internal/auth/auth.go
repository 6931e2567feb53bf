// Package auth implements the connection-admission decision and session
// minting described in spec.md §4.3: bearer-token validation against a
// configured token, uniformly random non-reusable session ids, and
// last-activity tracking.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hemiaoio/android-auto-test/internal/agenterr"
)

// Session is a minted, live connection session. Sessions never expire
// on a timer; they end on disconnect or explicit Invalidate.
type Session struct {
	ID           string
	CreatedAt    time.Time
	lastActivity atomicTime
}

type atomicTime struct {
	mu sync.RWMutex
	t  time.Time
}

func (a *atomicTime) set(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.t = t
}

func (a *atomicTime) get() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.t
}

func (s *Session) LastActivity() time.Time { return s.lastActivity.get() }

// Authenticator decides connection admission and owns the live session
// table. A zero-value token disables token checking: every connection
// is admitted and assigned an anonymous session.
type Authenticator struct {
	token string

	mu       sync.RWMutex
	sessions map[string]*Session
}

func New(token string) *Authenticator {
	return &Authenticator{token: token, sessions: make(map[string]*Session)}
}

// Authenticate validates the presented bearer token (ignored when no
// token is configured) and mints a new session on success.
func (a *Authenticator) Authenticate(ctx context.Context, presentedToken string) (*Session, error) {
	if a.token != "" && presentedToken != a.token {
		return nil, agenterr.New(agenterr.CodeAuthFailed, "bearer token did not match the configured token")
	}
	s := &Session{ID: newSessionID(), CreatedAt: time.Now()}
	s.lastActivity.set(s.CreatedAt)

	a.mu.Lock()
	a.sessions[s.ID] = s
	a.mu.Unlock()
	return s, nil
}

// Touch records activity on a session, extending nothing (sessions do
// not expire on a timer) but updating its last-activity stamp for
// observability.
func (a *Authenticator) Touch(sessionID string) {
	a.mu.RLock()
	s, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if ok {
		s.lastActivity.set(time.Now())
	}
}

// Invalidate ends a session explicitly (e.g. on disconnect).
func (a *Authenticator) Invalidate(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
}

// Get returns a live session by id.
func (a *Authenticator) Get(sessionID string) (*Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.sessions[sessionID]
	return s, ok
}

// Count returns the number of live sessions.
func (a *Authenticator) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

// newSessionID mints a uniformly random, never-reused session id: 16
// bytes (128 bits) of crypto/rand, lowercase hex encoded.
func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failing is unrecoverable entropy starvation
	}
	return hex.EncodeToString(buf)
}
