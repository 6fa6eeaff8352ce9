// Package session holds the signed-in identity of a console user: the API
// bearer token, the role it was issued for and the account e-mail. A
// session is created on login, restored by an explicit hydration step on
// startup and destroyed on logout.
package session

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"roadguard/internal/models"
)

// Session is the persisted identity triple plus its expiry
type Session struct {
	Token     string      `json:"token"`
	Role      models.Role `json:"role"`
	Email     string      `json:"email"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
}

// IsAdmin reports whether the session may use admin-only routes
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role.IsAdmin()
}

// Expired reports whether the session has a known expiry that has passed
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Persister is durable storage for at most one session
type Persister interface {
	Load() (*Session, error)
	Save(Session) error
	Clear() error
}

// Store is the active session backed by a Persister. The zero value is not
// usable; create one with NewStore.
type Store struct {
	persister Persister
	now       func() time.Time

	mu      sync.RWMutex
	current *Session
	loading bool
}

// NewStore creates a store over p. Nothing is read until Hydrate.
func NewStore(p Persister) *Store {
	return &Store{persister: p, now: time.Now}
}

// Hydrate restores the persisted session, if any. It returns nil when no
// valid session is stored; an expired session is cleared.
func (s *Store) Hydrate() (*Session, error) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	sess, err := s.persister.Load()
	if err != nil {
		return nil, fmt.Errorf("hydrate session: %w", err)
	}
	if sess != nil && (sess.Token == "" || sess.Expired(s.now())) {
		if err := s.persister.Clear(); err != nil {
			log.Printf("⚠️  Could not clear stale session: %v", err)
		}
		sess = nil
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
	return copySession(sess), nil
}

// Loading is true only while Hydrate is reading the persister
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Login persists the triple and makes it the active session. The expiry
// comes from the token's exp claim when it has one.
func (s *Store) Login(token string, role models.Role, email string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}
	sess := Session{Token: token, Role: role, Email: email}
	if claims, err := ParseClaims(token); err == nil {
		sess.ExpiresAt = claims.ExpiresAt
		if sess.Role == "" {
			sess.Role = claims.Role
		}
	}

	if err := s.persister.Save(sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()
	return copySession(&sess), nil
}

// Logout clears the persisted and active session
func (s *Store) Logout() error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := s.persister.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Current returns a copy of the active session, or nil
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.current)
}

// Transport wraps base so that requests carry the active session's token
func (s *Store) Transport(base http.RoundTripper) http.RoundTripper {
	return BearerTransport(base, s.Current)
}

func copySession(sess *Session) *Session {
	if sess == nil {
		return nil
	}
	c := *sess
	return &c
}

// BearerTransport adds "Authorization: Bearer <token>" to every request
// for which current returns a session.
func BearerTransport(base http.RoundTripper, current func() *Session) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerTransport{base: base, current: current}
}

type bearerTransport struct {
	base    http.RoundTripper
	current func() *Session
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	sess := t.current()
	if sess == nil || sess.Token == "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+sess.Token)
	return t.base.RoundTrip(r)
}

type contextKey struct{}

// WithSession returns a context carrying sess
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session stored by WithSession, or nil
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}
