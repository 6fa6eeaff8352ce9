package auth

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"strings"
	"time"

	"roadguard/internal/session"
)

// CookieName carries the console session id, never the API token
const CookieName = "roadguard_session"

type consoleIDKey struct{}

// Manager maps browser cookies to sessions stored in console_sessions
type Manager struct {
	DB            *sql.DB
	Sealer        *session.Sealer
	TTL           time.Duration
	SecureCookies bool
}

// StoreFor returns the hydrated session store for a console session id
func (m *Manager) StoreFor(id string) (*session.Store, error) {
	store := session.NewStore(&session.SQLPersister{
		DB:     m.DB,
		ID:     id,
		Sealer: m.Sealer,
		TTL:    m.TTL,
	})
	_, err := store.Hydrate()
	return store, err
}

// LoadSession hydrates the session named by the request cookie and puts it
// in the request context. It never rejects a request; the guards do that.
func (m *Manager) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		store, err := m.StoreFor(cookie.Value)
		if err != nil {
			log.Printf("⚠️  Could not load session: %v", err)
			next.ServeHTTP(w, r)
			return
		}
		sess := store.Current()
		if sess == nil {
			// Stale cookie: the row expired or was logged out elsewhere.
			m.clearCookie(w, r)
			next.ServeHTTP(w, r)
			return
		}

		ctx := session.WithSession(r.Context(), sess)
		ctx = context.WithValue(ctx, consoleIDKey{}, cookie.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ConsoleID returns the console session id LoadSession resolved, if any
func ConsoleID(ctx context.Context) string {
	id, _ := ctx.Value(consoleIDKey{}).(string)
	return id
}

// IsAuthenticated reports whether the request carries a valid session
func IsAuthenticated(r *http.Request) bool {
	return session.FromContext(r.Context()) != nil
}

// Expire ends the request's session after the API rejected its token, so
// the next navigation lands on the login page.
func (m *Manager) Expire(w http.ResponseWriter, r *http.Request) {
	if id := ConsoleID(r.Context()); id != "" {
		store, err := m.StoreFor(id)
		if err == nil {
			err = store.Logout()
		}
		if err != nil {
			log.Printf("⚠️  Failed to expire session: %v", err)
		}
	}
	m.clearCookie(w, r)
}

func (m *Manager) setCookie(w http.ResponseWriter, r *http.Request, id string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.SecureCookies || isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.SecureCookies || isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// isSecureRequest checks if the request came over HTTPS (directly or via reverse proxy)
func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
