package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roadguard/internal/api"
	"roadguard/internal/events"
	"roadguard/internal/models"
	"roadguard/internal/session"
)

// Handlers serves login, logout, registration and status. API must be an
// unauthenticated client; the token it returns is what the session holds.
type Handlers struct {
	Manager *Manager
	API     *api.Client
	Bus     *events.Bus
	// OnLogout runs after a console session is cleared, e.g. to unmount
	// that session's pollers.
	OnLogout func(consoleID string)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// wantsJSON distinguishes fetch() callers from plain HTML form posts
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

func readCredentials(r *http.Request) (credentials, error) {
	var c credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			return c, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return c, err
		}
		c.Email = r.PostForm.Get("email")
		if c.Email == "" {
			c.Email = r.PostForm.Get("username")
		}
		c.Password = r.PostForm.Get("password")
	}
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" || c.Password == "" {
		return c, errors.New("email and password are required")
	}
	return c, nil
}

// Login exchanges credentials for an API token and starts a console session
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(r)
	if err != nil {
		h.loginFailed(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	tok, err := h.API.Login(r.Context(), creds.Email, creds.Password)
	if err != nil {
		msg, code := "Login failed", http.StatusBadGateway
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			code = apiErr.Status
			if apiErr.Detail != "" {
				msg = apiErr.Detail
			}
		}
		log.Printf("⚠️  Login failed for %s: %v", creds.Email, err)
		h.loginFailed(w, r, msg, code)
		return
	}

	id := session.NewSessionID()
	store, err := h.Manager.StoreFor(id)
	if err != nil {
		h.loginFailed(w, r, "Failed to create session", http.StatusInternalServerError)
		return
	}
	sess, err := store.Login(tok.AccessToken, tok.Role, creds.Email)
	if err != nil {
		log.Printf("❌ Failed to persist session: %v", err)
		h.loginFailed(w, r, "Failed to create session", http.StatusInternalServerError)
		return
	}

	expires := sess.ExpiresAt
	if h.Manager.TTL > 0 {
		if limit := time.Now().Add(h.Manager.TTL); expires.IsZero() || limit.Before(expires) {
			expires = limit
		}
	}
	h.Manager.setCookie(w, r, id, expires)

	log.Printf("🔓 Login: %s (%s)", sess.Email, sess.Role)
	h.Bus.Publish(events.Event{
		Type:    events.SessionLogin,
		Actor:   sess.Email,
		Message: sess.Email + " signed in",
	})

	if !wantsJSON(r) {
		http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
		return
	}
	jsonResponse(w, map[string]interface{}{
		"success": true,
		"email":   sess.Email,
		"role":    sess.Role,
	})
}

func (h *Handlers) loginFailed(w http.ResponseWriter, r *http.Request, msg string, code int) {
	if wantsJSON(r) {
		jsonError(w, msg, code)
		return
	}
	http.Redirect(w, r, RouteLogin+"?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

// Logout clears the console session and its cookie
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		store, err := h.Manager.StoreFor(cookie.Value)
		if err == nil {
			email := ""
			if s := store.Current(); s != nil {
				email = s.Email
			}
			if err := store.Logout(); err != nil {
				log.Printf("⚠️  Failed to clear session: %v", err)
			}
			if email != "" {
				log.Printf("🔒 Logout: %s", email)
				h.Bus.Publish(events.Event{
					Type:    events.SessionLogout,
					Actor:   email,
					Message: email + " signed out",
				})
			}
		}
		if h.OnLogout != nil {
			h.OnLogout(cookie.Value)
		}
	}
	h.Manager.clearCookie(w, r)

	if !wantsJSON(r) {
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
		return
	}
	jsonResponse(w, map[string]string{"status": "logged_out"})
}

// Register forwards a self-service account request to the API. New
// accounts start pending until an admin approves them.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var u models.NewUser
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			h.registerFailed(w, r, "Invalid request", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.registerFailed(w, r, "Invalid request", http.StatusBadRequest)
			return
		}
		u = models.NewUser{
			Name:     r.PostForm.Get("name"),
			Email:    r.PostForm.Get("email"),
			Password: r.PostForm.Get("password"),
			Role:     models.Role(r.PostForm.Get("role")),
		}
	}

	u.Email = strings.TrimSpace(u.Email)
	if u.Name == "" || u.Email == "" || u.Password == "" {
		h.registerFailed(w, r, "Name, email and password are required", http.StatusBadRequest)
		return
	}
	if !u.Role.Valid() || u.Role.IsAdmin() {
		h.registerFailed(w, r, "Choose a valid role", http.StatusBadRequest)
		return
	}

	msg, err := h.API.Register(r.Context(), u)
	if err != nil {
		text, code := "Registration failed", http.StatusBadGateway
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			code = apiErr.Status
			if apiErr.Detail != "" {
				text = apiErr.Detail
			}
		}
		h.registerFailed(w, r, text, code)
		return
	}

	log.Printf("📝 Registration submitted: %s (%s)", u.Email, u.Role)
	if !wantsJSON(r) {
		http.Redirect(w, r, RouteLogin+"?registered=1", http.StatusSeeOther)
		return
	}
	jsonResponse(w, map[string]interface{}{"success": true, "message": msg.Message})
}

func (h *Handlers) registerFailed(w http.ResponseWriter, r *http.Request, msg string, code int) {
	if wantsJSON(r) {
		jsonError(w, msg, code)
		return
	}
	http.Redirect(w, r, RouteRegister+"?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

// Status reports whether the request carries a session, and whose
func Status(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	resp := map[string]interface{}{"authenticated": s != nil}
	if s != nil {
		resp["email"] = s.Email
		resp["role"] = s.Role
		resp["is_admin"] = s.IsAdmin()
		if !s.ExpiresAt.IsZero() {
			resp["expires_at"] = s.ExpiresAt
		}
	}
	jsonResponse(w, resp)
}
