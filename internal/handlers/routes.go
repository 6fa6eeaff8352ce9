package handlers

import (
	"net/http"

	"roadguard/internal/auth"
	"roadguard/internal/live"
	"roadguard/internal/middleware"
	"roadguard/internal/session"
	"roadguard/internal/web"
)

func sessionOf(r *http.Request) *session.Session {
	return session.FromContext(r.Context())
}

// RegisterAuthRoutes registers login, logout and registration. limiter
// may be nil.
func RegisterAuthRoutes(mux *http.ServeMux, c *Console, h *auth.Handlers, limiter *middleware.RateLimiter) {
	limit := func(next http.HandlerFunc) http.HandlerFunc {
		if limiter == nil {
			return next
		}
		return limiter.Limit(next)
	}

	mux.HandleFunc("GET /login", c.LoginPage)
	mux.HandleFunc("POST /login", limit(h.Login))
	mux.HandleFunc("GET /register", c.RegisterPage)
	mux.HandleFunc("POST /register", limit(h.Register))
	mux.HandleFunc("POST /logout", h.Logout)
	mux.HandleFunc("GET /api/auth/status", auth.Status)
}

// RegisterPageRoutes registers the console pages and static assets
func RegisterPageRoutes(mux *http.ServeMux, c *Console) {
	mux.HandleFunc("GET /{$}", Root)
	mux.Handle("GET /static/", web.Static())
	mux.HandleFunc("GET /health", Health)

	mux.HandleFunc("GET /dashboard", auth.RequireSession(c.Overview))
	mux.HandleFunc("GET /dashboard/feeds", auth.RequireSession(c.Feeds))
	mux.HandleFunc("GET /dashboard/history", auth.RequireSession(c.History))
	mux.HandleFunc("GET /dashboard/admin", auth.RequireAdmin(c.Admin))
}

// RegisterAPIRoutes registers the JSON API. Destructive calls need a
// token from POST /api/confirm in the X-Action-Token header.
func RegisterAPIRoutes(mux *http.ServeMux, c *Console) {
	protect := auth.RequireSession
	admin := auth.RequireAdmin

	mux.HandleFunc("GET /api/snapshot", protect(c.GetSnapshot))
	mux.HandleFunc("GET /api/chart", protect(c.GetChart))
	mux.HandleFunc("GET /api/activity", protect(c.GetActivity))
	mux.HandleFunc("POST /api/confirm", protect(c.Tokens.HandleConfirm))

	// Overview and live feeds
	mux.HandleFunc("POST /api/alerts", protect(c.CreateAlert))
	mux.HandleFunc("DELETE /api/alerts/{id}", protect(c.DeleteAlert))
	mux.HandleFunc("DELETE /api/cameras/{id}", protect(c.DeleteCamera))
	mux.HandleFunc("POST /api/cameras/{id}/detection", protect(c.ToggleDetection))

	// Stream history
	mux.HandleFunc("PATCH /api/streams/{id}/stop", protect(c.StopStream))
	mux.HandleFunc("DELETE /api/streams/{id}", protect(c.DeleteStream))
	mux.HandleFunc("DELETE /api/streams", protect(c.DeleteAllStreams))

	// Admin panel
	mux.HandleFunc("POST /api/admin/users", admin(c.CreateUser))
	mux.HandleFunc("PATCH /api/admin/users/{id}/approval", admin(c.UpdateApproval))
	mux.HandleFunc("DELETE /api/admin/users/{id}", admin(c.DeleteUser))
	mux.HandleFunc("POST /api/admin/cameras", admin(c.CreateCamera))
	mux.HandleFunc("DELETE /api/admin/cameras/{id}", admin(c.DeleteCamera))
	mux.HandleFunc("DELETE /api/admin/alerts", admin(c.DeleteAllAlerts))
	mux.HandleFunc("POST /api/admin/streams/upload", admin(c.UploadVideo))
	mux.HandleFunc("GET /api/admin/notifications", admin(c.GetNotifications))
	mux.HandleFunc("POST /api/admin/notifications/test", admin(c.TestNotifications))
}

// RegisterLiveRoutes registers the page socket. The hub fetches with the
// connecting session's token.
func RegisterLiveRoutes(mux *http.ServeMux, c *Console, hub *live.Hub) {
	hub.SourceFor = c.SourceFor
	if hub.Expire == nil {
		hub.Expire = c.endSession
	}
	if hub.ObserveAlerts == nil {
		hub.ObserveAlerts = c.ObserveAlerts
	}
	if hub.Location == nil {
		hub.Location = c.Location
	}
	mux.HandleFunc("GET /api/live", auth.RequireSession(hub.HandleConnection))
}
