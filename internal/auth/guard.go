package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"roadguard/internal/session"
)

// Console routes
const (
	RouteLogin     = "/login"
	RouteRegister  = "/register"
	RouteDashboard = "/dashboard"
	RouteFeeds     = "/dashboard/feeds"
	RouteHistory   = "/dashboard/history"
	RouteAdmin     = "/dashboard/admin"
)

// Requirement is what a route asks of the session
type Requirement int

const (
	Public Requirement = iota
	NeedSession
	NeedAdmin
)

// Decision is the outcome of checking a session against a route
type Decision int

const (
	Allow Decision = iota
	RedirectLogin
	RedirectDashboard
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect:" + RouteLogin
	case RedirectDashboard:
		return "redirect:" + RouteDashboard
	}
	return "unknown"
}

// Target is where a redirect decision sends the caller
func (d Decision) Target() string {
	switch d {
	case RedirectLogin:
		return RouteLogin
	case RedirectDashboard:
		return RouteDashboard
	}
	return ""
}

// Decide is the whole guard: no session goes to login, a non-admin on an
// admin route goes to the dashboard, everything else renders.
func Decide(s *session.Session, req Requirement) Decision {
	switch req {
	case NeedSession:
		if s == nil {
			return RedirectLogin
		}
	case NeedAdmin:
		if s == nil {
			return RedirectLogin
		}
		if !s.IsAdmin() {
			return RedirectDashboard
		}
	}
	return Allow
}

// RequirementFor maps a console path to its requirement
func RequirementFor(path string) Requirement {
	switch {
	case path == RouteAdmin || strings.HasPrefix(path, RouteAdmin+"/"),
		strings.HasPrefix(path, "/api/admin/"):
		return NeedAdmin
	case path == RouteDashboard || strings.HasPrefix(path, RouteDashboard+"/"),
		strings.HasPrefix(path, "/api/"):
		return NeedSession
	}
	return Public
}

// RequireSession wraps a handler that needs any logged-in session
func RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return guard(NeedSession, next)
}

// RequireAdmin wraps a handler that needs the admin role
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return guard(NeedAdmin, next)
}

// guard runs synchronously on the session LoadSession put in the context.
// Pages get redirects; JSON endpoints under /api/ get 401 or 403.
func guard(req Requirement, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := Decide(session.FromContext(r.Context()), req)
		if d == Allow {
			next(w, r)
			return
		}

		if isAPIRequest(r) {
			if d == RedirectLogin {
				jsonError(w, "Unauthorized", http.StatusUnauthorized)
			} else {
				jsonError(w, "Forbidden", http.StatusForbidden)
			}
			return
		}
		http.Redirect(w, r, d.Target(), http.StatusSeeOther)
	}
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}
