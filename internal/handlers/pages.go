package handlers

import (
	"net/http"
	"net/url"

	"roadguard/internal/auth"
	"roadguard/internal/chart"
	"roadguard/internal/dashboard"
	"roadguard/internal/session"
	"roadguard/internal/web"
)

var pageTitles = map[dashboard.Page]string{
	dashboard.PageOverview: "Dashboard Overview",
	dashboard.PageFeeds:    "Live Feeds",
	dashboard.PageHistory:  "Stream History",
	dashboard.PageAdmin:    "Admin Panel",
}

// LoginPage handles GET /login. A signed-in user goes straight to the
// dashboard.
func (c *Console) LoginPage(w http.ResponseWriter, r *http.Request) {
	if auth.IsAuthenticated(r) {
		http.Redirect(w, r, auth.RouteDashboard, http.StatusSeeOther)
		return
	}
	data := web.PageData{Title: "Sign in", Page: "login", Error: r.URL.Query().Get("error")}
	if r.URL.Query().Get("registered") != "" {
		data.Notice = "Registration submitted. You can sign in once an administrator approves it."
	}
	c.Renderer.Render(w, "login", data)
}

// RegisterPage handles GET /register
func (c *Console) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if auth.IsAuthenticated(r) {
		http.Redirect(w, r, auth.RouteDashboard, http.StatusSeeOther)
		return
	}
	c.Renderer.Render(w, "register", web.PageData{
		Title: "Request access",
		Page:  "register",
		Error: r.URL.Query().Get("error"),
	})
}

// Root sends / to the dashboard; the guard takes it from there
func Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, auth.RouteDashboard, http.StatusSeeOther)
}

// Overview handles GET /dashboard?range=
func (c *Console) Overview(w http.ResponseWriter, r *http.Request) {
	rng, err := chart.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		rng = chart.DefaultRange
	}
	c.renderPage(w, r, dashboard.PageOverview, rng)
}

// Feeds handles GET /dashboard/feeds
func (c *Console) Feeds(w http.ResponseWriter, r *http.Request) {
	c.renderPage(w, r, dashboard.PageFeeds, chart.DefaultRange)
}

// History handles GET /dashboard/history
func (c *Console) History(w http.ResponseWriter, r *http.Request) {
	c.renderPage(w, r, dashboard.PageHistory, chart.DefaultRange)
}

// Admin handles GET /dashboard/admin
func (c *Console) Admin(w http.ResponseWriter, r *http.Request) {
	c.renderPage(w, r, dashboard.PageAdmin, chart.DefaultRange)
}

func (c *Console) renderPage(w http.ResponseWriter, r *http.Request, page dashboard.Page, rng chart.Range) {
	snap, err := c.load(r.Context(), r, page, rng)
	if err != nil {
		c.expire(w, r)
		http.Redirect(w, r, auth.RouteLogin+"?error="+url.QueryEscape("Your session has expired. Please sign in again."), http.StatusSeeOther)
		return
	}
	c.Renderer.Render(w, string(page), web.PageData{
		Title:    pageTitles[page],
		Page:     string(page),
		Session:  session.FromContext(r.Context()),
		Snapshot: snap,
	})
}
