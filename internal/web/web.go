// Package web holds the console's embedded templates and static assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"roadguard/internal/chart"
	"roadguard/internal/dashboard"
	"roadguard/internal/models"
	"roadguard/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Pages rendered inside the layout
var pages = []string{"login", "register", "overview", "feeds", "history", "admin"}

// PageData is what every template receives
type PageData struct {
	Title    string
	Page     string
	Session  *session.Session
	Snapshot dashboard.Snapshot
	Ranges   []chart.Range
	Roles    []models.Role
	Statuses []models.ApprovalStatus
	Error    string
	Notice   string
}

// Renderer executes page templates
type Renderer struct {
	pages    map[string]*template.Template
	location *time.Location
}

// NewRenderer parses every page against the shared layout. Times are shown
// in loc.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	r := &Renderer{pages: make(map[string]*template.Template), location: loc}
	funcs := template.FuncMap{
		"when":      r.when,
		"join":      strings.Join,
		"barHeight": barHeight,
		"maxCount":  maxCount,
		"activeCls": func(active bool, yes, no string) string {
			if active {
				return yes
			}
			return no
		},
	}
	for _, name := range pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render writes page name. Output is buffered so a template error still
// yields a clean 500.
func (r *Renderer) Render(w http.ResponseWriter, name string, data PageData) {
	t, ok := r.pages[name]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	if data.Ranges == nil {
		data.Ranges = chart.Ranges
	}
	if data.Roles == nil {
		data.Roles = models.Roles
	}
	if data.Statuses == nil {
		data.Statuses = []models.ApprovalStatus{models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected}
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Printf("❌ Failed to render %s: %v", name, err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// Static serves /static/ from the embedded assets
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

func (r *Renderer) when(ts models.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.In(r.location).Format("Jan 2, 2006 15:04")
}

func maxCount(bars []chart.Bar) int {
	m := 0
	for _, b := range bars {
		if b.Count > m {
			m = b.Count
		}
	}
	return m
}

// barHeight is a bar's height as a percentage of the tallest one
func barHeight(count, max int) int {
	if max <= 0 {
		return 0
	}
	return count * 100 / max
}
