package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roadguard/internal/chart"
	"roadguard/internal/dashboard"
	"roadguard/internal/models"
	"roadguard/internal/session"
)

func render(t *testing.T, name string, data PageData) string {
	t.Helper()
	r, err := NewRenderer(time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	r.Render(rr, name, data)
	if rr.Code != http.StatusOK {
		t.Fatalf("render %s: status %d: %s", name, rr.Code, rr.Body.String())
	}
	return rr.Body.String()
}

func TestRenderLoginWithoutSession(t *testing.T) {
	body := render(t, "login", PageData{Title: "Sign in", Error: "Incorrect email or password"})
	if !strings.Contains(body, "Incorrect email or password") {
		t.Error("flash error missing")
	}
	if strings.Contains(body, "console.js") {
		t.Error("login page should not open the live socket")
	}
}

func TestRenderRegisterHidesAdminRole(t *testing.T) {
	body := render(t, "register", PageData{Title: "Register"})
	if strings.Contains(body, `value="admin"`) {
		t.Error("admin must not be self-service")
	}
	if !strings.Contains(body, `value="hospital"`) {
		t.Error("hospital role missing")
	}
}

func TestRenderOverviewEmptyState(t *testing.T) {
	stats := chart.Stats{}
	body := render(t, "overview", PageData{
		Title:   "Overview",
		Page:    "overview",
		Session: &session.Session{Email: "ops@example.com", Role: models.RolePolice},
		Snapshot: dashboard.Snapshot{
			Page:  dashboard.PageOverview,
			Stats: &stats,
			Range: chart.Range24h,
			Title: chart.Range24h.Title(),
			Chart: chart.Bucketize(nil, chart.Range24h, time.Now()),
		},
	})
	for _, want := range []string{"No alerts generated yet.", "Accident Trends (24h)", "No cameras available", "console.js"} {
		if !strings.Contains(body, want) {
			t.Errorf("overview missing %q", want)
		}
	}
	if strings.Contains(body, "/dashboard/admin") {
		t.Error("non-admin should not see the admin link")
	}
}

func TestRenderOverviewRows(t *testing.T) {
	stats := chart.Stats{Alerts: 1}
	ts := models.Timestamp{Time: time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)}
	body := render(t, "overview", PageData{
		Page:    "overview",
		Session: &session.Session{Email: "root@example.com", Role: models.RoleAdmin},
		Snapshot: dashboard.Snapshot{
			Stats: &stats,
			Range: chart.Range7d,
			Alerts: []models.Alert{{
				ID: "a1", Location: "M-2 <north>", Details: "Collision", Time: ts,
				NotifiedHospitals: []string{"CMH", "PIMS"},
			}},
		},
	})
	if !strings.Contains(body, "M-2 &lt;north&gt;") {
		t.Error("location must be escaped")
	}
	if !strings.Contains(body, "CMH, PIMS") {
		t.Error("hospitals missing")
	}
	if !strings.Contains(body, "Mar 31, 2026 12:00") {
		t.Error("alert time missing")
	}
	if !strings.Contains(body, "/dashboard/admin") {
		t.Error("admin should see the admin link")
	}
	if !strings.Contains(body, `value="7d" selected`) {
		t.Error("range selector should keep the current range")
	}
}

func TestRenderAdminApprovalSelect(t *testing.T) {
	body := render(t, "admin", PageData{
		Page:    "admin",
		Session: &session.Session{Email: "root@example.com", Role: models.RoleAdmin},
		Snapshot: dashboard.Snapshot{
			Users: []models.User{{ID: "u1", Name: "Ayesha", Email: "a@example.com", Role: models.RoleHospital, ApprovalStatus: models.ApprovalPending}},
		},
	})
	if !strings.Contains(body, `value="pending" selected`) {
		t.Error("current approval status should be selected")
	}
	if !strings.Contains(body, "No cameras found.") {
		t.Error("camera empty state missing")
	}
}

func TestBarHeight(t *testing.T) {
	if barHeight(3, 0) != 0 || barHeight(1, 4) != 25 || barHeight(4, 4) != 100 {
		t.Error("barHeight percentages wrong")
	}
	if maxCount([]chart.Bar{{Count: 2}, {Count: 5}, {Count: 1}}) != 5 {
		t.Error("maxCount wrong")
	}
}

func TestStaticAssets(t *testing.T) {
	srv := httptest.NewServer(Static())
	defer srv.Close()
	for _, name := range []string{"console.js", "console.css"} {
		resp, err := http.Get(srv.URL + "/static/" + name)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", name, resp.StatusCode)
		}
	}
}
