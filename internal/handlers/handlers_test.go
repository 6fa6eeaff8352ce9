package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"roadguard/internal/api"
	"roadguard/internal/auth"
	"roadguard/internal/dashboard"
	"roadguard/internal/db"
	"roadguard/internal/events"
	"roadguard/internal/live"
	"roadguard/internal/models"
	"roadguard/internal/session"
	"roadguard/internal/web"
)

// upstream is an in-memory stand-in for the accident API
type upstream struct {
	mu      sync.Mutex
	alerts  []models.Alert
	streams []models.Stream
	calls   []string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, r.Method+" "+r.URL.Path)

	if r.Header.Get("Authorization") == "Bearer expired" {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Could not validate credentials"}`)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/alerts/":
		json.NewEncoder(w).Encode(u.alerts)
	case r.Method == http.MethodDelete && r.URL.Path == "/alerts/all/delete":
		u.alerts = nil
		io.WriteString(w, `{"message":"All alerts deleted"}`)
	case r.Method == http.MethodDelete && r.URL.Path == "/alerts/broken":
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"database unavailable"}`)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/alerts/"):
		id := strings.TrimPrefix(r.URL.Path, "/alerts/")
		kept := u.alerts[:0]
		for _, a := range u.alerts {
			if a.ID != id {
				kept = append(kept, a)
			}
		}
		u.alerts = kept
		io.WriteString(w, `{"message":"Alert deleted"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/alerts/":
		var in models.NewAlert
		json.NewDecoder(r.Body).Decode(&in)
		a := models.Alert{ID: "new", Location: in.Location, Details: in.Details, Time: models.Timestamp{Time: time.Now()}}
		u.alerts = append([]models.Alert{a}, u.alerts...)
		json.NewEncoder(w).Encode(a)
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/detection/start/"):
		io.WriteString(w, `{"message":"Detection started"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/streams/" && u.streams != nil:
		json.NewEncoder(w).Encode(u.streams)
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/streams/") && strings.HasSuffix(r.URL.Path, "/stop"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/streams/"), "/stop")
		for i := range u.streams {
			if u.streams[i].ID == id {
				u.streams[i].IsActive = false
			}
		}
		io.WriteString(w, `{"message":"Stream stopped"}`)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/streams/"):
		id := strings.TrimPrefix(r.URL.Path, "/streams/")
		kept := u.streams[:0]
		for _, st := range u.streams {
			if st.ID != id {
				kept = append(kept, st)
			}
		}
		u.streams = kept
		io.WriteString(w, `{"message":"Stream deleted"}`)
	case r.Method == http.MethodGet:
		io.WriteString(w, `[]`)
	default:
		http.NotFound(w, r)
	}
}

func (u *upstream) called(call string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, c := range u.calls {
		if c == call {
			return true
		}
	}
	return false
}

type testConsole struct {
	console   *Console
	handler   http.Handler
	upstream  *upstream
	published *[]events.Event
}

func setupConsole(t *testing.T) *testConsole {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatal(err)
	}

	up := &upstream{alerts: []models.Alert{
		{ID: "a1", Location: "M-2 Motorway", Details: "Two-car collision", Time: models.Timestamp{Time: time.Now().Add(-time.Hour)}},
		{ID: "a2", Location: "Kashmir Highway", Details: "Overturned truck", Time: models.Timestamp{Time: time.Now().Add(-2 * time.Hour)}},
	}}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	sealer, err := session.NewSealer("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	renderer, err := web.NewRenderer(time.UTC)
	if err != nil {
		t.Fatal(err)
	}

	var published []events.Event
	var mu sync.Mutex
	bus := events.NewBus()
	bus.Subscribe(func(e events.Event) {
		mu.Lock()
		published = append(published, e)
		mu.Unlock()
	})

	c := &Console{
		API:      api.New(srv.URL, nil),
		Manager:  &auth.Manager{DB: conn, Sealer: sealer, TTL: time.Hour},
		Mounts:   dashboard.NewMounts(),
		Bus:      bus,
		Recorder: events.NewRecorder(ActivitySize),
		Tokens:   auth.NewActionTokenService(conn),
		Renderer: renderer,
		Location: time.UTC,
	}
	c.Recorder.Attach(bus)
	t.Cleanup(c.Mounts.StopAll)

	mux := http.NewServeMux()
	RegisterAuthRoutes(mux, c, &auth.Handlers{Manager: c.Manager, API: c.API, Bus: bus}, nil)
	RegisterPageRoutes(mux, c)
	RegisterAPIRoutes(mux, c)

	return &testConsole{
		console:   c,
		handler:   c.Manager.LoadSession(mux),
		upstream:  up,
		published: &published,
	}
}

// login stores a session directly and returns its cookie
func (tc *testConsole) login(t *testing.T, token string, role models.Role, email string) *http.Cookie {
	t.Helper()
	id := session.NewSessionID()
	store, err := tc.console.Manager.StoreFor(id)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Login(token, role, email); err != nil {
		t.Fatal(err)
	}
	return &http.Cookie{Name: auth.CookieName, Value: id}
}

func (tc *testConsole) do(t *testing.T, cookie *http.Cookie, method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	}
	r := httptest.NewRequest(method, path, rd)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	if cookie != nil {
		r.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	tc.handler.ServeHTTP(w, r)
	return w
}

func (tc *testConsole) confirm(t *testing.T, cookie *http.Cookie, action, target string) string {
	t.Helper()
	w := tc.do(t, cookie, http.MethodPost, "/api/confirm", map[string]string{"action": action, "target": target})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm %s: expected 200, got %d: %s", action, w.Code, w.Body.String())
	}
	var tok auth.ActionToken
	if err := json.NewDecoder(w.Body).Decode(&tok); err != nil {
		t.Fatal(err)
	}
	return tok.Token
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (%s)", err, w.Body.String())
	}
	return out
}

func TestOverviewListsAlerts(t *testing.T) {
	tc := setupConsole(t)
	cookie := tc.login(t, "tok", models.RolePolice, "ops@example.com")

	w := tc.do(t, cookie, http.MethodGet, "/dashboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"M-2 Motorway", "Overturned truck"} {
		if !strings.Contains(body, want) {
			t.Errorf("overview missing %q", want)
		}
	}
	if strings.Contains(body, "No alerts generated yet.") {
		t.Error("empty state shown alongside alerts")
	}
}

func TestDeleteAllAlertsThenEmptyState(t *testing.T) {
	tc := setupConsole(t)
	cookie := tc.login(t, "tok", models.RoleAdmin, "admin@example.com")

	token := tc.confirm(t, cookie, "delete all alerts", "")
	w := tc.do(t, cookie, http.MethodDelete, "/api/admin/alerts", nil, auth.ActionTokenHeader, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !tc.upstream.called("DELETE /alerts/all/delete") {
		t.Fatal("bulk delete never reached the API")
	}

	w = tc.do(t, cookie, http.MethodGet, "/dashboard", nil)
	if !strings.Contains(w.Body.String(), "No alerts generated yet.") {
		t.Error("expected the empty state after deleting every alert")
	}

	var cleared bool
	for _, e := range *tc.published {
		if e.Type == events.AlertsCleared && e.Actor == "admin@example.com" {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected an alerts_cleared event")
	}
}

func TestDeleteWithoutTokenNeedsConfirmation(t *testing.T) {
	tc := setupConsole(t)
	cookie := tc.login(t, "tok", models.RolePolice, "ops@example.com")

	w := tc.do(t, cookie, http.MethodDelete, "/api/alerts/a1", nil)
	if w.Code != http.StatusPreconditionRequired {
		t.Fatalf("expected 428, got %d", w.Code)
	}
	if tc.upstream.called("DELETE /alerts/a1") {
		t.Error("unconfirmed delete reached the API")
	}
	if got := decodeBody(t, w)["error"]; got != "Failed to delete alert" {
		t.Errorf("error = %v", got)
	}
}

func TestTokenIsBoundToTarget(t *testing.T) {
	tc := setupConsole(t)
	cookie := tc.login(t, "tok", models.RolePolice, "ops@example.com")

	token := tc.confirm(t, cookie, "delete alert", "a2")
	w := tc.do(t, cookie, http.MethodDelete, "/api/alerts/a1", nil, auth.ActionTokenHeader, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a token issued for another alert, got %d", w.Code)
	}
	if tc.upstream.called("DELETE /alerts/a1") {
		t.Error("mismatched token reached the API")
	}
}

func TestFailedMutationNamesAction(t *testing.T) {
	tc := setupConsole(t)
	cookie := tc.login(t, "tok", models.RolePolice, "ops@example.com")

	token := tc.confirm(t, cookie, "delete alert", "broken")
	w := tc.do(t, cookie, http.MethodDelete, "/api/alerts/broken", nil, auth.ActionTokenHeader, token)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] != "Failed to delete alert" {
		t.Errorf("error = %v", body["error"])
	}
	if detail, _ := body["detail"].(string); !strings.Contains(detail, "database unavailable") {
		t.Errorf("detail = %q", detail)
	}
}

func TestAdminRoutesRejectOtherRoles(t *testing.T) {
	tc := setupConsole(t)
	cookie := tc.login(t, "tok", models.RoleHospital, "er@example.com")

	w := tc.do(t, cookie, http.MethodDelete, "/api/admin/alerts", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("api: expected 403, got %d", w.Code)
	}

	w = tc.do(t, cookie, http.MethodGet, "/dashboard/admin", nil)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != auth.RouteDashboard {
		t.Errorf("page: expected redirect to dashboard, got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestPagesRequireSession(t *testing.T) {
	tc := setupConsole(t)

	w := tc.do(t, nil, http.MethodGet, "/dashboard/feeds", nil)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != auth.RouteLogin {
		t.Errorf("expected redirect to login, got %d %q", w.Code, w.Header().Get("Location"))
	}
	w = tc.do(t, nil, http.MethodGet, "/api/snapshot?page=feeds", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRejectedTokenEndsSession(t *testing.T) {
	tc := setupConsole(t)
	cookie := tc.login(t, "expired", models.RolePolice, "ops@example.com")

	w := tc.do(t, cookie, http.MethodGet, "/dashboard", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, auth.RouteLogin+"?error=") {
		t.Errorf("Location = %q", loc)
	}

	// The stored session is gone, so the next request is anonymous
	w = tc.do(t, cookie, http.MethodGet, "/dashboard", nil)
	if w.Header().Get("Location") != auth.RouteLogin {
		t.Errorf("expected plain login redirect, got %q", w.Header().Get("Location"))
	}
}

func TestCreateAlertAndToggleDetection(t *testing.T) {
	tc := setupConsole(t)
	cookie := tc.login(t, "tok", models.RolePolice, "ops@example.com")

	w := tc.do(t, cookie, http.MethodPost, "/api/alerts", models.NewAlert{Location: "GT Road", Details: "Bus fire"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	w = tc.do(t, cookie, http.MethodPost, "/api/alerts", models.NewAlert{Location: "GT Road"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing details: expected 400, got %d", w.Code)
	}

	w = tc.do(t, cookie, http.MethodPost, "/api/cameras/c1/detection", map[string]bool{"active": false})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle: expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["active"] != true || body["message"] != "Detection started" {
		t.Errorf("toggle body = %v", body)
	}
}

func TestSnapshotAndChart(t *testing.T) {
	tc := setupConsole(t)
	cookie := tc.login(t, "tok", models.RolePolice, "ops@example.com")

	w := tc.do(t, cookie, http.MethodGet, "/api/snapshot?page=overview&range=7d", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap dashboard.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Alerts) != 2 || len(snap.Chart) != 7 {
		t.Errorf("alerts=%d bars=%d", len(snap.Alerts), len(snap.Chart))
	}

	w = tc.do(t, cookie, http.MethodGet, "/api/snapshot?page=admin", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("admin snapshot for police: expected 403, got %d", w.Code)
	}
	w = tc.do(t, cookie, http.MethodGet, "/api/chart?range=century", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad range: expected 400, got %d", w.Code)
	}
}

func TestUpdateApprovalValidatesStatus(t *testing.T) {
	tc := setupConsole(t)
	cookie := tc.login(t, "tok", models.RoleAdmin, "admin@example.com")

	w := tc.do(t, cookie, http.MethodPatch, "/api/admin/users/u1/approval", map[string]string{"approval_status": "maybe"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestEndSessionFromLiveSocket(t *testing.T) {
	tc := setupConsole(t)
	cookie := tc.login(t, "tok", models.RolePolice, "ops@example.com")
	hub := live.NewHub(tc.console.Mounts, tc.console.Bus, tc.console.Recorder)
	RegisterLiveRoutes(http.NewServeMux(), tc.console, hub)

	hub.Expire(cookie.Value)

	w := tc.do(t, cookie, http.MethodGet, "/dashboard", nil)
	if w.Code != http.StatusSeeOther || !strings.HasPrefix(w.Header().Get("Location"), auth.RouteLogin) {
		t.Errorf("expected a redirect to login after the socket expired the session, got %d %q", w.Code, w.Header().Get("Location"))
	}
}
