package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"roadguard/internal/api"
	"roadguard/internal/events"
	"roadguard/internal/session"
)

func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			r.ParseForm()
			if r.PostForm.Get("password") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"detail":"Incorrect email or password"}`)
				return
			}
			role := "police"
			if strings.HasPrefix(r.PostForm.Get("username"), "admin") {
				role = "admin"
			}
			json.NewEncoder(w).Encode(map[string]string{
				"access_token": "upstream-token", "token_type": "bearer", "role": role,
			})
		case "/register":
			io.WriteString(w, `{"message":"Registration submitted; awaiting approval"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newHandlers(t *testing.T) (*Handlers, *[]events.Event) {
	t.Helper()
	conn := setupTestDB(t)
	sealer, _ := session.NewSealer("test-secret")
	var published []events.Event
	bus := events.NewBus()
	bus.Subscribe(func(e events.Event) { published = append(published, e) })
	return &Handlers{
		Manager: &Manager{DB: conn, Sealer: sealer, TTL: time.Hour},
		API:     api.New(fakeUpstream(t).URL, nil),
		Bus:     bus,
	}, &published
}

func loginForm(email, password string) *http.Request {
	form := url.Values{"email": {email}, "password": {password}}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestLoginSetsCookieAndPersistsSession(t *testing.T) {
	h, published := newHandlers(t)

	w := httptest.NewRecorder()
	h.Login(w, loginForm("ops@example.com", "secret"))

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != RouteDashboard {
		t.Fatalf("login: %d %q", w.Code, w.Header().Get("Location"))
	}
	cookie := sessionCookie(t, w)
	if !cookie.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}

	store, err := h.Manager.StoreFor(cookie.Value)
	if err != nil {
		t.Fatal(err)
	}
	s := store.Current()
	if s == nil || s.Token != "upstream-token" || s.Email != "ops@example.com" || s.Role != "police" {
		t.Errorf("stored session = %+v", s)
	}

	var stored string
	h.Manager.DB.QueryRow(`SELECT token FROM console_sessions WHERE id = ?`, cookie.Value).Scan(&stored)
	if stored == "upstream-token" {
		t.Error("token should be sealed at rest")
	}

	if len(*published) != 1 || (*published)[0].Type != events.SessionLogin {
		t.Errorf("events = %+v", *published)
	}
}

func TestLoginFailureRedirectsWithMessage(t *testing.T) {
	h, _ := newHandlers(t)

	w := httptest.NewRecorder()
	h.Login(w, loginForm("ops@example.com", "wrong"))

	loc := w.Header().Get("Location")
	if w.Code != http.StatusSeeOther || !strings.HasPrefix(loc, "/login?error=") {
		t.Fatalf("login: %d %q", w.Code, loc)
	}
	if !strings.Contains(loc, "Incorrect") {
		t.Errorf("location should carry the upstream detail: %q", loc)
	}
}

func TestLoginJSON(t *testing.T) {
	h, _ := newHandlers(t)

	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"admin@example.com","password":"secret"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Login(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["role"] != "admin" {
		t.Errorf("resp = %v", resp)
	}

	r = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"admin@example.com","password":"nope"}`))
	r.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	h.Login(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d", w.Code)
	}
}

func TestLoadSessionThenLogout(t *testing.T) {
	h, _ := newHandlers(t)
	var loggedOut string
	h.OnLogout = func(id string) { loggedOut = id }

	w := httptest.NewRecorder()
	h.Login(w, loginForm("ops@example.com", "secret"))
	cookie := sessionCookie(t, w)

	var seen *session.Session
	loaded := h.Manager.LoadSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = session.FromContext(r.Context())
		if seen != nil && ConsoleID(r.Context()) != cookie.Value {
			t.Errorf("console id = %q", ConsoleID(r.Context()))
		}
	}))
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	r.AddCookie(cookie)
	loaded.ServeHTTP(httptest.NewRecorder(), r)
	if seen == nil || seen.Email != "ops@example.com" {
		t.Fatalf("session not loaded: %+v", seen)
	}

	r = httptest.NewRequest(http.MethodPost, "/logout", nil)
	r.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.Logout(w, r)
	if w.Header().Get("Location") != RouteLogin {
		t.Errorf("logout redirect = %q", w.Header().Get("Location"))
	}
	if loggedOut != cookie.Value {
		t.Error("OnLogout not called with the console id")
	}

	seen = nil
	r = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	r.AddCookie(cookie)
	loaded.ServeHTTP(httptest.NewRecorder(), r)
	if seen != nil {
		t.Error("session should be gone after logout")
	}
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	h, _ := newHandlers(t)

	body := `{"name":"Eve","email":"eve@example.com","password":"pw","role":"admin"}`
	r := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Register(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}

	body = `{"name":"Hana","email":"hana@example.com","password":"pw","role":"hospital"}`
	r = httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	h.Register(w, r)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "awaiting approval") {
		t.Errorf("register: %d %s", w.Code, w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
	w := httptest.NewRecorder()
	Status(w, r)
	if !strings.Contains(w.Body.String(), `"authenticated":false`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
