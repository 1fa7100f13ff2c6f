package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"srdash/artifacts"
	"srdash/enhance"
	"srdash/pages"
	"srdash/simulation"
)

// headerAuth admits requests carrying X-Test-Auth.
type headerAuth struct{}

func (headerAuth) ok(r *http.Request) bool { return r.Header.Get("X-Test-Auth") != "" }

func (a headerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.ok(r) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a headerAuth) RedirectMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.ok(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (headerAuth) LoginHandler() http.HandlerFunc { return HandleLoginPage }
func (headerAuth) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {}
}

func newTestServer(t *testing.T, auth AuthProvider) *Server {
	t.Helper()
	mgr, err := pages.NewManager(pages.Config{Pipelines: simulation.DefaultPipelines()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mgr.Close)

	api := NewDashboardAPI(DashboardAPIConfig{Manager: mgr, Store: artifacts.NewStore(0)})
	b := NewWebSocketBroadcaster(BroadcasterConfig{InitialState: InitialState(mgr, nil)})
	return NewServer(DefaultServerConfig(), api, b, auth, nil)
}

func serve(s *Server, method, path string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authed {
		req.Header.Set("X-Test-Auth", "1")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerOpenRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/", http.StatusOK},
		{"/dashboard", http.StatusOK},
		{"/api/status", http.StatusOK},
		{"/api/pages", http.StatusOK},
		{"/static/css/dashboard.css", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := serve(s, http.MethodGet, tt.path, false); rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}

	// Login is only routed with auth configured.
	if rec := serve(s, http.MethodGet, "/login", false); rec.Code != http.StatusNotFound {
		t.Errorf("GET /login without auth = %d, want 404", rec.Code)
	}
}

func TestServerProtectedRoutes(t *testing.T) {
	s := newTestServer(t, headerAuth{})

	if rec := serve(s, http.MethodGet, "/api/status", false); rec.Code != http.StatusUnauthorized {
		t.Errorf("api without session = %d, want 401", rec.Code)
	}
	if rec := serve(s, http.MethodGet, "/ws", false); rec.Code != http.StatusUnauthorized {
		t.Errorf("ws without session = %d, want 401", rec.Code)
	}
	rec := serve(s, http.MethodGet, "/", false)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Errorf("dashboard without session = %d %q", rec.Code, rec.Header().Get("Location"))
	}

	if rec := serve(s, http.MethodGet, "/api/status", true); rec.Code != http.StatusOK {
		t.Errorf("api with session = %d", rec.Code)
	}
	if rec := serve(s, http.MethodGet, "/", true); rec.Code != http.StatusOK {
		t.Errorf("dashboard with session = %d", rec.Code)
	}

	// Assets, health and login stay public.
	for _, p := range []string{"/health", "/static/js/dashboard.js", "/login"} {
		if rec := serve(s, http.MethodGet, p, false); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", p, rec.Code)
		}
	}
}

func TestServerAddr(t *testing.T) {
	s := newTestServer(t, nil)
	if s.Addr() != "localhost:3000" {
		t.Errorf("Addr() = %q", s.Addr())
	}
}

func TestServerShutdownBeforeStart(t *testing.T) {
	s := newTestServer(t, nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestInitialState(t *testing.T) {
	mgr, err := pages.NewManager(pages.Config{Pipelines: simulation.DefaultPipelines()})
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	msg := InitialState(mgr, nil)()
	if msg.Type != MessageTypeInitial {
		t.Fatalf("type = %q", msg.Type)
	}
	data := msg.Data.(InitialData)
	if len(data.Pages) != 4 {
		t.Errorf("pages = %d, want 4", len(data.Pages))
	}
	if data.Backend.Status != enhance.StatusUnknown {
		t.Errorf("backend = %q, want unknown", data.Backend.Status)
	}

	msg = InitialState(mgr, stubBackend{enhance.HealthState{Status: enhance.StatusOffline}})()
	if msg.Data.(InitialData).Backend.Status != enhance.StatusOffline {
		t.Error("backend state not taken from provider")
	}
}

func TestHealthEndpointBody(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, http.MethodGet, "/health", false)
	var body map[string]string
	if err := json.NewDecoder(strings.NewReader(rec.Body.String())).Decode(&body); err != nil || body["status"] != "ok" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServerAPIMiddlewareSkipsWebSocket(t *testing.T) {
	mgr, err := pages.NewManager(pages.Config{Pipelines: simulation.DefaultPipelines()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mgr.Close)

	cfg := DefaultServerConfig()
	cfg.APIMiddleware = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	api := NewDashboardAPI(DashboardAPIConfig{Manager: mgr, Store: artifacts.NewStore(0)})
	s := NewServer(cfg, api, NewWebSocketBroadcaster(BroadcasterConfig{}), nil, nil)

	if rec := serve(s, http.MethodGet, "/api/status", false); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/api/status = %d, want 503 from middleware", rec.Code)
	}
	// Not an upgrade request, so the broadcaster itself rejects it.
	if rec := serve(s, http.MethodGet, "/ws", false); rec.Code == http.StatusServiceUnavailable {
		t.Error("/ws went through the API middleware")
	}
}
