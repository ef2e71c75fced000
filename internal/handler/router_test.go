package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/unlinked/internal/middleware"
	"github.com/hitoshi/unlinked/internal/model"
	"github.com/hitoshi/unlinked/internal/session"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

type mockAccounts struct {
	accounts map[string]*model.Account
}

func (m *mockAccounts) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return m.accounts[id], nil
}

// sessionsFor はセッションIDからアカウントIDへの対応で検証するmockSessionsを返す。
func sessionsFor(owners map[string]string) *mockSessions {
	return &mockSessions{
		validateFn: func(ctx context.Context, id string) (*session.Validation, error) {
			accountID, ok := owners[id]
			if !ok {
				return &session.Validation{ClearCookie: true}, nil
			}
			return &session.Validation{Valid: true, Session: &model.Session{
				ID:        id,
				AccountID: accountID,
				ExpiresAt: time.Now().Add(time.Hour),
			}}, nil
		},
	}
}

func newTestRouter(deps *RouterDeps) http.Handler {
	if deps.AuthService == nil {
		deps.AuthService = &mockAuthService{}
	}
	if deps.Sessions == nil {
		deps.Sessions = &mockSessions{}
	}
	if deps.Accounts == nil {
		deps.Accounts = &mockAccounts{}
	}
	if deps.Handshakes == nil {
		deps.Handshakes = &mockHandshakes{}
	}
	return NewRouter(deps)
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
	}{
		{"database reachable", nil, http.StatusOK},
		{"database unreachable", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&RouterDeps{HealthChecker: &mockHealthChecker{err: tt.pingErr}})

			w := doRequest(router, http.MethodGet, "/health", "")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_MetricsMountedWhenProvided(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})

	router := newTestRouter(&RouterDeps{MetricsHandler: metricsHandler})
	if w := doRequest(router, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK || w.Body.String() != "# metrics" {
		t.Errorf("GET /metrics = %d %q", w.Code, w.Body.String())
	}

	router = newTestRouter(&RouterDeps{})
	if w := doRequest(router, http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without handler = %d, want 404", w.Code)
	}
}

func TestRouter_AuthRoutesRegistered(t *testing.T) {
	router := newTestRouter(&RouterDeps{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/auth/signup"},
		{http.MethodPost, "/api/v1/auth/login"},
		{http.MethodPost, "/api/v1/auth/verify-session"},
		{http.MethodGet, "/api/v1/auth/oauth/google"},
		{http.MethodGet, "/api/v1/auth/oauth/google/callback"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodGet, "/api/v1/auth/current-user"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := doRequest(router, tt.method, tt.path, "")
			if w.Code == http.StatusNotFound || w.Code == http.StatusMethodNotAllowed {
				t.Errorf("route not registered: status %d", w.Code)
			}
		})
	}
}

func TestRouter_ProtectedRoutesRequireSession(t *testing.T) {
	router := newTestRouter(&RouterDeps{})

	for _, path := range []string{"/api/v1/auth/logout", "/api/v1/auth/current-user"} {
		method := http.MethodGet
		if path == "/api/v1/auth/logout" {
			method = http.MethodPost
		}
		w := doRequest(router, method, path, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want 401", method, path, w.Code)
		}
	}
}

func TestRouter_ConsultantRoutes_RoleGate(t *testing.T) {
	accounts := &mockAccounts{accounts: map[string]*model.Account{
		"consultant": {ID: "consultant", Role: model.RoleConsultant},
		"pending":    {ID: "pending", Role: model.RolePending},
	}}
	sessions := sessionsFor(map[string]string{
		"consultant-session": "consultant",
		"pending-session":    "pending",
	})

	router := newTestRouter(&RouterDeps{
		Sessions: sessions,
		Accounts: accounts,
		ConsultantRoutes: func(r chi.Router) {
			r.Get("/profile", func(w http.ResponseWriter, r *http.Request) {
				ac, _ := middleware.AuthFromContext(r.Context())
				middleware.WriteMessage(w, http.StatusOK, ac.Account.ID)
			})
		},
	})

	tests := []struct {
		name       string
		cookie     string
		wantStatus int
	}{
		{"no session", "", http.StatusUnauthorized},
		{"unknown session", "forged", http.StatusUnauthorized},
		{"pending role", "pending-session", http.StatusForbidden},
		{"consultant role", "consultant-session", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/consultants/profile", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "auth_session", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRouter_ConsultantRoutesNotMountedByDefault(t *testing.T) {
	router := newTestRouter(&RouterDeps{})

	w := doRequest(router, http.MethodGet, "/api/v1/consultants/profile", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRouter_CrossOriginMutationRejected(t *testing.T) {
	router := newTestRouter(&RouterDeps{CORSAllowedOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestRouter_SecurityHeadersApplied(t *testing.T) {
	router := newTestRouter(&RouterDeps{})

	w := doRequest(router, http.MethodGet, "/health", "")

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}
