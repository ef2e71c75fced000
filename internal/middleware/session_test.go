package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/unlinked/internal/model"
	"github.com/hitoshi/unlinked/internal/session"
)

// --- モック定義 ---

type mockSessionGate struct {
	validateFn func(ctx context.Context, id string) (*session.Validation, error)
}

func (m *mockSessionGate) CookieName() string { return "auth_session" }

func (m *mockSessionGate) Cookie(s *model.Session) *http.Cookie {
	return &http.Cookie{Name: "auth_session", Value: s.ID, Path: "/", HttpOnly: true}
}

func (m *mockSessionGate) BlankCookie() *http.Cookie {
	return &http.Cookie{Name: "auth_session", Value: "", Path: "/", MaxAge: -1, HttpOnly: true}
}

func (m *mockSessionGate) Validate(ctx context.Context, id string) (*session.Validation, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, id)
	}
	return &session.Validation{ClearCookie: true}, nil
}

type mockAccountFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Account, error)
}

func (m *mockAccountFinder) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// --- ヘルパー ---

func validGate(fresh bool) *mockSessionGate {
	return &mockSessionGate{
		validateFn: func(ctx context.Context, id string) (*session.Validation, error) {
			if id != "valid-session-id" {
				return &session.Validation{ClearCookie: true}, nil
			}
			return &session.Validation{Valid: true, Session: &model.Session{
				ID:        id,
				AccountID: "account-123",
				ExpiresAt: time.Now().Add(time.Hour),
				Fresh:     fresh,
			}}, nil
		},
	}
}

func existingAccount() *mockAccountFinder {
	return &mockAccountFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			if id == "account-123" {
				return &model.Account{ID: id, Email: "a@x.com", Role: model.RoleConsultant, AuthType: model.AuthTypeEmail}, nil
			}
			return nil, nil
		},
	}
}

func findSetCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func serveWithCookie(h http.Handler, value string) *http.Response {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	if value != "" {
		req.AddCookie(&http.Cookie{Name: "auth_session", Value: value})
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func mustNotCall(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})
}

// --- テスト ---

func TestSessionMiddleware_ValidSession_InjectsAuth(t *testing.T) {
	mw := NewSessionMiddleware(validGate(false), existingAccount())

	var captured *AuthContext
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ok := AuthFromContext(r.Context())
		if !ok {
			t.Error("expected auth context")
		}
		captured = auth
		w.WriteHeader(http.StatusOK)
	}))

	resp := serveWithCookie(handler, "valid-session-id")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if captured == nil || captured.Account.ID != "account-123" || captured.Session.ID != "valid-session-id" {
		t.Errorf("auth = %+v", captured)
	}
	if findSetCookie(resp, "auth_session") != nil {
		t.Error("non-fresh session should not re-send cookie")
	}
}

func TestSessionMiddleware_FreshSession_ResendsCookie(t *testing.T) {
	mw := NewSessionMiddleware(validGate(true), existingAccount())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	resp := serveWithCookie(handler, "valid-session-id")
	c := findSetCookie(resp, "auth_session")
	if c == nil || c.Value != "valid-session-id" {
		t.Errorf("expected session cookie to be re-sent, got %+v", c)
	}
}

func TestSessionMiddleware_NoSessionCookie_Returns401(t *testing.T) {
	handler := NewSessionMiddleware(validGate(false), existingAccount())(mustNotCall(t))

	resp := serveWithCookie(handler, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_InvalidSession_ClearsCookie(t *testing.T) {
	handler := NewSessionMiddleware(validGate(false), existingAccount())(mustNotCall(t))

	resp := serveWithCookie(handler, "expired-session-id")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	c := findSetCookie(resp, "auth_session")
	if c == nil || c.Value != "" || c.MaxAge >= 0 {
		t.Errorf("expected blank cookie, got %+v", c)
	}
}

func TestSessionMiddleware_StoreError_Returns500(t *testing.T) {
	gate := &mockSessionGate{
		validateFn: func(ctx context.Context, id string) (*session.Validation, error) {
			return nil, errors.New("database connection error")
		},
	}
	handler := NewSessionMiddleware(gate, existingAccount())(mustNotCall(t))

	resp := serveWithCookie(handler, "valid-session-id")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestSessionMiddleware_AccountMissing_Returns401(t *testing.T) {
	handler := NewSessionMiddleware(validGate(false), &mockAccountFinder{})(mustNotCall(t))

	resp := serveWithCookie(handler, "valid-session-id")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthFromContext_NoValue(t *testing.T) {
	if _, ok := AuthFromContext(context.Background()); ok {
		t.Error("expected no auth in empty context")
	}
}

func TestContextWithAuth_RoundTrip(t *testing.T) {
	auth := &AuthContext{Account: &model.Account{ID: "a"}, Session: &model.Session{ID: "s"}}
	got, ok := AuthFromContext(ContextWithAuth(context.Background(), auth))
	if !ok || got != auth {
		t.Errorf("AuthFromContext() = %v, %v", got, ok)
	}
}
