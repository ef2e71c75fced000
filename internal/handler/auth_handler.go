// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/unlinked/internal/auth"
	"github.com/hitoshi/unlinked/internal/middleware"
	"github.com/hitoshi/unlinked/internal/model"
	"github.com/hitoshi/unlinked/internal/oauth"
)

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 1 << 20

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.Result, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.Result, error)
	BeginOAuth(provider string, scopes []string) (*auth.OAuthStart, error)
	HandleCallback(ctx context.Context, provider, code, verifier string) (*auth.Result, error)
	VerifySession(ctx context.Context, sessionID string) (bool, error)
	Logout(ctx context.Context, sessionID string) error
}

// SessionCookies はセッションCookieを発行・破棄する。
type SessionCookies interface {
	Cookie(s *model.Session) *http.Cookie
	BlankCookie() *http.Cookie
}

// HandshakeVerifier はOAuthコールバックのハンドシェイクを検証する。
type HandshakeVerifier interface {
	ClearCookies(provider string) []*http.Cookie
	Complete(ctx context.Context, r *http.Request, provider string) (string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// ClientURL が設定されている場合、OAuthコールバック成功時にリダイレクトする
	ClientURL string
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service    AuthServiceInterface
	cookies    SessionCookies
	handshakes HandshakeVerifier
	config     AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookies SessionCookies, handshakes HandshakeVerifier, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:    service,
		cookies:    cookies,
		handshakes: handshakes,
		config:     config,
	}
}

// verifySessionRequest はセッション検証リクエストのボディ。
type verifySessionRequest struct {
	SessionID string `json:"sessionId"`
}

// userResponse は現在のアカウント情報のAPIレスポンス。
type userResponse struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Role          model.Role     `json:"role"`
	EmailVerified bool           `json:"emailVerified"`
	AuthType      model.AuthType `json:"authType"`
}

type currentUserResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

// Signup はメールアドレスによる新規登録を処理する。
// POST /api/v1/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var in auth.SignupInput
	if !decodeJSON(w, r, &in) {
		return
	}

	result, err := h.service.Signup(r.Context(), in)
	if err != nil {
		middleware.WriteError(w, r, err, nil)
		return
	}

	http.SetCookie(w, h.cookies.Cookie(result.Session))
	middleware.WriteMessage(w, http.StatusOK, "User registered successfully")
}

// Login はメールアドレスとパスワードによるログインを処理する。
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if !decodeJSON(w, r, &in) {
		return
	}

	result, err := h.service.Login(r.Context(), in)
	if err != nil {
		middleware.WriteError(w, r, err, nil)
		return
	}

	http.SetCookie(w, h.cookies.Cookie(result.Session))
	middleware.WriteMessage(w, http.StatusOK, "Logged in successfully")
}

// OAuthStart はOAuthフローを開始する。
// GET /api/v1/auth/oauth/{provider}?scope=...
func (h *AuthHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var scopes []string
	for _, s := range r.URL.Query()["scope"] {
		scopes = append(scopes, strings.Fields(s)...)
	}

	start, err := h.service.BeginOAuth(provider, scopes)
	if err != nil {
		middleware.WriteError(w, r, err, nil)
		return
	}

	for _, c := range start.Handshake.Cookies {
		http.SetCookie(w, c)
	}
	http.Redirect(w, r, start.URL, http.StatusFound)
}

// OAuthCallback はOAuthコールバックを処理する。
// GET /api/v1/auth/oauth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	// 1. ハンドシェイクCookieは検証結果にかかわらず破棄する
	for _, c := range h.handshakes.ClearCookies(provider) {
		http.SetCookie(w, c)
	}

	// 2. stateの検証（プロバイダーへの通信より前に行う）
	verifier, err := h.handshakes.Complete(r.Context(), r, provider)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidState) {
			slog.Warn("oauth state rejected",
				slog.String("provider", provider),
				slog.String("error", err.Error()),
			)
			err = model.NewInvalidStateError(err)
		}
		middleware.WriteError(w, r, err, h.cookies)
		return
	}

	// 3. プロバイダーが返したエラー
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		message := query.Get("error_description")
		if message == "" {
			message = providerErr
		}
		middleware.WriteError(w, r, model.NewOAuthProtocolError(message, errors.New(providerErr)), nil)
		return
	}

	code := query.Get("code")
	if code == "" {
		middleware.WriteError(w, r, model.NewOAuthProtocolError("Missing authorization code", nil), nil)
		return
	}

	// 4. コード交換からセッション発行まで
	result, err := h.service.HandleCallback(r.Context(), provider, code, verifier)
	if err != nil {
		middleware.WriteError(w, r, err, nil)
		return
	}

	http.SetCookie(w, h.cookies.Cookie(result.Session))
	if h.config.ClientURL != "" {
		http.Redirect(w, r, h.config.ClientURL, http.StatusFound)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, "Logged in successfully")
}

// VerifySession はボディで受け取ったセッションIDの有効性を返す。
// Cookieは変更しない。
// POST /api/v1/auth/verify-session
func (h *AuthHandler) VerifySession(w http.ResponseWriter, r *http.Request) {
	var req verifySessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		middleware.WriteError(w, r, model.NewValidationError("Session ID is required"), nil)
		return
	}

	valid, err := h.service.VerifySession(r.Context(), req.SessionID)
	if err != nil {
		middleware.WriteError(w, r, err, nil)
		return
	}
	if !valid {
		middleware.WriteJSON(w, http.StatusUnauthorized, middleware.Response{Success: false, Message: "Session is invalid"})
		return
	}
	middleware.WriteMessage(w, http.StatusOK, "Session is valid")
}

// Logout は認証済みセッションを破棄する。
// 破棄に失敗した場合でもCookieはクリアする。
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.AuthFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, model.NewAuthorizationError(true), h.cookies)
		return
	}

	http.SetCookie(w, h.cookies.BlankCookie())
	if err := h.service.Logout(r.Context(), ac.Session.ID); err != nil {
		middleware.WriteError(w, r, err, nil)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, "Logged out successfully")
}

// CurrentUser は認証済みアカウントの情報を返す。
// GET /api/v1/auth/current-user
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.AuthFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, model.NewAuthorizationError(true), h.cookies)
		return
	}

	a := ac.Account
	middleware.WriteJSON(w, http.StatusOK, currentUserResponse{
		Success: true,
		User: userResponse{
			ID:            a.ID,
			Email:         a.Email,
			Role:          a.Role,
			EmailVerified: a.EmailVerified,
			AuthType:      a.AuthType,
		},
	})
}

// decodeJSON はリクエストボディをdstにデコードする。
// 失敗した場合はValidationErrorを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, r, model.NewValidationError("Invalid request body"), nil)
		return false
	}
	return true
}
