// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/unlinked/internal/model"
	"github.com/hitoshi/unlinked/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// authContextKey はリクエストコンテキストに認証情報を格納するためのキー。
var authContextKey = contextKey("auth")

// SessionGate はセッションの検証とCookie発行を行う。session.Managerが実装する。
type SessionGate interface {
	CookieClearer
	CookieName() string
	Cookie(s *model.Session) *http.Cookie
	Validate(ctx context.Context, id string) (*session.Validation, error)
}

// AccountFinder はアカウントの検索に必要なインターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// AuthContext は認証済みリクエストのアカウントとセッション。
type AuthContext struct {
	Account *model.Account
	Session *model.Session
}

// NewSessionMiddleware はCookieからセッションを読み取り検証するミドルウェアを返す。
// Cookieがない場合は401、無効な場合はCookieを削除して401を返す。
// 期限が延長されたセッションはCookieを再送する。
// 認証済みのアカウントとセッションをリクエストコンテキストに注入する。
func NewSessionMiddleware(sessions SessionGate, accounts AccountFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			cookie, err := r.Cookie(sessions.CookieName())
			if err != nil || cookie.Value == "" {
				WriteError(w, r, model.NewAuthorizationError(false), sessions)
				return
			}

			// 2. セッションの有効性を検証
			v, err := sessions.Validate(r.Context(), cookie.Value)
			if err != nil {
				WriteError(w, r, fmt.Errorf("failed to validate session: %w", err), sessions)
				return
			}
			if !v.Valid {
				WriteError(w, r, model.NewAuthorizationError(true), sessions)
				return
			}

			// 3. 期限延長時はCookieを再送
			if v.Session.Fresh {
				http.SetCookie(w, sessions.Cookie(v.Session))
			}

			// 4. アカウントを取得
			account, err := accounts.FindByID(r.Context(), v.Session.AccountID)
			if err != nil {
				WriteError(w, r, fmt.Errorf("failed to find account: %w", err), sessions)
				return
			}
			if account == nil {
				WriteError(w, r, model.NewAuthorizationError(true), sessions)
				return
			}

			// 5. 認証情報をコンテキストに注入
			setRequestAccount(r.Context(), account.ID)
			ctx := ContextWithAuth(r.Context(), &AuthContext{Account: account, Session: v.Session})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthFromContext はリクエストコンテキストから認証情報を取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey).(*AuthContext)
	if !ok || auth == nil || auth.Account == nil {
		return nil, false
	}
	return auth, true
}

// ContextWithAuth はコンテキストに認証情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}
