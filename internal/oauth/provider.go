// Package oauth は外部IdP（Google, LinkedIn）との認可コードフローと、
// ハンドシェイクCookieによるstate/PKCE検証を提供する。
package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// プロバイダー名
const (
	ProviderGoogle   = "google"
	ProviderLinkedIn = "linkedin"
)

// ErrUnknownProvider は未登録のプロバイダー名が指定された場合に返される。
var ErrUnknownProvider = errors.New("oauth: unknown provider")

// Provider はOAuthプロバイダーの機能インターフェース。
type Provider interface {
	// Name はプロバイダー名を返す。Cookie名やLinkedIdentity.Providerに使用する。
	Name() string
	// UsesPKCE はPKCE(S256)を使用するかを返す。
	UsesPKCE() bool
	// AuthorizationURL は認可エンドポイントへのURLを生成する。
	// scopesが空の場合はプロバイダー既定のスコープを使用する。
	AuthorizationURL(state, verifier string, scopes []string) string
	// ExchangeCode は認可コードをトークンに交換する。
	ExchangeCode(ctx context.Context, code, verifier string) (*Tokens, error)
	// FetchProfile はアクセストークンでユーザープロフィールを取得する。
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// Tokens はトークンエンドポイントの応答。
type Tokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	Expiry       time.Time
}

// Profile はプロバイダーから取得したユーザー情報。
type Profile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// ProviderError はプロバイダー呼び出しの失敗を表す。
// Messageはクライアントに返してよい安全な文言のみを保持する。
type ProviderError struct {
	Provider string
	Op       string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oauth %s %s: %s: %v", e.Provider, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("oauth %s %s: %s", e.Provider, e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
