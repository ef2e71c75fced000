package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/hitoshi/unlinked/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// Endpoints はプロバイダーのエンドポイント群。
type Endpoints struct {
	IssuerURL   string
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// Credentials はOAuthクライアントの資格情報。
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Option はプロバイダー生成時のオプション。
type Option func(*client)

// WithHTTPClient はプロバイダー呼び出しに使用するHTTPクライアントを設定する。
func WithHTTPClient(c *http.Client) Option {
	return func(cl *client) {
		cl.httpClient = c
	}
}

// WithTimeout はプロバイダー呼び出し1回あたりのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(cl *client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithEndpoints はエンドポイントを上書きする。空のフィールドは既定値のまま。
func WithEndpoints(e Endpoints) Option {
	return func(cl *client) {
		if e.IssuerURL != "" {
			cl.endpoints.IssuerURL = e.IssuerURL
		}
		if e.AuthURL != "" {
			cl.endpoints.AuthURL = e.AuthURL
		}
		if e.TokenURL != "" {
			cl.endpoints.TokenURL = e.TokenURL
		}
		if e.UserInfoURL != "" {
			cl.endpoints.UserInfoURL = e.UserInfoURL
		}
	}
}

// WithRecorder はプロバイダー呼び出しのレイテンシ記録先を設定する。
func WithRecorder(r metrics.Recorder) Option {
	return func(cl *client) {
		if r != nil {
			cl.metrics = r
		}
	}
}

// client はx/oauth2によるコード交換とgo-oidcによるuserinfo取得の共通実装。
// GoogleとLinkedInはエンドポイントとPKCE有無、追加パラメーターのみが異なる。
type client struct {
	name          string
	pkce          bool
	credentials   Credentials
	endpoints     Endpoints
	defaultScopes []string
	authOptions   []oauth2.AuthCodeOption
	httpClient    *http.Client
	timeout       time.Duration
	metrics       metrics.Recorder
}

func newClient(name string, pkce bool, creds Credentials, endpoints Endpoints, scopes []string, opts ...Option) *client {
	c := &client{
		name:          name,
		pkce:          pkce,
		credentials:   creds,
		endpoints:     endpoints,
		defaultScopes: scopes,
		timeout:       defaultTimeout,
		metrics:       metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

func (c *client) Name() string   { return c.name }
func (c *client) UsesPKCE() bool { return c.pkce }

func (c *client) oauth2Config(scopes []string) *oauth2.Config {
	if len(scopes) == 0 {
		scopes = c.defaultScopes
	}
	return &oauth2.Config{
		ClientID:     c.credentials.ClientID,
		ClientSecret: c.credentials.ClientSecret,
		RedirectURL:  c.credentials.RedirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.endpoints.AuthURL,
			TokenURL:  c.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizationURL は認可エンドポイントへのURLを生成する。
func (c *client) AuthorizationURL(state, verifier string, scopes []string) string {
	opts := append([]oauth2.AuthCodeOption{}, c.authOptions...)
	if c.pkce && verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return c.oauth2Config(scopes).AuthCodeURL(state, opts...)
}

// ExchangeCode は認可コードをトークンに交換する。
func (c *client) ExchangeCode(ctx context.Context, code, verifier string) (*Tokens, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var opts []oauth2.AuthCodeOption
	if c.pkce {
		if verifier == "" {
			return nil, &ProviderError{Provider: c.name, Op: "exchange", Message: "Missing code verifier"}
		}
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	start := time.Now()
	tok, err := c.oauth2Config(nil).Exchange(ctx, code, opts...)
	c.metrics.RecordProviderLatency(c.name, time.Since(start))
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Op: "exchange", Message: exchangeMessage(ctx, err), Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &ProviderError{Provider: c.name, Op: "exchange", Message: "Provider returned no access token"}
	}

	tokens := &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		tokens.Scope = scope
	}
	return tokens, nil
}

// FetchProfile はOpenID Connectのuserinfoエンドポイントからプロフィールを取得する。
func (c *client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = oidc.ClientContext(ctx, c.httpClient)

	provider := (&oidc.ProviderConfig{
		IssuerURL:   c.endpoints.IssuerURL,
		AuthURL:     c.endpoints.AuthURL,
		TokenURL:    c.endpoints.TokenURL,
		UserInfoURL: c.endpoints.UserInfoURL,
	}).NewProvider(ctx)

	start := time.Now()
	info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	c.metrics.RecordProviderLatency(c.name, time.Since(start))
	if err != nil {
		msg := "Failed to fetch user profile"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = "Provider request timed out"
		}
		return nil, &ProviderError{Provider: c.name, Op: "userinfo", Message: msg, Err: err}
	}
	if info.Subject == "" {
		return nil, &ProviderError{Provider: c.name, Op: "userinfo", Message: "Provider returned no account identifier"}
	}

	var claims struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := info.Claims(&claims); err != nil {
		return nil, &ProviderError{Provider: c.name, Op: "userinfo", Message: "Failed to parse user profile", Err: err}
	}

	return &Profile{
		Subject:       info.Subject,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

// exchangeMessage はトークン交換エラーからクライアントに返せる文言を取り出す。
func exchangeMessage(ctx context.Context, err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorDescription != "" {
			return re.ErrorDescription
		}
		if re.ErrorCode != "" {
			return re.ErrorCode
		}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "Provider request timed out"
	}
	return "Failed to exchange authorization code"
}
