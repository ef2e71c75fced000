package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrInvalidState はコールバックのstate/PKCE検証に失敗した場合に返される。
var ErrInvalidState = errors.New("oauth: invalid state")

// DefaultCookiePath はハンドシェイクCookieの既定パス。
const DefaultCookiePath = "/api/v1/auth/oauth"

const (
	kindState    = "state"
	kindVerifier = "verifier"
)

// Ledger はハンドシェイクIDの使用済み記録。
// repository.HandshakeLedgerの部分集合として定義する。
type Ledger interface {
	Consume(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// GuardConfig はハンドシェイクCookieの設定。
type GuardConfig struct {
	Secret   []byte
	TTL      time.Duration
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// Handshake は1回の認可リクエストに対応するstateとcode_verifier。
type Handshake struct {
	Provider string
	State    string
	Verifier string
	Cookies  []*http.Cookie
}

// handshakeClaims はハンドシェイクCookieに格納する署名付きクレーム。
// 2つのCookieは同じjtiを持ち、audにプロバイダー名を持つ。
type handshakeClaims struct {
	Value string `json:"val"`
	Kind  string `json:"knd"`
	PKCE  bool   `json:"pkce,omitempty"`
	jwt.RegisteredClaims
}

// Guard はOAuthハンドシェイクのstate/PKCE Cookieを発行し、コールバックで検証する。
type Guard struct {
	config GuardConfig
	ledger Ledger
	now    func() time.Time
}

// NewGuard はGuardを生成する。
func NewGuard(config GuardConfig, ledger Ledger) *Guard {
	if config.Path == "" {
		config.Path = DefaultCookiePath
	}
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	return &Guard{config: config, ledger: ledger, now: time.Now}
}

// StateCookieName はstate Cookie名を返す。
func StateCookieName(provider string) string {
	return provider + "_oauth_state"
}

// VerifierCookieName はcode_verifier Cookie名を返す。
func VerifierCookieName(provider string) string {
	return provider + "_code_verifier"
}

// Begin は新しいハンドシェイクを生成し、レスポンスに設定するCookieを返す。
func (g *Guard) Begin(provider string, pkce bool) (*Handshake, error) {
	state, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	now := g.now()
	base := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Audience:  jwt.ClaimStrings{provider},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.config.TTL)),
	}

	h := &Handshake{Provider: provider, State: state}

	stateToken, err := g.sign(handshakeClaims{Value: state, Kind: kindState, PKCE: pkce, RegisteredClaims: base})
	if err != nil {
		return nil, err
	}
	h.Cookies = append(h.Cookies, g.cookie(StateCookieName(provider), stateToken))

	if pkce {
		h.Verifier = oauth2.GenerateVerifier()
		verifierToken, err := g.sign(handshakeClaims{Value: h.Verifier, Kind: kindVerifier, PKCE: true, RegisteredClaims: base})
		if err != nil {
			return nil, err
		}
		h.Cookies = append(h.Cookies, g.cookie(VerifierCookieName(provider), verifierToken))
	}

	return h, nil
}

// ClearCookies はハンドシェイクCookieを削除するCookieを返す。
// コールバックでは検証結果にかかわらず最初に送出する。
func (g *Guard) ClearCookies(provider string) []*http.Cookie {
	expire := func(name string) *http.Cookie {
		c := g.cookie(name, "")
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		return c
	}
	return []*http.Cookie{
		expire(StateCookieName(provider)),
		expire(VerifierCookieName(provider)),
	}
}

// Complete はコールバックリクエストのstateをCookieと照合し、
// PKCEプロバイダーであればcode_verifierを返す。
// 検証失敗はErrInvalidStateを返す。ハンドシェイクは1回のみ使用できる。
func (g *Guard) Complete(ctx context.Context, r *http.Request, provider string) (string, error) {
	queryState := r.URL.Query().Get("state")
	if queryState == "" {
		return "", fmt.Errorf("%w: missing state parameter", ErrInvalidState)
	}

	stateClaims, err := g.readCookie(r, StateCookieName(provider), provider, kindState)
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare([]byte(stateClaims.Value), []byte(queryState)) != 1 {
		return "", fmt.Errorf("%w: state mismatch", ErrInvalidState)
	}

	var verifier string
	if stateClaims.PKCE {
		verifierClaims, err := g.readCookie(r, VerifierCookieName(provider), provider, kindVerifier)
		if err != nil {
			return "", err
		}
		if verifierClaims.ID != stateClaims.ID || verifierClaims.Value == "" {
			return "", fmt.Errorf("%w: verifier does not belong to handshake", ErrInvalidState)
		}
		verifier = verifierClaims.Value
	}

	ttl := g.config.TTL
	if stateClaims.ExpiresAt != nil {
		if remaining := stateClaims.ExpiresAt.Sub(g.now()); remaining > 0 {
			ttl = remaining
		}
	}
	fresh, err := g.ledger.Consume(ctx, stateClaims.ID, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to record handshake: %w", err)
	}
	if !fresh {
		return "", fmt.Errorf("%w: handshake already used", ErrInvalidState)
	}

	return verifier, nil
}

func (g *Guard) readCookie(r *http.Request, name, provider, kind string) (*handshakeClaims, error) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return nil, fmt.Errorf("%w: missing %s cookie", ErrInvalidState, kind)
	}

	claims := &handshakeClaims{}
	_, err = jwt.ParseWithClaims(c.Value, claims,
		func(*jwt.Token) (any, error) { return g.config.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(provider),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s cookie: %v", ErrInvalidState, kind, err)
	}
	if claims.Kind != kind || claims.ID == "" {
		return nil, fmt.Errorf("%w: unexpected %s cookie", ErrInvalidState, kind)
	}
	return claims, nil
}

func (g *Guard) sign(claims handshakeClaims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.config.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign handshake cookie: %w", err)
	}
	return token, nil
}

func (g *Guard) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     g.config.Path,
		MaxAge:   int(g.config.TTL.Seconds()),
		HttpOnly: true,
		Secure:   g.config.Secure,
		SameSite: g.config.SameSite,
	}
}

// randomToken は256bitのランダム値をbase64urlで返す。
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
