// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MaxHandshakeTTL はOAuthハンドシェイクCookieの最大有効期間。
const MaxHandshakeTTL = 10 * time.Minute

// minSessionSecretLength はハンドシェイクCookie署名鍵の最小バイト数。
const minSessionSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Server
	Environment string `env:"APP_ENV" envDefault:"development"`
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL     string `env:"BASE_URL,required,notEmpty"`
	// ClientURL はOAuthログイン完了後のリダイレクト先とメール内リンクの基点。
	ClientURL string `env:"CLIENT_URL"`

	// Session
	SessionSecret          string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionTTL             time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionMaxLifetime     time.Duration `env:"SESSION_MAX_LIFETIME" envDefault:"2160h"`
	SessionCookieName      string        `env:"SESSION_COOKIE_NAME" envDefault:"auth_session"`
	SessionCookieExpires   bool          `env:"SESSION_COOKIE_EXPIRES" envDefault:"false"`
	SessionCookieSameSite  string        `env:"SESSION_COOKIE_SAMESITE" envDefault:"strict"`
	SessionStore           string        `env:"SESSION_STORE" envDefault:"postgres"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Password
	PasswordHashCost int `env:"PASSWORD_HASH_COST" envDefault:"12"`

	// OAuth
	GoogleClientID       string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string        `env:"GOOGLE_CLIENT_SECRET"`
	LinkedInClientID     string        `env:"LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret string        `env:"LINKEDIN_CLIENT_SECRET"`
	OAuthHTTPTimeout     time.Duration `env:"OAUTH_HTTP_TIMEOUT" envDefault:"10s"`
	OAuthHandshakeTTL    time.Duration `env:"OAUTH_HANDSHAKE_TTL" envDefault:"10m"`

	// Mail
	SMTPHost          string `env:"SMTP_HOST"`
	SMTPPort          int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername      string `env:"SMTP_USERNAME"`
	SMTPPassword      string `env:"SMTP_PASSWORD"`
	MailFromAddress   string `env:"MAIL_FROM_ADDRESS" envDefault:"no-reply@unlinked.local"`
	MailFromName      string `env:"MAIL_FROM_NAME" envDefault:"UnLinked"`
	MailRatePerMinute int    `env:"MAIL_RATE_PER_MINUTE" envDefault:"30"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Cookie
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	if len(c.SessionSecret) < minSessionSecretLength {
		problems = append(problems, fmt.Sprintf("SESSION_SECRET must be at least %d bytes", minSessionSecretLength))
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, "SESSION_TTL must be positive")
	}
	if c.SessionMaxLifetime > 0 && c.SessionMaxLifetime < c.SessionTTL {
		problems = append(problems, "SESSION_MAX_LIFETIME must not be shorter than SESSION_TTL")
	}
	switch strings.ToLower(c.SessionCookieSameSite) {
	case "strict", "none":
	default:
		problems = append(problems, "SESSION_COOKIE_SAMESITE must be strict or none")
	}
	switch c.SessionStore {
	case "postgres":
	case "redis":
		if c.RedisAddr == "" {
			problems = append(problems, "REDIS_ADDR is required when SESSION_STORE=redis")
		}
	default:
		problems = append(problems, "SESSION_STORE must be postgres or redis")
	}
	if c.PasswordHashCost < 4 || c.PasswordHashCost > 31 {
		problems = append(problems, "PASSWORD_HASH_COST must be between 4 and 31")
	}
	if c.OAuthHandshakeTTL <= 0 || c.OAuthHandshakeTTL > MaxHandshakeTTL {
		problems = append(problems, "OAUTH_HANDSHAKE_TTL must be between 1s and 10m")
	}
	if c.OAuthHTTPTimeout <= 0 {
		problems = append(problems, "OAUTH_HTTP_TIMEOUT must be positive")
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		problems = append(problems, "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	if (c.LinkedInClientID == "") != (c.LinkedInClientSecret == "") {
		problems = append(problems, "LINKEDIN_CLIENT_ID and LINKEDIN_CLIENT_SECRET must be set together")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction は本番環境で動作しているかを返す。
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CookieSecure はCookieにSecure属性を付与するかを返す。
func (c *Config) CookieSecure() bool {
	return c.IsProduction() || strings.HasPrefix(c.BaseURL, "https://")
}

// SessionCookieSecure はセッションCookieにSecure属性を付与するかを返す。
// ブラウザはSecureのないSameSite=NoneのCookieを拒否するため、Noneの場合は常にtrueとなる。
func (c *Config) SessionCookieSecure() bool {
	return c.CookieSecure() || c.SessionSameSite() == http.SameSiteNoneMode
}

// SessionSameSite はセッションCookieのSameSite属性を返す。
func (c *Config) SessionSameSite() http.SameSite {
	if strings.ToLower(c.SessionCookieSameSite) == "none" {
		return http.SameSiteNoneMode
	}
	return http.SameSiteStrictMode
}

// OAuthCallbackURL は指定プロバイダーのコールバックURLを返す。
func (c *Config) OAuthCallbackURL(provider string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/api/v1/auth/oauth/" + provider + "/callback"
}

// MailEnabled はSMTP送信が設定されているかを返す。
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}
