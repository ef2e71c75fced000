// Package session はサーバーサイドセッションの発行、検証、破棄を提供する。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/unlinked/internal/logger"
	"github.com/hitoshi/unlinked/internal/metrics"
	"github.com/hitoshi/unlinked/internal/model"
)

// Store はセッション管理に必要な永続化操作。
// repository.SessionRepositoryの部分集合として定義する。
type Store interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	DeleteByID(ctx context.Context, id string) error
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
	// Persistent がtrueの場合、Cookieにセッション有効期限を付与する。
	// falseの場合はブラウザセッションCookieとなる。
	Persistent bool
}

// Config はセッションマネージャーの設定。
type Config struct {
	TTL         time.Duration
	MaxLifetime time.Duration
	Cookie      CookieConfig
}

// Validation はセッション検証の結果。
type Validation struct {
	Session *model.Session
	Valid   bool
	// ClearCookie がtrueの場合、クライアントのCookieを空にする必要がある。
	ClearCookie bool
}

// Manager はセッションのライフサイクルを管理する。
type Manager struct {
	store   Store
	config  Config
	metrics metrics.Recorder
	now     func() time.Time
}

// NewManager はManagerを生成する。recorderがnilの場合はメトリクスを記録しない。
func NewManager(store Store, config Config, recorder metrics.Recorder) *Manager {
	if config.Cookie.Path == "" {
		config.Cookie.Path = "/"
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Manager{
		store:   store,
		config:  config,
		metrics: recorder,
		now:     time.Now,
	}
}

// CookieName はセッションCookie名を返す。
func (m *Manager) CookieName() string {
	return m.config.Cookie.Name
}

// Create は指定アカウントの新しいセッションを発行し永続化する。
func (m *Manager) Create(ctx context.Context, accountID string) (*model.Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := m.now()
	s := &model.Session{
		ID:        id,
		AccountID: accountID,
		ExpiresAt: m.capExpiry(now, now.Add(m.config.TTL)),
		CreatedAt: now,
		Fresh:     true,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("session created",
		logger.SessionID(id),
		slog.String("account_id", accountID),
	)
	return s, nil
}

// Validate はセッションIDを検証する。
// 形式不正・未登録・期限切れの場合はValid=falseを返しエラーにはしない。
// エラーを返すのはストアの入出力に失敗した場合のみ。
// 残り有効期間がTTLの半分を下回った場合は期限を延長しFresh=trueとする。
func (m *Manager) Validate(ctx context.Context, id string) (*Validation, error) {
	if !validID(id) {
		m.metrics.RecordSessionValidation(metrics.ResultInvalid)
		return &Validation{ClearCookie: true}, nil
	}

	s, err := m.store.FindByID(ctx, id)
	if err != nil {
		m.metrics.RecordSessionValidation(metrics.ResultError)
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if s == nil {
		m.metrics.RecordSessionValidation(metrics.ResultInvalid)
		return &Validation{ClearCookie: true}, nil
	}

	now := m.now()
	if !now.Before(s.ExpiresAt) {
		if err := m.store.DeleteByID(ctx, id); err != nil {
			slog.Error("failed to delete expired session",
				logger.SessionID(id),
				slog.String("error", err.Error()),
			)
		}
		m.metrics.RecordSessionValidation(metrics.ResultInvalid)
		return &Validation{ClearCookie: true}, nil
	}

	s.Fresh = false
	if s.ExpiresAt.Sub(now) < m.config.TTL/2 {
		extended := m.capExpiry(s.CreatedAt, now.Add(m.config.TTL))
		if extended.After(s.ExpiresAt) {
			if err := m.store.UpdateExpiry(ctx, id, extended); err != nil {
				m.metrics.RecordSessionValidation(metrics.ResultError)
				return nil, fmt.Errorf("failed to extend session: %w", err)
			}
			s.ExpiresAt = extended
			s.Fresh = true
			m.metrics.RecordSessionValidation(metrics.ResultRefreshed)
			return &Validation{Session: s, Valid: true}, nil
		}
	}

	m.metrics.RecordSessionValidation(metrics.ResultValid)
	return &Validation{Session: s, Valid: true}, nil
}

// Invalidate はセッションを破棄する。形式不正なIDは何もしない。
func (m *Manager) Invalidate(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	if err := m.store.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("session invalidated", logger.SessionID(id))
	return nil
}

// Cookie はセッションを保持するCookieを返す。
func (m *Manager) Cookie(s *model.Session) *http.Cookie {
	c := m.baseCookie()
	c.Value = s.ID
	if m.config.Cookie.Persistent {
		c.Expires = s.ExpiresAt
		c.MaxAge = int(s.ExpiresAt.Sub(m.now()).Seconds())
		if c.MaxAge <= 0 {
			c.MaxAge = -1
		}
	}
	return c
}

// BlankCookie はクライアントのセッションCookieを削除するCookieを返す。
func (m *Manager) BlankCookie() *http.Cookie {
	c := m.baseCookie()
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

func (m *Manager) baseCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.config.Cookie.Name,
		Path:     m.config.Cookie.Path,
		Domain:   m.config.Cookie.Domain,
		HttpOnly: true,
		Secure:   m.config.Cookie.Secure,
		SameSite: m.config.Cookie.SameSite,
	}
}

// capExpiry はexpiresをcreatedAt+MaxLifetimeで打ち切る。
func (m *Manager) capExpiry(createdAt, expires time.Time) time.Time {
	if m.config.MaxLifetime <= 0 {
		return expires
	}
	if limit := createdAt.Add(m.config.MaxLifetime); expires.After(limit) {
		return limit
	}
	return expires
}
