// Package auth はメールアドレス/パスワード認証とOAuth認証のフローを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/unlinked/internal/logger"
	"github.com/hitoshi/unlinked/internal/metrics"
	"github.com/hitoshi/unlinked/internal/model"
	"github.com/hitoshi/unlinked/internal/oauth"
	"github.com/hitoshi/unlinked/internal/repository"
	"github.com/hitoshi/unlinked/internal/session"
)

// SessionManager はセッションの発行・検証・破棄を行う。
type SessionManager interface {
	Create(ctx context.Context, accountID string) (*model.Session, error)
	Validate(ctx context.Context, id string) (*session.Validation, error)
	Invalidate(ctx context.Context, id string) error
}

// ProviderRegistry はプロバイダー名からOAuthプロバイダーを解決する。
type ProviderRegistry interface {
	Get(name string) (oauth.Provider, error)
}

// HandshakeStarter はOAuthハンドシェイクを開始する。
type HandshakeStarter interface {
	Begin(provider string, pkce bool) (*oauth.Handshake, error)
}

// Validator は入力構造体を検証する。InputValidatorが実装する。
type Validator interface {
	Validate(input any) error
}

// WelcomeNotifier は新規登録時のウェルカムメールを非同期で送る。
// 呼び出し元をブロックしてはならない。
type WelcomeNotifier interface {
	NotifyWelcome(account *model.Account)
}

// Dependencies はServiceの依存関係。
type Dependencies struct {
	Accounts   repository.AccountRepository
	Identities repository.LinkedIdentityRepository
	Sessions   SessionManager
	Hasher     PasswordHasher
	Validator  Validator
	Providers  ProviderRegistry
	Handshakes HandshakeStarter
	Notifier   WelcomeNotifier
	Metrics    metrics.Recorder
}

// Result は認証成功時のアカウントと発行されたセッション。
type Result struct {
	Account *model.Account
	Session *model.Session
}

// OAuthStart は認可リクエストの開始結果。
type OAuthStart struct {
	URL       string
	Handshake *oauth.Handshake
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts   repository.AccountRepository
	identities repository.LinkedIdentityRepository
	sessions   SessionManager
	hasher     PasswordHasher
	validator  Validator
	providers  ProviderRegistry
	handshakes HandshakeStarter
	notifier   WelcomeNotifier
	metrics    metrics.Recorder
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(deps Dependencies) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Service{
		accounts:   deps.Accounts,
		identities: deps.Identities,
		sessions:   deps.Sessions,
		hasher:     deps.Hasher,
		validator:  deps.Validator,
		providers:  deps.Providers,
		handshakes: deps.Handshakes,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		now:        time.Now,
	}
}

// Signup はメールアドレスとパスワードでアカウントを作成し、セッションを発行する。
// ウェルカムメールは登録処理とは独立して送信され、失敗しても登録は成功する。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Result, error) {
	in.Email = model.NormalizeEmail(in.Email)
	if err := s.validator.Validate(in); err != nil {
		s.metrics.RecordSignup(metrics.ResultRejected)
		return nil, err
	}

	existing, err := s.accounts.FindByEmail(ctx, in.Email)
	if err != nil {
		s.metrics.RecordSignup(metrics.ResultError)
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if existing != nil {
		s.metrics.RecordSignup(metrics.ResultRejected)
		return nil, model.NewEmailConflictError()
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.metrics.RecordSignup(metrics.ResultError)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := in.Role
	if role == "" {
		role = model.RolePending
	}

	now := s.now()
	account := &model.Account{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: &digest,
		Role:         role,
		AuthType:     model.AuthTypeEmail,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.metrics.RecordSignup(metrics.ResultRejected)
			return nil, model.NewEmailConflictError()
		}
		s.metrics.RecordSignup(metrics.ResultError)
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	sess, err := s.sessions.Create(ctx, account.ID)
	if err != nil {
		s.metrics.RecordSignup(metrics.ResultError)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyWelcome(account)
	}

	s.metrics.RecordSignup(metrics.ResultSuccess)
	slog.Info("account registered",
		slog.String("account_id", account.ID),
		slog.String("role", string(account.Role)),
	)
	return &Result{Account: account, Session: sess}, nil
}

// Login はメールアドレスとパスワードを照合し、新しいセッションを発行する。
// アカウント不在、EMAIL以外のアカウント、パスワード不一致はすべて同一のエラーを返す。
func (s *Service) Login(ctx context.Context, in LoginInput) (*Result, error) {
	in.Email = model.NormalizeEmail(in.Email)
	if err := s.validator.Validate(in); err != nil {
		s.metrics.RecordLogin(metrics.ResultRejected)
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, in.Email)
	if err != nil {
		s.metrics.RecordLogin(metrics.ResultError)
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	if account == nil || account.AuthType != model.AuthTypeEmail || !account.HasPassword() {
		s.hasher.VerifyDummy(in.Password)
		s.metrics.RecordLogin(metrics.ResultRejected)
		return nil, model.NewCredentialsError()
	}
	if !s.hasher.Verify(in.Password, *account.PasswordHash) {
		s.metrics.RecordLogin(metrics.ResultRejected)
		return nil, model.NewCredentialsError()
	}

	sess, err := s.sessions.Create(ctx, account.ID)
	if err != nil {
		s.metrics.RecordLogin(metrics.ResultError)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.metrics.RecordLogin(metrics.ResultSuccess)
	slog.Info("account logged in", slog.String("account_id", account.ID))
	return &Result{Account: account, Session: sess}, nil
}

// BeginOAuth はハンドシェイクを生成し、プロバイダーの認可URLを返す。
// scopesが空の場合はプロバイダー既定のスコープを使用する。
func (s *Service) BeginOAuth(providerName string, scopes []string) (*OAuthStart, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	h, err := s.handshakes.Begin(p.Name(), p.UsesPKCE())
	if err != nil {
		return nil, fmt.Errorf("failed to begin handshake: %w", err)
	}

	return &OAuthStart{
		URL:       p.AuthorizationURL(h.State, h.Verifier, scopes),
		Handshake: h,
	}, nil
}

// HandleCallback は検証済みのハンドシェイクに続くコールバック処理を行う。
// コード交換、プロフィール取得、アカウント検索/作成、LinkedIdentityのupsert、
// セッション発行の順に実行し、いずれかが失敗した時点で中断する。
func (s *Service) HandleCallback(ctx context.Context, providerName, code, verifier string) (*Result, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	result, err := s.handleCallback(ctx, p, code, verifier)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeOAuthProtocol {
			s.metrics.RecordOAuthCallback(p.Name(), metrics.ResultRejected)
		} else {
			s.metrics.RecordOAuthCallback(p.Name(), metrics.ResultError)
		}
		return nil, err
	}

	s.metrics.RecordOAuthCallback(p.Name(), metrics.ResultSuccess)
	return result, nil
}

func (s *Service) handleCallback(ctx context.Context, p oauth.Provider, code, verifier string) (*Result, error) {
	// 1. 認可コードをトークンに交換
	tokens, err := p.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, providerFailure(err)
	}

	// 2. プロフィールを取得
	profile, err := p.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		return nil, providerFailure(err)
	}
	email := model.NormalizeEmail(profile.Email)
	if email == "" {
		return nil, model.NewOAuthProtocolError("OAuth provider did not return an email address", nil)
	}

	// 3. 紐付け済みなら所有者、未紐付けならメールアドレスでアカウントを解決
	account, err := s.linkedAccount(ctx, p.Name(), profile.Subject)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account, err = s.findOrCreateOAuthAccount(ctx, p.Name(), email, profile.EmailVerified)
		if err != nil {
			return nil, err
		}
	}

	// 4. LinkedIdentityをupsert
	now := s.now()
	identity := &model.LinkedIdentity{
		ID:                uuid.NewString(),
		AccountID:         account.ID,
		Provider:          p.Name(),
		ProviderAccountID: profile.Subject,
		AccessToken:       tokens.AccessToken,
		TokenType:         tokens.TokenType,
		Scope:             tokens.Scope,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if tokens.RefreshToken != "" {
		identity.RefreshToken = &tokens.RefreshToken
	}
	if !tokens.Expiry.IsZero() {
		expiry := tokens.Expiry
		identity.ExpiresAt = &expiry
	}

	saved, err := s.identities.Upsert(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert linked identity: %w", err)
	}

	// 既存の紐付けが別アカウントに属する場合は紐付けの所有者でログインする
	if saved.AccountID != account.ID {
		slog.Warn("linked identity belongs to a different account than the profile email",
			slog.String("provider", p.Name()),
			slog.String("identity_account_id", saved.AccountID),
			slog.String("email_account_id", account.ID),
		)
		owner, err := s.accounts.FindByID(ctx, saved.AccountID)
		if err != nil {
			return nil, fmt.Errorf("failed to find identity owner: %w", err)
		}
		if owner == nil {
			return nil, fmt.Errorf("identity owner %s not found", saved.AccountID)
		}
		account = owner
	}

	// 5. セッションを発行
	sess, err := s.sessions.Create(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("oauth login succeeded",
		slog.String("account_id", account.ID),
		slog.String("provider", p.Name()),
	)
	return &Result{Account: account, Session: sess}, nil
}

// linkedAccount は外部IDに紐付いたアカウントを返す。未紐付けの場合はnilを返す。
func (s *Service) linkedAccount(ctx context.Context, provider, subject string) (*model.Account, error) {
	linked, err := s.identities.FindByProvider(ctx, provider, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find linked identity: %w", err)
	}
	if linked == nil {
		return nil, nil
	}

	owner, err := s.accounts.FindByID(ctx, linked.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity owner: %w", err)
	}
	return owner, nil
}

// findOrCreateOAuthAccount はメールアドレスに一致するアカウントを返す。
// 存在しない場合はOAUTH・PENDINGのアカウントを作成する。
// 同時作成で一意制約違反となった場合は再検索する。
func (s *Service) findOrCreateOAuthAccount(ctx context.Context, provider, email string, verified bool) (*model.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account != nil {
		if !verified && account.AuthType == model.AuthTypeEmail {
			slog.Warn("unverified provider email linked to password account",
				slog.String("provider", provider),
				slog.String("account_id", account.ID),
			)
		}
		return account, nil
	}

	now := s.now()
	account = &model.Account{
		ID:            uuid.NewString(),
		Email:         email,
		Role:          model.RolePending,
		EmailVerified: verified,
		AuthType:      model.AuthTypeOAuth,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if !errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
		existing, err := s.accounts.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to find account: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("account for %s vanished after duplicate insert", email)
		}
		return existing, nil
	}

	slog.Info("oauth account created", slog.String("account_id", account.ID))
	return account, nil
}

// VerifySession はセッションIDが有効かを返す。
func (s *Service) VerifySession(ctx context.Context, sessionID string) (bool, error) {
	v, err := s.sessions.Validate(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to validate session: %w", err)
	}
	return v.Valid, nil
}

// Logout はセッションを破棄する。既に失効したIDでもエラーにしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Invalidate(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	slog.Info("account logged out", logger.SessionID(sessionID))
	return nil
}

func (s *Service) provider(name string) (oauth.Provider, error) {
	p, err := s.providers.Get(name)
	if err != nil {
		if errors.Is(err, oauth.ErrUnknownProvider) {
			return nil, model.NewOAuthProtocolError("Unsupported OAuth provider", err)
		}
		return nil, fmt.Errorf("failed to resolve provider: %w", err)
	}
	return p, nil
}

// providerFailure はプロバイダー呼び出しのエラーをOAuthProtocolErrorに変換する。
func providerFailure(err error) error {
	var pe *oauth.ProviderError
	if errors.As(err, &pe) {
		return model.NewOAuthProtocolError(pe.Message, err)
	}
	return model.NewOAuthProtocolError("OAuth exchange failed", err)
}
