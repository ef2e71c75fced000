// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/unlinked/internal/model"
)

// ErrDuplicateEmail は同じメールアドレスのアカウントが既に存在する場合に返される。
var ErrDuplicateEmail = errors.New("repository: duplicate email")

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail は正規化済みメールアドレスでアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// Create はアカウントを作成する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, account *model.Account) error
}

// LinkedIdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type LinkedIdentityRepository interface {
	// FindByProvider はproviderとprovider_account_idで紐付けを検索する。
	// 見つからない場合はnilを返す。
	FindByProvider(ctx context.Context, provider, providerAccountID string) (*model.LinkedIdentity, error)

	// Upsert は紐付けを作成し、既存の場合はトークン情報を更新する。
	// 単一の文で実行され、同一(provider, provider_account_id)に対して重複行を作らない。
	// 戻り値は保存後の紐付けで、AccountIDは既存行がある場合その所有者を指す。
	Upsert(ctx context.Context, identity *model.LinkedIdentity) (*model.LinkedIdentity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れでも削除前であれば返す。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateExpiry はセッションの有効期限を更新する。
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// ExpiredSessionDeleter は期限切れセッションを一括削除する。
type ExpiredSessionDeleter interface {
	// DeleteExpired はbefore以前に期限切れとなったセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// HandshakeLedger はOAuthハンドシェイクの使用済み記録を保持する。
type HandshakeLedger interface {
	// Consume はidを使用済みとして記録する。
	// 初回であればtrue、既に使用済みであればfalseを返す。
	Consume(ctx context.Context, id string, ttl time.Duration) (bool, error)
}
