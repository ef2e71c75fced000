// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はアカウントの業務上のロールを表す。
type Role string

// 定義済みロール
const (
	RolePending    Role = "PENDING"
	RoleConsultant Role = "CONSULTANT"
	RoleBenchSales Role = "BENCH_SALES"
)

// Roles は登録可能なロールの一覧を返す。
func Roles() []Role {
	return []Role{RolePending, RoleConsultant, RoleBenchSales}
}

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	for _, v := range Roles() {
		if r == v {
			return true
		}
	}
	return false
}

// AuthType はアカウントの作成経路を表す。
type AuthType string

const (
	AuthTypeEmail AuthType = "EMAIL"
	AuthTypeOAuth AuthType = "OAUTH"
)

// Account はサービス利用者を表す。
// PasswordHashはAuthTypeEmailのアカウントのみ保持する。
type Account struct {
	ID            string
	Email         string
	PasswordHash  *string
	Role          Role
	EmailVerified bool
	AuthType      AuthType
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPassword はパスワードログインに使用できるハッシュを保持しているかを返す。
func (a *Account) HasPassword() bool {
	return a.AuthType == AuthTypeEmail && a.PasswordHash != nil && *a.PasswordHash != ""
}

// LinkedIdentity は外部IdPのアカウントとの紐付け情報を表す。
// (Provider, ProviderAccountID) の組は一意で、ちょうど1つのAccountに属する。
type LinkedIdentity struct {
	ID                string
	AccountID         string
	Provider          string
	ProviderAccountID string
	AccessToken       string
	RefreshToken      *string
	TokenType         string
	Scope             string
	ExpiresAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Session はアカウントのログインセッションを表す。
// Freshは作成直後または有効期限が延長された直後であることを示し、永続化されない。
type Session struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
	Fresh     bool
}

// NormalizeEmail はメールアドレスを比較用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
