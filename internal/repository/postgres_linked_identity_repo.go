package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/unlinked/internal/model"
)

// PostgresLinkedIdentityRepo はPostgreSQLを使用した外部IdP紐付けリポジトリ。
type PostgresLinkedIdentityRepo struct {
	db *sql.DB
}

// NewPostgresLinkedIdentityRepo はPostgresLinkedIdentityRepoを生成する。
func NewPostgresLinkedIdentityRepo(db *sql.DB) *PostgresLinkedIdentityRepo {
	return &PostgresLinkedIdentityRepo{db: db}
}

const linkedIdentityColumns = `id, account_id, provider, provider_account_id, access_token, refresh_token,
	token_type, scope, expires_at, created_at, updated_at`

// FindByProvider はproviderとprovider_account_idで紐付けを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresLinkedIdentityRepo) FindByProvider(ctx context.Context, provider, providerAccountID string) (*model.LinkedIdentity, error) {
	identity, err := scanLinkedIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+linkedIdentityColumns+`
		 FROM linked_identities
		 WHERE provider = $1 AND provider_account_id = $2`,
		provider, providerAccountID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find linked identity: %w", err)
	}
	return identity, nil
}

// Upsert は紐付けを作成し、既存の場合はトークン情報のみ更新する。
// 既存行のaccount_idは変更しない。refresh_tokenが返されなかった場合は保存済みの値を残す。
func (r *PostgresLinkedIdentityRepo) Upsert(ctx context.Context, identity *model.LinkedIdentity) (*model.LinkedIdentity, error) {
	saved, err := scanLinkedIdentity(r.db.QueryRowContext(ctx,
		`INSERT INTO linked_identities
		   (id, account_id, provider, provider_account_id, access_token, refresh_token,
		    token_type, scope, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (provider, provider_account_id) DO UPDATE SET
		   access_token  = EXCLUDED.access_token,
		   refresh_token = COALESCE(EXCLUDED.refresh_token, linked_identities.refresh_token),
		   token_type    = EXCLUDED.token_type,
		   scope         = EXCLUDED.scope,
		   expires_at    = EXCLUDED.expires_at,
		   updated_at    = EXCLUDED.updated_at
		 RETURNING `+linkedIdentityColumns,
		identity.ID, identity.AccountID, identity.Provider, identity.ProviderAccountID,
		identity.AccessToken, identity.RefreshToken, identity.TokenType, identity.Scope,
		identity.ExpiresAt, identity.CreatedAt, identity.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert linked identity: %w", err)
	}
	return saved, nil
}

func scanLinkedIdentity(row *sql.Row) (*model.LinkedIdentity, error) {
	identity := &model.LinkedIdentity{}
	var refreshToken sql.NullString
	var expiresAt sql.NullTime
	err := row.Scan(
		&identity.ID, &identity.AccountID, &identity.Provider, &identity.ProviderAccountID,
		&identity.AccessToken, &refreshToken, &identity.TokenType, &identity.Scope,
		&expiresAt, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if refreshToken.Valid {
		identity.RefreshToken = &refreshToken.String
	}
	if expiresAt.Valid {
		identity.ExpiresAt = &expiresAt.Time
	}
	return identity, nil
}

// compile-time interface check
var _ LinkedIdentityRepository = (*PostgresLinkedIdentityRepo)(nil)
