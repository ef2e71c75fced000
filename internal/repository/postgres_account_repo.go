package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/unlinked/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反を表すSQLSTATE。
const uniqueViolation = "23505"

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const accountColumns = `id, email, password_hash, role, email_verified, auth_type, created_at, updated_at`

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
// 比較は大文字小文字を区別しない。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = $1`,
		model.NormalizeEmail(email),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

// Create はアカウントを作成する。
// メールアドレスの一意制約違反はErrDuplicateEmailに変換する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, role, email_verified, auth_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, model.NormalizeEmail(account.Email), account.PasswordHash, string(account.Role),
		account.EmailVerified, string(account.AuthType), account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	account := &model.Account{}
	var passwordHash sql.NullString
	var role, authType string
	err := row.Scan(
		&account.ID, &account.Email, &passwordHash, &role,
		&account.EmailVerified, &authType, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if passwordHash.Valid {
		account.PasswordHash = &passwordHash.String
	}
	account.Role = model.Role(role)
	account.AuthType = model.AuthType(authType)
	return account, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
