// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var schemaFiles embed.FS

// ErrDirtySchema は前回のマイグレーションが途中で失敗し、手動修復が必要な状態を表す。
var ErrDirtySchema = errors.New("schema is dirty")

// SchemaVersion は適用済みスキーマのバージョン。
// Versionが0の場合はマイグレーション未適用を表す。
type SchemaVersion struct {
	Version uint
	Dirty   bool
}

// NewMigrator は埋め込みSQLを読むmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// MigrateUp は未適用のマイグレーションを適用し、適用後のバージョンを返す。
// dirty状態のスキーマには何もせずErrDirtySchemaを返す。
func MigrateUp(databaseURL string) (SchemaVersion, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return SchemaVersion{}, err
	}
	defer m.Close()

	before, err := currentVersion(m)
	if err != nil {
		return SchemaVersion{}, err
	}
	if before.Dirty {
		return before, fmt.Errorf("version %d: %w", before.Version, ErrDirtySchema)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return SchemaVersion{}, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return currentVersion(m)
}

// CurrentVersion はデータベースに記録されたスキーマバージョンを返す。
func CurrentVersion(databaseURL string) (SchemaVersion, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return SchemaVersion{}, err
	}
	defer m.Close()
	return currentVersion(m)
}

func currentVersion(m *migrate.Migrate) (SchemaVersion, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaVersion{}, nil
	}
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return SchemaVersion{Version: v, Dirty: dirty}, nil
}
