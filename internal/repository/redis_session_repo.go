package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/unlinked/internal/model"
)

const redisSessionPrefix = "session:"

// redisSession はRedisに保存するセッションの表現。
type redisSession struct {
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// キーのTTLをセッションの有効期限に合わせるため、期限切れのセッションは自動的に消える。
type RedisSessionRepo struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client redis.UniversalClient) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, now: time.Now}
}

func (r *RedisSessionRepo) key(id string) string {
	return redisSessionPrefix + id
}

// Create はセッションを作成する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("failed to create session: expires_at must be in the future")
	}

	data, err := json.Marshal(redisSession{
		AccountID: session.AccountID,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.key(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	stored, err := r.get(ctx, id)
	if err != nil || stored == nil {
		return nil, err
	}
	return &model.Session{
		ID:        id,
		AccountID: stored.AccountID,
		ExpiresAt: stored.ExpiresAt,
		CreatedAt: stored.CreatedAt,
	}, nil
}

func (r *RedisSessionRepo) get(ctx context.Context, id string) (*redisSession, error) {
	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var stored redisSession
	if err := json.Unmarshal(val, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &stored, nil
}

// UpdateExpiry はセッションの有効期限とキーのTTLを更新する。
// 既に消えているセッションは再作成しない。
func (r *RedisSessionRepo) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	stored, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if stored == nil {
		return nil
	}

	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.DeleteByID(ctx, id)
	}

	stored.ExpiresAt = expiresAt
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.SetXX(ctx, r.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to update session expiry: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
