package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisHandshakePrefix = "oauth_handshake:"

// RedisHandshakeLedger はRedisを使用したOAuthハンドシェイクの使用済み記録。
// 複数インスタンス構成でも同じstateの再利用を拒否できる。
type RedisHandshakeLedger struct {
	client redis.UniversalClient
}

// NewRedisHandshakeLedger はRedisHandshakeLedgerを生成する。
func NewRedisHandshakeLedger(client redis.UniversalClient) *RedisHandshakeLedger {
	return &RedisHandshakeLedger{client: client}
}

// Consume はidを使用済みとして記録する。SETNXにより初回のみtrueを返す。
func (l *RedisHandshakeLedger) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := l.client.SetNX(ctx, redisHandshakePrefix+id, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record handshake: %w", err)
	}
	return ok, nil
}

// compile-time interface check
var _ HandshakeLedger = (*RedisHandshakeLedger)(nil)
