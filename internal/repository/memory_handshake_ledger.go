package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryHandshakeLedger はプロセス内メモリに保持するOAuthハンドシェイクの使用済み記録。
// 単一インスタンス構成で使用する。
type MemoryHandshakeLedger struct {
	mu    sync.Mutex
	items map[string]time.Time
	now   func() time.Time
}

// NewMemoryHandshakeLedger はMemoryHandshakeLedgerを生成する。
func NewMemoryHandshakeLedger() *MemoryHandshakeLedger {
	return &MemoryHandshakeLedger{
		items: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Consume はidを使用済みとして記録する。初回のみtrueを返す。
func (l *MemoryHandshakeLedger) Consume(_ context.Context, id string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanupLocked(now)

	if _, ok := l.items[id]; ok {
		return false, nil
	}
	l.items[id] = now.Add(ttl)
	return true, nil
}

func (l *MemoryHandshakeLedger) cleanupLocked(now time.Time) {
	for id, expiresAt := range l.items {
		if !now.Before(expiresAt) {
			delete(l.items, id)
		}
	}
}

// compile-time interface check
var _ HandshakeLedger = (*MemoryHandshakeLedger)(nil)
