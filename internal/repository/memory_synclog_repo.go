package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/jobmapper/internal/model"
)

// MemorySyncLogRepo はプロセス内メモリの同期ログリポジトリ。挿入順に保持する。
type MemorySyncLogRepo struct {
	mu      sync.RWMutex
	entries []model.SyncLogEntry
}

// NewMemorySyncLogRepo はMemorySyncLogRepoを生成する。
func NewMemorySyncLogRepo() *MemorySyncLogRepo {
	return &MemorySyncLogRepo{}
}

// Append はエントリを末尾に追加する。
func (r *MemorySyncLogRepo) Append(_ context.Context, entry *model.SyncLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, *entry)
	return nil
}

// Recent は新しい順に最大limit件のエントリを返す。
func (r *MemorySyncLogRepo) Recent(_ context.Context, limit int) ([]model.SyncLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.entries)
	if limit < n {
		n = max(limit, 0)
	}
	out := make([]model.SyncLogEntry, 0, n)
	for i := len(r.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

// TrimTo は新しいlimit件を残して古いエントリを削除する。
func (r *MemorySyncLogRepo) TrimTo(_ context.Context, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	excess := len(r.entries) - limit
	if excess <= 0 {
		return 0, nil
	}
	kept := make([]model.SyncLogEntry, limit)
	copy(kept, r.entries[excess:])
	r.entries = kept
	return int64(excess), nil
}
