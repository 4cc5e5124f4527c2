package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/jobmapper/internal/model"
)

// MemoryCacheRepo はプロセス内メモリのデータセットキャッシュ。
// PostgreSQLとRedisのいずれも利用できない場合の最終手段として使用する。
type MemoryCacheRepo struct {
	mu      sync.RWMutex
	entries map[string]model.CacheEntry
	now     clock
}

// NewMemoryCacheRepo はMemoryCacheRepoを生成する。
func NewMemoryCacheRepo() *MemoryCacheRepo {
	return &MemoryCacheRepo{
		entries: make(map[string]model.CacheEntry),
		now:     systemClock,
	}
}

// Backend はバックエンド名を返す。
func (r *MemoryCacheRepo) Backend() string {
	return BackendMemory
}

// Get は指定キーの有効なエントリを取得する。
func (r *MemoryCacheRepo) Get(_ context.Context, key string) (*model.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[key]
	if !ok || entry.Expired(r.now()) {
		return nil, nil
	}
	return &entry, nil
}

// MostRecentAny は最も新しく作成された有効なエントリを返す。
func (r *MemoryCacheRepo) MostRecentAny(_ context.Context) (*model.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	var latest *model.CacheEntry
	for _, entry := range r.entries {
		if entry.Expired(now) {
			continue
		}
		if latest == nil || entry.CreatedAt.After(latest.CreatedAt) ||
			(entry.CreatedAt.Equal(latest.CreatedAt) && entry.DatasetKey > latest.DatasetKey) {
			e := entry
			latest = &e
		}
	}
	return latest, nil
}

// Put はエントリを上書き保存する。
func (r *MemoryCacheRepo) Put(_ context.Context, key string, payload []model.RawJobRecord, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[key] = r.newEntry(key, payload, ttl)
	return nil
}

// ClearAll は全エントリを削除する。
func (r *MemoryCacheRepo) ClearAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]model.CacheEntry)
	return nil
}

// ReplaceAll はロックを保持したまま全削除と書き込みを行う。
func (r *MemoryCacheRepo) ReplaceAll(_ context.Context, key string, payload []model.RawJobRecord, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = map[string]model.CacheEntry{key: r.newEntry(key, payload, ttl)}
	return nil
}

// DeleteExpired はbeforeの時点で期限切れのエントリを削除する。
func (r *MemoryCacheRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, entry := range r.entries {
		if entry.Expired(before) {
			delete(r.entries, key)
			n++
		}
	}
	return n, nil
}

func (r *MemoryCacheRepo) newEntry(key string, payload []model.RawJobRecord, ttl time.Duration) model.CacheEntry {
	now := r.now()
	return model.CacheEntry{
		DatasetKey: key,
		Payload:    payload,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}
