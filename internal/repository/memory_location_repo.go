package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/hitoshi/jobmapper/internal/model"
)

// MemoryLocationRepo はプロセス内メモリのゾーンリポジトリ。
type MemoryLocationRepo struct {
	mu   sync.RWMutex
	locs map[string]model.Location
}

// NewMemoryLocationRepo はMemoryLocationRepoを生成する。
func NewMemoryLocationRepo() *MemoryLocationRepo {
	return &MemoryLocationRepo{locs: make(map[string]model.Location)}
}

// List は全ゾーンを position, created_at の昇順で返す。
func (r *MemoryLocationRepo) List(_ context.Context) ([]model.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	locs := make([]model.Location, 0, len(r.locs))
	for _, loc := range r.locs {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool {
		a, b := locs[i], locs[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return locs, nil
}

// FindByID は指定IDのゾーンを取得する。見つからない場合はnilを返す。
func (r *MemoryLocationRepo) FindByID(_ context.Context, id string) (*model.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc, ok := r.locs[id]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

// Create はゾーンを作成する。
func (r *MemoryLocationRepo) Create(_ context.Context, loc *model.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.locs[loc.ID] = *loc
	return nil
}

// Update はゾーンを更新する。存在しないIDの場合は何もしない。
func (r *MemoryLocationRepo) Update(_ context.Context, loc *model.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.locs[loc.ID]
	if !ok {
		return nil
	}
	updated := *loc
	updated.CreatedAt = existing.CreatedAt
	r.locs[loc.ID] = updated
	return nil
}

// Delete は指定IDのゾーンを削除する。
func (r *MemoryLocationRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.locs, id)
	return nil
}

// ReplaceAll は全ゾーンを置き換える。
func (r *MemoryLocationRepo) ReplaceAll(_ context.Context, locs []model.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.locs = make(map[string]model.Location, len(locs))
	for _, loc := range locs {
		r.locs[loc.ID] = loc
	}
	return nil
}

// Count はゾーン数を返す。
func (r *MemoryLocationRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.locs), nil
}
