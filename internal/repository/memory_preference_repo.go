package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/jobmapper/internal/model"
)

// MemoryPreferenceRepo はプロセス内メモリのユーザー設定リポジトリ。
type MemoryPreferenceRepo struct {
	mu    sync.RWMutex
	prefs map[string]*memoryPrefs
	now   clock
}

type memoryPrefs struct {
	ignored            map[string]time.Time
	lastLocation       *model.LatLng
	preferredZoom      int
	geolocationEnabled bool
	updatedAt          time.Time
}

// NewMemoryPreferenceRepo はMemoryPreferenceRepoを生成する。
func NewMemoryPreferenceRepo() *MemoryPreferenceRepo {
	return &MemoryPreferenceRepo{
		prefs: make(map[string]*memoryPrefs),
		now:   systemClock,
	}
}

// FindByUserID は指定ユーザーの設定のコピーを返す。見つからない場合はnilを返す。
func (r *MemoryPreferenceRepo) FindByUserID(_ context.Context, userID string) (*model.UserPreferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prefs[userID]
	if !ok {
		return nil, nil
	}

	ids := make([]string, 0, len(p.ignored))
	for id := range p.ignored {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := p.ignored[ids[i]], p.ignored[ids[j]]
		if ti.Equal(tj) {
			return ids[i] < ids[j]
		}
		return ti.Before(tj)
	})

	out := &model.UserPreferences{
		UserID:             userID,
		IgnoredJobIDs:      ids,
		PreferredZoom:      p.preferredZoom,
		GeolocationEnabled: p.geolocationEnabled,
		UpdatedAt:          p.updatedAt,
	}
	if p.lastLocation != nil {
		loc := *p.lastLocation
		out.LastLocation = &loc
	}
	return out, nil
}

// AddIgnoredJob は非表示求人を冪等に追加する。
func (r *MemoryPreferenceRepo) AddIgnoredJob(_ context.Context, userID, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.ensure(userID)
	if _, exists := p.ignored[jobID]; !exists {
		p.ignored[jobID] = r.now()
	}
	p.updatedAt = r.now()
	return nil
}

// RemoveIgnoredJob は非表示求人を解除する。
func (r *MemoryPreferenceRepo) RemoveIgnoredJob(_ context.Context, userID, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.prefs[userID]; ok {
		delete(p.ignored, jobID)
		p.updatedAt = r.now()
	}
	return nil
}

// ClearIgnoredJobs は全ての非表示求人を解除する。
func (r *MemoryPreferenceRepo) ClearIgnoredJobs(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prefs[userID]
	if !ok {
		return 0, nil
	}
	n := int64(len(p.ignored))
	p.ignored = make(map[string]time.Time)
	p.updatedAt = r.now()
	return n, nil
}

// SaveLocation は最後に表示した地図の位置とズームを保存する。
func (r *MemoryPreferenceRepo) SaveLocation(_ context.Context, userID string, loc model.LatLng, zoom int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.ensure(userID)
	p.lastLocation = &loc
	p.preferredZoom = zoom
	p.updatedAt = r.now()
	return nil
}

// SetGeolocationEnabled は位置情報の利用可否を保存する。
func (r *MemoryPreferenceRepo) SetGeolocationEnabled(_ context.Context, userID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.ensure(userID)
	p.geolocationEnabled = enabled
	p.updatedAt = r.now()
	return nil
}

func (r *MemoryPreferenceRepo) ensure(userID string) *memoryPrefs {
	p, ok := r.prefs[userID]
	if !ok {
		p = &memoryPrefs{
			ignored:       make(map[string]time.Time),
			preferredZoom: model.DefaultZoom,
		}
		r.prefs[userID] = p
	}
	return p
}
