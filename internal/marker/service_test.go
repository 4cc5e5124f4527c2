package marker

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/jobmapper/internal/apify"
	"github.com/hitoshi/jobmapper/internal/job"
	"github.com/hitoshi/jobmapper/internal/model"
	"github.com/hitoshi/jobmapper/internal/repository"
	"github.com/hitoshi/jobmapper/internal/worker/syncjob"
)

const testActor = "user~indeed"

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// stubTrigger は同期の結果を固定で返し、成功時にキャッシュへ書き込む。
type stubTrigger struct {
	cache  repository.DatasetCacheRepository
	result syncjob.Result
	fill   []model.RawJobRecord
	calls  int
	last   *syncjob.Result
}

func (s *stubTrigger) TriggerSync(ctx context.Context, kind model.SyncKind) syncjob.Result {
	s.calls++
	if s.result.Err == nil && s.fill != nil {
		_ = s.cache.ReplaceAll(ctx, s.result.DatasetKey, s.fill, time.Hour)
	}
	res := s.result
	res.Kind = kind
	return res
}

func (s *stubTrigger) LastResult() *syncjob.Result { return s.last }

type fixture struct {
	cache *repository.MemoryCacheRepo
	zones *repository.MemoryLocationRepo
	prefs *repository.MemoryPreferenceRepo
	buf   bytes.Buffer
}

func newFixture() *fixture {
	return &fixture{
		cache: repository.NewMemoryCacheRepo(),
		zones: repository.NewMemoryLocationRepo(),
		prefs: repository.NewMemoryPreferenceRepo(),
	}
}

func (f *fixture) service(trigger SyncTrigger, opts Options) *Service {
	classifier := job.NewClassifier(nil, job.Options{})
	return NewService(f.cache, f.zones, f.prefs, classifier, trigger, testActor, nil, newTestLogger(&f.buf), opts)
}

func record(id string, lat, lng float64) model.RawJobRecord {
	return model.RawJobRecord{"id": id, "title": "Job " + id, "latitude": lat, "longitude": lng}
}

func datasetKey(id string) string {
	return apify.ActorKeyPrefix(testActor) + id
}

func TestGetFilteredMarkers_CacheMissReturnsEmpty(t *testing.T) {
	f := newFixture()
	svc := f.service(nil, Options{})

	markers, err := svc.GetFilteredMarkers(context.Background(), "u1")
	if err != nil {
		t.Fatalf("キャッシュミスはエラーにならないべき: %v", err)
	}
	if markers == nil || len(markers) != 0 {
		t.Errorf("markers = %v, want 空のスライス", markers)
	}
}

func TestGetFilteredMarkers_NormalizesAndFilters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	payload := []model.RawJobRecord{
		record("near", 40.0, -73.0),
		record("far", 41.0, -73.0),
		{"id": "nocoords", "title": "座標なし"},
	}
	_ = f.cache.Put(ctx, datasetKey("ds1"), payload, time.Hour)
	_ = f.zones.Create(ctx, &model.Location{ID: "z1", Latitude: 40.0, Longitude: -73.0, RadiusMeters: 5000, Mode: model.ZoneModeInside})

	view, err := f.service(nil, Options{}).Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load でエラー: %v", err)
	}
	if len(view.Markers) != 1 || view.Markers[0].ID != "near" {
		t.Errorf("markers = %+v, want [near]", view.Markers)
	}
	if view.Total != 2 || view.Dropped != 1 || !view.Cached {
		t.Errorf("view = %+v", view)
	}
	if view.DatasetKey != datasetKey("ds1") {
		t.Errorf("DatasetKey = %q", view.DatasetKey)
	}
}

func TestGetFilteredMarkers_ExcludesIgnoredJobs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_ = f.cache.Put(ctx, datasetKey("ds1"), []model.RawJobRecord{record("a", 1, 1), record("b", 1, 1)}, time.Hour)
	_ = f.prefs.AddIgnoredJob(ctx, "u1", "a")

	svc := f.service(nil, Options{})
	markers, _ := svc.GetFilteredMarkers(ctx, "u1")
	if len(markers) != 1 || markers[0].ID != "b" {
		t.Errorf("u1 の markers = %+v, want [b]", markers)
	}

	// 他のユーザーには影響しない
	markers, _ = svc.GetFilteredMarkers(ctx, "u2")
	if len(markers) != 2 {
		t.Errorf("u2 の件数 = %d, want 2", len(markers))
	}
}

func TestGetFilteredMarkers_IgnoresOtherActorCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_ = f.cache.Put(ctx, apify.ActorKeyPrefix("someone~else")+"ds9", []model.RawJobRecord{record("x", 1, 1)}, time.Hour)

	markers, err := f.service(nil, Options{}).GetFilteredMarkers(ctx, "u1")
	if err != nil || len(markers) != 0 {
		t.Errorf("別アクターのキャッシュは使わないべき: (%v, %v)", markers, err)
	}
}

func TestGetFilteredMarkers_PrefersLastSyncedKey(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_ = f.cache.Put(ctx, datasetKey("ds1"), []model.RawJobRecord{record("first", 1, 1)}, time.Hour)
	_ = f.cache.Put(ctx, datasetKey("ds2"), []model.RawJobRecord{record("second", 1, 1)}, time.Hour)

	trigger := &stubTrigger{last: &syncjob.Result{DatasetKey: datasetKey("ds1")}}
	view, _ := f.service(trigger, Options{}).Load(ctx, "u1")
	if view.DatasetKey != datasetKey("ds1") {
		t.Errorf("DatasetKey = %q, want 直近の同期のキー", view.DatasetKey)
	}
}

func TestGetFilteredMarkers_FetchOnMiss(t *testing.T) {
	f := newFixture()
	trigger := &stubTrigger{
		cache:  f.cache,
		result: syncjob.Result{Status: model.SyncStatusSuccess, DatasetKey: datasetKey("ds1")},
		fill:   []model.RawJobRecord{record("fresh", 1, 1)},
	}

	markers, err := f.service(trigger, Options{FetchOnMiss: true}).GetFilteredMarkers(context.Background(), "u1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if trigger.calls != 1 {
		t.Errorf("同期の呼び出し回数 = %d, want 1", trigger.calls)
	}
	if len(markers) != 1 || markers[0].ID != "fresh" {
		t.Errorf("markers = %+v, want [fresh]", markers)
	}
}

func TestGetFilteredMarkers_FetchOnMissInProgress(t *testing.T) {
	f := newFixture()
	trigger := &stubTrigger{result: syncjob.Result{Err: syncjob.ErrSyncInProgress}}

	markers, err := f.service(trigger, Options{FetchOnMiss: true}).GetFilteredMarkers(context.Background(), "u1")
	if err != nil || len(markers) != 0 {
		t.Errorf("同期中は空のマーカーを返すべき: (%v, %v)", markers, err)
	}
}

func TestGetFilteredMarkers_NoFetchWhenDisabled(t *testing.T) {
	f := newFixture()
	trigger := &stubTrigger{}

	_, _ = f.service(trigger, Options{}).GetFilteredMarkers(context.Background(), "u1")
	if trigger.calls != 0 {
		t.Errorf("FetchOnMiss 無効時は同期しないべき: %d 回", trigger.calls)
	}
}
