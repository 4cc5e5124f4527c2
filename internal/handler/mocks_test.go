package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobmapper/internal/apify"
	"github.com/hitoshi/jobmapper/internal/location"
	"github.com/hitoshi/jobmapper/internal/marker"
	"github.com/hitoshi/jobmapper/internal/middleware"
	"github.com/hitoshi/jobmapper/internal/model"
	"github.com/hitoshi/jobmapper/internal/worker/syncjob"
)

// --- モック定義 ---

type mockMarkerService struct {
	loadFn func(ctx context.Context, userID string) (*marker.View, error)
}

func (m *mockMarkerService) Load(ctx context.Context, userID string) (*marker.View, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, userID)
	}
	return &marker.View{Markers: []model.MarkerJob{}}, nil
}

type mockPreferenceService struct {
	getFn            func(ctx context.Context, userID string) (*model.UserPreferences, error)
	recordIgnoredFn  func(ctx context.Context, userID, jobID string) error
	unignoreFn       func(ctx context.Context, userID, jobID string) error
	clearIgnoredFn   func(ctx context.Context, userID string) (int64, error)
	saveLocationFn   func(ctx context.Context, userID string, lat, lng float64, zoom int) error
	setGeolocationFn func(ctx context.Context, userID string, enabled bool) error
}

func (m *mockPreferenceService) Get(ctx context.Context, userID string) (*model.UserPreferences, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return &model.UserPreferences{UserID: userID, IgnoredJobIDs: []string{}, PreferredZoom: model.DefaultZoom}, nil
}

func (m *mockPreferenceService) RecordIgnoredJob(ctx context.Context, userID, jobID string) error {
	if m.recordIgnoredFn != nil {
		return m.recordIgnoredFn(ctx, userID, jobID)
	}
	return nil
}

func (m *mockPreferenceService) UnignoreJob(ctx context.Context, userID, jobID string) error {
	if m.unignoreFn != nil {
		return m.unignoreFn(ctx, userID, jobID)
	}
	return nil
}

func (m *mockPreferenceService) ClearIgnoredJobs(ctx context.Context, userID string) (int64, error) {
	if m.clearIgnoredFn != nil {
		return m.clearIgnoredFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockPreferenceService) SaveUserLocation(ctx context.Context, userID string, lat, lng float64, zoom int) error {
	if m.saveLocationFn != nil {
		return m.saveLocationFn(ctx, userID, lat, lng, zoom)
	}
	return nil
}

func (m *mockPreferenceService) SetGeolocationEnabled(ctx context.Context, userID string, enabled bool) error {
	if m.setGeolocationFn != nil {
		return m.setGeolocationFn(ctx, userID, enabled)
	}
	return nil
}

type mockSyncTrigger struct {
	calls     int
	lastKind  model.SyncKind
	triggerFn func(ctx context.Context, kind model.SyncKind) syncjob.Result
}

func (m *mockSyncTrigger) TriggerSync(ctx context.Context, kind model.SyncKind) syncjob.Result {
	m.calls++
	m.lastKind = kind
	if m.triggerFn != nil {
		return m.triggerFn(ctx, kind)
	}
	return syncjob.Result{Kind: kind, Status: model.SyncStatusSuccess}
}

type mockSyncLog struct {
	lastLimit int
	entries   []model.SyncLogEntry
	err       error
}

func (m *mockSyncLog) Recent(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if m.entries == nil {
		return []model.SyncLogEntry{}, nil
	}
	return m.entries, nil
}

type mockCacheStatus struct {
	status *model.CacheStatus
	err    error
}

func (m *mockCacheStatus) GetCacheStatus(ctx context.Context) (*model.CacheStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.status == nil {
		return &model.CacheStatus{Backend: "memory", SyncState: "idle"}, nil
	}
	return m.status, nil
}

type mockConnectionTester struct {
	ref apify.DatasetRef
	err error
}

func (m *mockConnectionTester) TestConnection(ctx context.Context) (apify.DatasetRef, error) {
	return m.ref, m.err
}

type mockLocationService struct {
	listFn       func(ctx context.Context) ([]model.Location, error)
	createFn     func(ctx context.Context, in location.Input) (*model.Location, error)
	updateFn     func(ctx context.Context, id string, in location.Input) (*model.Location, error)
	deleteFn     func(ctx context.Context, id string) error
	replaceAllFn func(ctx context.Context, inputs []location.Input) ([]model.Location, error)
}

func (m *mockLocationService) List(ctx context.Context) ([]model.Location, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []model.Location{}, nil
}

func (m *mockLocationService) Create(ctx context.Context, in location.Input) (*model.Location, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.Location{ID: "z-new", Label: in.Label, Mode: in.Mode}, nil
}

func (m *mockLocationService) Update(ctx context.Context, id string, in location.Input) (*model.Location, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, in)
	}
	return &model.Location{ID: id, Label: in.Label}, nil
}

func (m *mockLocationService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockLocationService) ReplaceAll(ctx context.Context, inputs []location.Input) ([]model.Location, error) {
	if m.replaceAllFn != nil {
		return m.replaceAllFn(ctx, inputs)
	}
	locs := make([]model.Location, len(inputs))
	for i, in := range inputs {
		locs[i] = model.Location{ID: "z" + string(rune('0'+i)), Label: in.Label, Position: i}
	}
	return locs, nil
}

// --- テストヘルパー ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("JSONの生成に失敗しました: %v", err)
	}
	return bytes.NewReader(b)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("エラーレスポンスのデコードに失敗しました: %v", err)
	}
	return body
}
