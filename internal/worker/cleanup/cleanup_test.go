package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/jobmapper/internal/model"
	"github.com/hitoshi/jobmapper/internal/repository"
)

// mockPurger は DeleteExpired の呼び出し内容を記録する。
type mockPurger struct {
	called  bool
	before  time.Time
	deleted int64
	err     error
}

func (m *mockPurger) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.called = true
	m.before = before
	return m.deleted, m.err
}

func (m *mockPurger) Backend() string { return "mock" }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewCleanupJob_ReturnsNonNil(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{}, newTestLogger(&buf))

	if job == nil {
		t.Fatal("NewCleanupJob は nil を返してはならない")
	}
	if job.Grace != 0 {
		t.Errorf("Grace = %v, want 0", job.Grace)
	}
}

func TestCleanupJob_Run_PassesCutoffWithGrace(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockPurger{deleted: 3}
	job := NewCleanupJob(mock, newTestLogger(&buf))
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }
	job.Grace = 6 * time.Hour

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run でエラーが発生: %v", err)
	}
	if !mock.called {
		t.Fatal("DeleteExpired が呼ばれていない")
	}
	if want := now.Add(-6 * time.Hour); !mock.before.Equal(want) {
		t.Errorf("before = %v, want %v", mock.before, want)
	}
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{deleted: 42}, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run でエラーが発生: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("ログの解析に失敗: %v (%s)", err, buf.String())
	}
	if entry["deleted_count"] != float64(42) {
		t.Errorf("deleted_count = %v, want 42", entry["deleted_count"])
	}
	if entry["backend"] != "mock" {
		t.Errorf("backend = %v, want mock", entry["backend"])
	}
}

func TestCleanupJob_Run_ReturnsErrorOnFailure(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{err: errors.New("connection refused")}, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DeleteExpired 失敗時はエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("エラーに原因が含まれるべき: %v", err)
	}
	if !strings.Contains(buf.String(), "キャッシュクリーンアップジョブの実行に失敗しました") {
		t.Errorf("エラーログが出力されるべき: %s", buf.String())
	}
}

// TestCleanupJob_Run_MemoryCache はメモリキャッシュの期限切れエントリのみ削除されることを検証する。
func TestCleanupJob_Run_MemoryCache(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	cache := repository.NewMemoryCacheRepo()
	payload := []model.RawJobRecord{{"id": "a"}}
	_ = cache.Put(ctx, "live", payload, time.Hour)
	_ = cache.Put(ctx, "stale", payload, time.Minute)

	job := NewCleanupJob(cache, newTestLogger(&buf))
	job.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run でエラーが発生: %v", err)
	}
	if entry, _ := cache.Get(ctx, "live"); entry == nil {
		t.Error("有効期限内のエントリは残るべき")
	}
	if n, _ := cache.DeleteExpired(ctx, time.Now().Add(10*time.Minute)); n != 0 {
		t.Errorf("期限切れエントリが残っている: %d 件", n)
	}
}
