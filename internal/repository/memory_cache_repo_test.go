package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/jobmapper/internal/model"
)

func TestCacheRepos_ImplementInterface(t *testing.T) {
	var _ DatasetCacheRepository = (*PostgresCacheRepo)(nil)
	var _ DatasetCacheRepository = (*RedisCacheRepo)(nil)
	var _ DatasetCacheRepository = (*MemoryCacheRepo)(nil)
}

// fakeClock はテスト用の進められる時計。
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func payloadOf(ids ...string) []model.RawJobRecord {
	out := make([]model.RawJobRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.RawJobRecord{"id": id})
	}
	return out
}

// TestMemoryCacheRepo_ClearPutGet は ClearAll → Put → Get で書き込んだ値が返ることを検証する。
func TestMemoryCacheRepo_ClearPutGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCacheRepo()

	_ = repo.Put(ctx, "old", payloadOf("x"), time.Hour)
	if err := repo.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if err := repo.Put(ctx, "k", payloadOf("a", "b"), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entry, err := repo.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry == nil || len(entry.Payload) != 2 || entry.Payload[1]["id"] != "b" {
		t.Fatalf("Get は書き込んだ値を返すべき: %+v", entry)
	}
	if old, _ := repo.Get(ctx, "old"); old != nil {
		t.Error("ClearAll 後に古いエントリが残っている")
	}
}

// TestMemoryCacheRepo_Expiry は期限切れエントリが存在しないものとして扱われることを検証する。
func TestMemoryCacheRepo_Expiry(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	repo := NewMemoryCacheRepo()
	repo.now = clk.now

	_ = repo.Put(ctx, "k", payloadOf("a"), 10*time.Minute)

	clk.advance(10 * time.Minute)
	if entry, _ := repo.Get(ctx, "k"); entry == nil {
		t.Fatal("ExpiresAt ちょうどの時刻ではまだ有効であるべき")
	}
	if n, _ := repo.DeleteExpired(ctx, clk.now()); n != 0 {
		t.Fatalf("ExpiresAt ちょうどの時刻では削除しないべき: %d 件削除", n)
	}

	clk.advance(time.Second)
	if entry, _ := repo.Get(ctx, "k"); entry != nil {
		t.Error("期限切れのエントリは nil を返すべき")
	}
	if entry, _ := repo.MostRecentAny(ctx); entry != nil {
		t.Error("期限切れのエントリは MostRecentAny の対象外であるべき")
	}

	n, err := repo.DeleteExpired(ctx, clk.now())
	if err != nil || n != 1 {
		t.Errorf("DeleteExpired = (%d, %v), want (1, nil)", n, err)
	}
}

// TestMemoryCacheRepo_PutOverwrites は同一キーへの Put が上書きになることを検証する。
func TestMemoryCacheRepo_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	repo := NewMemoryCacheRepo()
	repo.now = clk.now

	_ = repo.Put(ctx, "k", payloadOf("a"), time.Minute)
	clk.advance(30 * time.Second)
	_ = repo.Put(ctx, "k", payloadOf("b"), time.Minute)

	entry, _ := repo.Get(ctx, "k")
	if entry.Payload[0]["id"] != "b" {
		t.Errorf("上書き後の値 = %v, want b", entry.Payload[0]["id"])
	}
	if want := clk.now().Add(time.Minute); !entry.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", entry.ExpiresAt, want)
	}
}

// TestMemoryCacheRepo_MostRecentAny は最も新しく作成された有効なエントリを返すことを検証する。
func TestMemoryCacheRepo_MostRecentAny(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	repo := NewMemoryCacheRepo()
	repo.now = clk.now

	if entry, _ := repo.MostRecentAny(ctx); entry != nil {
		t.Fatal("空のキャッシュでは nil を返すべき")
	}

	_ = repo.Put(ctx, "first", payloadOf("1"), time.Hour)
	clk.advance(time.Minute)
	_ = repo.Put(ctx, "second", payloadOf("2"), time.Hour)

	entry, _ := repo.MostRecentAny(ctx)
	if entry == nil || entry.DatasetKey != "second" {
		t.Errorf("MostRecentAny = %+v, want second", entry)
	}
}

// TestMemoryCacheRepo_ReplaceAll は置き換えで古いキーが消えることを検証する。
func TestMemoryCacheRepo_ReplaceAll(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCacheRepo()

	_ = repo.Put(ctx, "a", payloadOf("1"), time.Hour)
	_ = repo.Put(ctx, "b", payloadOf("2"), time.Hour)
	if err := repo.ReplaceAll(ctx, "c", payloadOf("3"), time.Hour); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	for _, key := range []string{"a", "b"} {
		if entry, _ := repo.Get(ctx, key); entry != nil {
			t.Errorf("%s は削除されるべき", key)
		}
	}
	if entry, _ := repo.Get(ctx, "c"); entry == nil {
		t.Error("c が取得できるべき")
	}
	if repo.Backend() != BackendMemory {
		t.Errorf("Backend = %q", repo.Backend())
	}
}
