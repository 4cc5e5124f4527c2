// Package repository はデータ永続化のインターフェースと実装を定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/jobmapper/internal/model"
)

// バックエンド名。GetCacheStatus とメトリクスのラベルに使用する。
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// DatasetCacheRepository はデータセットキャッシュの永続化インターフェース。
// 呼び出し側はどのバックエンドが有効かを前提にしない。
type DatasetCacheRepository interface {
	// Get は指定キーのエントリを取得する。存在しないか期限切れの場合はnilを返す。
	Get(ctx context.Context, key string) (*model.CacheEntry, error)

	// Put はエントリをUPSERTする。同一キーは上書きし、ExpiresAt = now + ttl とする。
	Put(ctx context.Context, key string, payload []model.RawJobRecord, ttl time.Duration) error

	// ClearAll は全エントリを削除する。
	ClearAll(ctx context.Context) error

	// MostRecentAny はキーを問わず最も新しく作成された有効なエントリを返す。なければnil。
	MostRecentAny(ctx context.Context) (*model.CacheEntry, error)

	// ReplaceAll は ClearAll と Put を1つの原子的な操作として実行する。
	// 並行する読み出しは置き換え前か置き換え後のいずれかのスナップショットのみを観測する。
	ReplaceAll(ctx context.Context, key string, payload []model.RawJobRecord, ttl time.Duration) error

	// DeleteExpired は before 時点で期限切れのエントリを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// Backend はバックエンド名を返す。
	Backend() string
}

// SyncLogRepository は同期アクティビティログの永続化インターフェース。
type SyncLogRepository interface {
	// Append はエントリを追加する。IDとTimestampは呼び出し側が設定する。
	Append(ctx context.Context, entry *model.SyncLogEntry) error

	// Recent は新しい順に最大limit件のエントリを返す。
	Recent(ctx context.Context, limit int) ([]model.SyncLogEntry, error)

	// TrimTo は新しいlimit件を残して古いエントリを削除し、削除件数を返す。
	TrimTo(ctx context.Context, limit int) (int64, error)
}

// PreferenceRepository はユーザー設定の永続化インターフェース。
// 設定は初回の書き込み時に作成される。
type PreferenceRepository interface {
	// FindByUserID は指定ユーザーの設定を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.UserPreferences, error)

	// AddIgnoredJob は非表示求人を冪等に追加する。
	AddIgnoredJob(ctx context.Context, userID, jobID string) error

	// RemoveIgnoredJob は非表示求人を解除する。存在しない場合も成功とする。
	RemoveIgnoredJob(ctx context.Context, userID, jobID string) error

	// ClearIgnoredJobs は全ての非表示求人を解除し、解除件数を返す。
	ClearIgnoredJobs(ctx context.Context, userID string) (int64, error)

	// SaveLocation は最後に表示した地図の位置とズームを保存する。
	SaveLocation(ctx context.Context, userID string, loc model.LatLng, zoom int) error

	// SetGeolocationEnabled は位置情報の利用可否を保存する。
	SetGeolocationEnabled(ctx context.Context, userID string, enabled bool) error
}

// LocationRepository は判定ゾーンの永続化インターフェース。
type LocationRepository interface {
	// List は全ゾーンを position, created_at の昇順で返す。
	List(ctx context.Context) ([]model.Location, error)

	// FindByID は指定IDのゾーンを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Location, error)

	// Create はゾーンを作成する。
	Create(ctx context.Context, loc *model.Location) error

	// Update はゾーンを更新する。
	Update(ctx context.Context, loc *model.Location) error

	// Delete は指定IDのゾーンを削除する。
	Delete(ctx context.Context, id string) error

	// ReplaceAll は全ゾーンを一括で置き換える。
	ReplaceAll(ctx context.Context, locs []model.Location) error

	// Count はゾーン数を返す。
	Count(ctx context.Context) (int, error)
}
