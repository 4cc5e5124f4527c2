// Package model はドメインモデルを定義する。
package model

import "time"

// CacheEntry はキャッシュされたデータセットのスナップショットを表す。
// ExpiresAt を過ぎたエントリは存在しないものとして扱う。
type CacheEntry struct {
	DatasetKey string         `json:"dataset_key"`
	Payload    []RawJobRecord `json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

// Expired は指定時刻においてエントリが期限切れかを返す。
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// SyncKind は同期のトリガー種別を表す。
type SyncKind string

const (
	// SyncKindManual は管理者による手動同期。
	SyncKindManual SyncKind = "manual"
	// SyncKindScheduled はスケジューラによる定期同期。
	SyncKindScheduled SyncKind = "scheduled"
	// SyncKindFetch は読み出し時のキャッシュミスを契機とした同期。
	SyncKindFetch SyncKind = "fetch"
)

// SyncStatus は同期結果のステータスを表す。
type SyncStatus string

const (
	// SyncStatusSuccess は同期成功。
	SyncStatusSuccess SyncStatus = "success"
	// SyncStatusError は同期失敗。
	SyncStatusError SyncStatus = "error"
)

// SyncLogEntry は同期アクティビティログの1件を表す。
type SyncLogEntry struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Kind       SyncKind   `json:"kind"`
	Status     SyncStatus `json:"status"`
	Message    string     `json:"message"`
	ItemsCount int        `json:"items_count"`
}

// CacheStatus はキャッシュと同期の状態を表す。管理画面向け。
type CacheStatus struct {
	Backend    string        `json:"backend"`
	Cached     bool          `json:"cached"`
	DatasetKey string        `json:"dataset_key,omitempty"`
	ItemsCount int           `json:"items_count"`
	CreatedAt  *time.Time    `json:"created_at,omitempty"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
	SyncState  string        `json:"sync_state"`
	LastSync   *SyncLogEntry `json:"last_sync,omitempty"`
	NextSyncAt *time.Time    `json:"next_sync_at,omitempty"`
}
