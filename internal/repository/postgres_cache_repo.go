package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/jobmapper/internal/model"
)

// PostgresCacheRepo はPostgreSQLを使用したデータセットキャッシュ。
// ペイロードはJSONBとして保存する。
type PostgresCacheRepo struct {
	db  *sql.DB
	now clock
}

// NewPostgresCacheRepo はPostgresCacheRepoを生成する。
func NewPostgresCacheRepo(db *sql.DB) *PostgresCacheRepo {
	return &PostgresCacheRepo{db: db, now: systemClock}
}

// Backend はバックエンド名を返す。
func (r *PostgresCacheRepo) Backend() string {
	return BackendPostgres
}

// Get は指定キーの有効なエントリを取得する。存在しないか期限切れの場合はnilを返す。
// ExpiresAt ちょうどの時刻までは有効として扱う（model.CacheEntry.Expired と同じ境界）。
func (r *PostgresCacheRepo) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT dataset_key, payload, created_at, expires_at
		 FROM dataset_cache
		 WHERE dataset_key = $1 AND expires_at >= $2`,
		key, r.now(),
	)
	entry, err := scanCacheEntry(row)
	if err != nil {
		return nil, fmt.Errorf("キャッシュの取得に失敗しました: %w", err)
	}
	return entry, nil
}

// MostRecentAny は最も新しく作成された有効なエントリを返す。なければnil。
func (r *PostgresCacheRepo) MostRecentAny(ctx context.Context) (*model.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT dataset_key, payload, created_at, expires_at
		 FROM dataset_cache
		 WHERE expires_at >= $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		r.now(),
	)
	entry, err := scanCacheEntry(row)
	if err != nil {
		return nil, fmt.Errorf("最新キャッシュの取得に失敗しました: %w", err)
	}
	return entry, nil
}

// Put はエントリをUPSERTする。
func (r *PostgresCacheRepo) Put(ctx context.Context, key string, payload []model.RawJobRecord, ttl time.Duration) error {
	return r.put(ctx, r.db, key, payload, ttl)
}

// ClearAll は全エントリを削除する。
func (r *PostgresCacheRepo) ClearAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM dataset_cache`); err != nil {
		return fmt.Errorf("キャッシュの全削除に失敗しました: %w", err)
	}
	return nil
}

// ReplaceAll は全削除と書き込みを1つのトランザクションで実行する。
// コミットまで他の接続は置き換え前のエントリを参照する。
func (r *PostgresCacheRepo) ReplaceAll(ctx context.Context, key string, payload []model.RawJobRecord, ttl time.Duration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_cache`); err != nil {
		return fmt.Errorf("キャッシュの全削除に失敗しました: %w", err)
	}
	if err := r.put(ctx, tx, key, payload, ttl); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// DeleteExpired はbeforeの時点で期限切れ（ExpiresAt < before）のエントリを削除する。
func (r *PostgresCacheRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM dataset_cache WHERE expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れキャッシュの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *PostgresCacheRepo) put(ctx context.Context, ex execer, key string, payload []model.RawJobRecord, ttl time.Duration) error {
	data, err := encodeJSONBPayload(payload)
	if err != nil {
		return fmt.Errorf("ペイロードのエンコードに失敗しました: %w", err)
	}

	now := r.now()
	_, err = ex.ExecContext(ctx,
		`INSERT INTO dataset_cache (dataset_key, payload, item_count, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (dataset_key) DO UPDATE SET
		     payload = EXCLUDED.payload,
		     item_count = EXCLUDED.item_count,
		     created_at = EXCLUDED.created_at,
		     expires_at = EXCLUDED.expires_at`,
		key, data, len(payload), now, now.Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("キャッシュの保存に失敗しました: %w", err)
	}
	return nil
}

// encodeJSONBPayload はペイロードをJSONBに保存できる形にエンコードする。
// JSONBは文字列中のNUL（\u0000）を受け付けないため、キーと値から取り除く。
func encodeJSONBPayload(payload []model.RawJobRecord) ([]byte, error) {
	cleaned := make([]any, len(payload))
	for i, rec := range payload {
		cleaned[i] = stripNUL(map[string]any(rec))
	}
	return json.Marshal(cleaned)
}

func stripNUL(v any) any {
	switch t := v.(type) {
	case string:
		return strings.ReplaceAll(t, "\x00", "")
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[strings.ReplaceAll(k, "\x00", "")] = stripNUL(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stripNUL(val)
		}
		return out
	}
	return v
}

func scanCacheEntry(row *sql.Row) (*model.CacheEntry, error) {
	entry := &model.CacheEntry{}
	var data []byte

	err := row.Scan(&entry.DatasetKey, &data, &entry.CreatedAt, &entry.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &entry.Payload); err != nil {
		return nil, fmt.Errorf("ペイロードのデコードに失敗しました: %w", err)
	}
	return entry, nil
}
