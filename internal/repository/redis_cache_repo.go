package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/jobmapper/internal/model"
)

// Redisのキー。エントリ本体は entryPrefix+datasetKey、存在するキーの一覧は indexKey のセットに保持する。
const (
	redisEntryPrefix = "jobmapper:cache:entry:"
	redisIndexKey    = "jobmapper:cache:index"
)

// RedisCacheRepo はRedisを使用したデータセットキャッシュ。
// 期限はRedisのキーTTLで管理し、エントリ本体にも ExpiresAt を保持する。
type RedisCacheRepo struct {
	rdb *redis.Client
	now clock
}

// NewRedisCacheRepo はRedisCacheRepoを生成する。
func NewRedisCacheRepo(rdb *redis.Client) *RedisCacheRepo {
	return &RedisCacheRepo{rdb: rdb, now: systemClock}
}

// Backend はバックエンド名を返す。
func (r *RedisCacheRepo) Backend() string {
	return BackendRedis
}

// Get は指定キーの有効なエントリを取得する。
func (r *RedisCacheRepo) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	data, err := r.rdb.Get(ctx, redisEntryPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キャッシュの取得に失敗しました: %w", err)
	}

	entry, err := decodeRedisEntry(data)
	if err != nil {
		return nil, err
	}
	if entry.Expired(r.now()) {
		return nil, nil
	}
	return entry, nil
}

// MostRecentAny はインデックス内の有効なエントリのうち最も新しいものを返す。
func (r *RedisCacheRepo) MostRecentAny(ctx context.Context) (*model.CacheEntry, error) {
	keys, err := r.rdb.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("キャッシュインデックスの取得に失敗しました: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("キャッシュの一括取得に失敗しました: %w", err)
	}

	now := r.now()
	var latest *model.CacheEntry
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		entry, err := decodeRedisEntry([]byte(s))
		if err != nil || entry.Expired(now) {
			continue
		}
		if latest == nil || entry.CreatedAt.After(latest.CreatedAt) {
			latest = entry
		}
	}
	return latest, nil
}

// Put はエントリをTTL付きで保存し、インデックスに登録する。
func (r *RedisCacheRepo) Put(ctx context.Context, key string, payload []model.RawJobRecord, ttl time.Duration) error {
	data, err := r.encodeEntry(key, payload, ttl)
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisEntryPrefix+key, data, ttl)
		pipe.SAdd(ctx, redisIndexKey, redisEntryPrefix+key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("キャッシュの保存に失敗しました: %w", err)
	}
	return nil
}

// ClearAll はインデックスに登録された全エントリとインデックス自体を削除する。
func (r *RedisCacheRepo) ClearAll(ctx context.Context) error {
	keys, err := r.rdb.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return fmt.Errorf("キャッシュインデックスの取得に失敗しました: %w", err)
	}

	if err := r.rdb.Del(ctx, append(keys, redisIndexKey)...).Err(); err != nil {
		return fmt.Errorf("キャッシュの全削除に失敗しました: %w", err)
	}
	return nil
}

// ReplaceAll は既存エントリの削除と新しいエントリの保存を MULTI/EXEC で実行する。
func (r *RedisCacheRepo) ReplaceAll(ctx context.Context, key string, payload []model.RawJobRecord, ttl time.Duration) error {
	data, err := r.encodeEntry(key, payload, ttl)
	if err != nil {
		return err
	}

	keys, err := r.rdb.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return fmt.Errorf("キャッシュインデックスの取得に失敗しました: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, append(keys, redisIndexKey)...)
		pipe.Set(ctx, redisEntryPrefix+key, data, ttl)
		pipe.SAdd(ctx, redisIndexKey, redisEntryPrefix+key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("キャッシュの置き換えに失敗しました: %w", err)
	}
	return nil
}

// DeleteExpired はTTLにより消えたキーをインデックスから取り除く。
// エントリ本体はRedisが削除するため、返す件数はインデックスから除いた件数となる。
func (r *RedisCacheRepo) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	keys, err := r.rdb.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("キャッシュインデックスの取得に失敗しました: %w", err)
	}

	var stale []any
	for _, k := range keys {
		n, err := r.rdb.Exists(ctx, k).Result()
		if err != nil {
			return 0, fmt.Errorf("キャッシュキーの確認に失敗しました: %w", err)
		}
		if n == 0 {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	removed, err := r.rdb.SRem(ctx, redisIndexKey, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("キャッシュインデックスの更新に失敗しました: %w", err)
	}
	return removed, nil
}

func (r *RedisCacheRepo) encodeEntry(key string, payload []model.RawJobRecord, ttl time.Duration) ([]byte, error) {
	now := r.now()
	data, err := json.Marshal(model.CacheEntry{
		DatasetKey: key,
		Payload:    payload,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("ペイロードのエンコードに失敗しました: %w", err)
	}
	return data, nil
}

func decodeRedisEntry(data []byte) (*model.CacheEntry, error) {
	entry := &model.CacheEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("ペイロードのデコードに失敗しました: %w", err)
	}
	return entry, nil
}
