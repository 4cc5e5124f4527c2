package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

var errNotMigrated = errors.New("dataset_cache テーブルが存在しません（マイグレーション未適用）")

// Stores は起動時に選択されたリポジトリ一式。
type Stores struct {
	Cache       DatasetCacheRepository
	SyncLog     SyncLogRepository
	Preferences PreferenceRepository
	Locations   LocationRepository
}

// SelectDatasetCache は利用可能なキャッシュバックエンドを起動時に1度だけ選択する。
// PostgreSQL（接続可能かつマイグレーション済み）→ Redis → メモリ の順に試行する。
// 選択結果はプロセスの終了まで変更しない。
func SelectDatasetCache(ctx context.Context, db *sql.DB, rdb *redis.Client, logger *slog.Logger) DatasetCacheRepository {
	if db != nil {
		if err := verifyPostgres(ctx, db); err != nil {
			logger.Warn("PostgreSQLキャッシュを利用できません。フォールバックします",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("キャッシュバックエンドを選択しました", slog.String("backend", BackendPostgres))
			return NewPostgresCacheRepo(db)
		}
	}

	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redisキャッシュを利用できません。フォールバックします",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("キャッシュバックエンドを選択しました", slog.String("backend", BackendRedis))
			return NewRedisCacheRepo(rdb)
		}
	}

	logger.Warn("永続キャッシュを利用できないため、メモリキャッシュを使用します",
		slog.String("backend", BackendMemory),
	)
	return NewMemoryCacheRepo()
}

// NewStores はキャッシュ以外のリポジトリを含む一式を生成する。
// PostgreSQLが利用できない場合、ログ・設定・ゾーンはメモリ実装を使用する。
func NewStores(ctx context.Context, db *sql.DB, rdb *redis.Client, logger *slog.Logger) *Stores {
	stores := &Stores{
		Cache: SelectDatasetCache(ctx, db, rdb, logger),
	}

	if db != nil && verifyPostgres(ctx, db) == nil {
		stores.SyncLog = NewPostgresSyncLogRepo(db)
		stores.Preferences = NewPostgresPreferenceRepo(db)
		stores.Locations = NewPostgresLocationRepo(db)
		return stores
	}

	logger.Warn("PostgreSQLを利用できないため、同期ログ・ユーザー設定・ゾーンはメモリに保持します")
	stores.SyncLog = NewMemorySyncLogRepo()
	stores.Preferences = NewMemoryPreferenceRepo()
	stores.Locations = NewMemoryLocationRepo()
	return stores
}

// verifyPostgres は接続とマイグレーション適用済みであることを確認する。
func verifyPostgres(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'dataset_cache')`,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return errNotMigrated
	}
	return nil
}
