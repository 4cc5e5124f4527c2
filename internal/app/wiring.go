package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/jobmapper/internal/apify"
	"github.com/hitoshi/jobmapper/internal/config"
	"github.com/hitoshi/jobmapper/internal/database"
	"github.com/hitoshi/jobmapper/internal/handler"
	"github.com/hitoshi/jobmapper/internal/job"
	"github.com/hitoshi/jobmapper/internal/location"
	"github.com/hitoshi/jobmapper/internal/marker"
	"github.com/hitoshi/jobmapper/internal/metrics"
	"github.com/hitoshi/jobmapper/internal/preference"
	"github.com/hitoshi/jobmapper/internal/repository"
	"github.com/hitoshi/jobmapper/internal/security"
	"github.com/hitoshi/jobmapper/internal/synclog"
	"github.com/hitoshi/jobmapper/internal/worker/cleanup"
	"github.com/hitoshi/jobmapper/internal/worker/syncjob"
)

// components はserve・worker・syncの各コマンドが共有する依存関係一式。
type components struct {
	cfg    *config.Config
	logger *slog.Logger

	db  *sql.DB
	rdb *redis.Client

	registry *prometheus.Registry
	metrics  *metrics.Collector

	stores       *repository.Stores
	client       *apify.Client
	syncLog      *synclog.Log
	orchestrator *syncjob.Orchestrator
	locations    *location.Service
	preferences  *preference.Service
	markers      *marker.Service
	cleanup      *cleanup.CleanupJob
}

// buildComponents は設定に従って接続を開き、全てのサービスを組み立てる。
// DATABASE_URL・REDIS_URL が未設定または接続できない場合はメモリ実装にフォールバックする。
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{cfg: cfg, logger: logger}

	if cfg.DatabaseURL != "" {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		c.db = db
	}

	if cfg.RedisURL != "" {
		rdb, err := database.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redisに接続できません", slog.String("error", err.Error()))
		} else {
			c.rdb = rdb
		}
	}

	c.registry = prometheus.NewRegistry()
	c.metrics = metrics.NewCollector(c.registry)

	c.stores = repository.NewStores(ctx, c.db, c.rdb, logger)

	apiHost, err := hostOf(cfg.ApifyBaseURL)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.client = apify.NewClient(apify.Config{
		BaseURL:     cfg.ApifyBaseURL,
		Token:       cfg.ApifyToken,
		ActorID:     cfg.ApifyActorID,
		Timeout:     cfg.FetchTimeout,
		MaxBodySize: cfg.FetchMaxSize,
	}, security.NewSSRFGuard(apiHost), logger)
	c.client.SetStatusRecorder(c.metrics)

	c.syncLog = synclog.NewLog(c.stores.SyncLog, logger)
	c.orchestrator = syncjob.NewOrchestrator(c.client, c.stores.Cache, c.syncLog, c.metrics, logger, syncjob.Options{
		CacheTTL: cfg.CacheTTL,
		LockPath: cfg.SyncLockPath,
		Locker:   c.syncLocker(),
	})

	c.locations = location.NewService(c.stores.Locations, logger)
	seeded, err := c.locations.SeedFromFile(ctx, cfg.ZonesFile)
	if err != nil {
		c.Close()
		return nil, err
	}
	if seeded > 0 {
		logger.Info("ゾーンをシードしました",
			slog.Int("count", seeded),
			slog.String("path", cfg.ZonesFile),
		)
	}

	c.preferences = preference.NewService(c.stores.Preferences)

	classifier := job.NewClassifier(
		job.NewSanitizedRenderer(security.NewInfoSanitizer()),
		job.Options{RelaxOnEmpty: cfg.MarkersRelaxOnEmpty},
	)
	c.markers = marker.NewService(
		c.stores.Cache, c.stores.Locations, c.stores.Preferences,
		classifier, c.orchestrator, cfg.ApifyActorID, c.metrics, logger,
		marker.Options{FetchOnMiss: cfg.MarkersFetchOnMiss},
	)

	c.cleanup = cleanup.NewCleanupJob(c.stores.Cache, logger)

	return c, nil
}

// syncLocker はAPIサーバーとワーカーの間で共有できる同期ロックを返す。
// 共有ストアがPostgreSQLの場合のみアドバイザリロックを使い、それ以外はnil。
func (c *components) syncLocker() syncjob.SyncLocker {
	if c.stores.Cache.Backend() != repository.BackendPostgres {
		return nil
	}
	return repository.NewPostgresSyncLock(c.db)
}

// newScheduler は定期同期と期限切れキャッシュの削除を登録したスケジューラを返す。
func (c *components) newScheduler(ctx context.Context) (*syncjob.Scheduler, error) {
	sched := syncjob.NewScheduler(c.orchestrator, c.cfg.SyncSchedule, c.logger)
	if err := sched.AddJob(ctx, c.cfg.CleanupSchedule, "cache_cleanup", c.cleanup.Run); err != nil {
		return nil, err
	}
	return sched, nil
}

// healthChecks は選択されたキャッシュバックエンドの疎通確認を返す。メモリの場合は空。
func (c *components) healthChecks() map[string]handler.HealthCheck {
	checks := make(map[string]handler.HealthCheck)
	switch c.stores.Cache.Backend() {
	case repository.BackendPostgres:
		checks[repository.BackendPostgres] = c.db.PingContext
	case repository.BackendRedis:
		checks[repository.BackendRedis] = func(ctx context.Context) error {
			return c.rdb.Ping(ctx).Err()
		}
	}
	return checks
}

// Close は開いた接続を閉じる。
func (c *components) Close() {
	if c.rdb != nil {
		if err := c.rdb.Close(); err != nil {
			c.logger.Warn("Redis接続のクローズに失敗しました", slog.String("error", err.Error()))
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Warn("データベース接続のクローズに失敗しました", slog.String("error", err.Error()))
		}
	}
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("APIFY_BASE_URLの解析に失敗しました: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("APIFY_BASE_URLにホスト名がありません: %s", rawURL)
	}
	return u.Hostname(), nil
}
