// Package app はCLIの各サブコマンドとアプリケーションの起動処理を提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/jobmapper/internal/config"
	"github.com/hitoshi/jobmapper/internal/database"
	"github.com/hitoshi/jobmapper/internal/handler"
	"github.com/hitoshi/jobmapper/internal/logger"
	"github.com/hitoshi/jobmapper/internal/marker"
	"github.com/hitoshi/jobmapper/internal/metrics"
	"github.com/hitoshi/jobmapper/internal/middleware"
	"github.com/hitoshi/jobmapper/internal/model"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数を読み込み、LOG_LEVELを反映する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	log := logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, nil, err
	}

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMでコマンドのコンテキストをキャンセルする。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// runServe はAPIサーバーモードで起動する。
// SCHEDULER_ENABLED が true の場合は同じプロセスで定期同期も行う。
func runServe(ctx context.Context, w io.Writer) error {
	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	var nextRun marker.NextRunReader
	if cfg.SchedulerEnabled {
		sched, err := c.newScheduler(ctx)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
		nextRun = sched
	}

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSync), log)
	defer rl.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		UserIDHeader:      cfg.UserIDHeader,
		AllowUser:         cfg.UserAllowed,
		AdminToken:        cfg.AdminToken,
		RateLimiter:       rl,
		HealthChecks:      c.healthChecks(),
		MetricsHandler:    metrics.Handler(c.registry),
		MarkerService:     c.markers,
		PreferenceService: c.preferences,
		SyncTrigger:       c.orchestrator,
		SyncLog:           c.syncLog,
		CacheStatus:       marker.NewStatusService(c.stores.Cache, c.orchestrator, c.syncLog, nextRun),
		ConnectionTester:  c.client,
		LocationService:   c.locations,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// 手動同期はリクエスト内で完了を待つため、取得のタイムアウトより長くする
		WriteTimeout: cfg.FetchTimeout*2 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("APIサーバーを起動します",
			slog.String("addr", server.Addr),
			slog.String("cache_backend", c.stores.Cache.Backend()),
			slog.Bool("scheduler_enabled", cfg.SchedulerEnabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("APIサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("APIサーバーを正常に停止しました")
	return nil
}

// runWorker はワーカーモードで起動する。
// 定期同期と期限切れキャッシュの削除のみを行い、シグナル受信まで待機する。
func runWorker(ctx context.Context, w io.Writer) error {
	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	sched, err := c.newScheduler(ctx)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	log.Info("ワーカーを起動しました",
		slog.String("sync_schedule", cfg.SyncSchedule),
		slog.String("cleanup_schedule", cfg.CleanupSchedule),
		slog.String("cache_backend", c.stores.Cache.Backend()),
	)

	<-ctx.Done()
	log.Info("ワーカーを停止します")
	sched.Stop()
	log.Info("ワーカーを正常に停止しました")
	return nil
}

// runSync は手動同期を1回実行し、結果をoutに書き込む。失敗した場合はエラーを返す。
func runSync(ctx context.Context, w, out io.Writer) error {
	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	res := c.orchestrator.TriggerSync(ctx, model.SyncKindManual)
	fmt.Fprintf(out, "status=%s items=%d dataset=%s duration=%s\n%s\n",
		res.Status, res.ItemsCount, res.DatasetKey, res.Duration.Round(time.Millisecond), res.Message)
	if res.Err != nil {
		return fmt.Errorf("sync failed: %w", res.Err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを操作する。
// directionは up・down・version のいずれかで、downの場合はstepsだけ取り消す。
func runMigrate(w, out io.Writer, direction string, steps int) error {
	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	log.Info("データベースマイグレーションを実行します",
		slog.String("direction", direction),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch direction {
	case "up":
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "down":
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	case "version":
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate direction: %s", direction)
	}

	log.Info("データベースマイグレーションが完了しました", slog.String("direction", direction))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用。/health にHTTPリクエストを送り、200以外はエラーを返す。
func runHealthcheck(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func healthcheckURL(port string) string {
	return fmt.Sprintf("http://localhost:%s/health", port)
}

func defaultPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
