// Package cleanup は期限切れデータセットキャッシュの自動削除ジョブを提供する。
// 期限切れのエントリは読み出し時に存在しないものとして扱われるため、
// このジョブは保存領域の回収のみを目的とし、日次バッチで実行する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultSchedule は削除ジョブの既定の実行スケジュール（毎日3時）。
const DefaultSchedule = "0 3 * * *"

// Purger は指定時刻以前に期限切れとなったエントリを削除するインターフェース。
// repository.DatasetCacheRepository が満たす。
type Purger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	Backend() string
}

// CleanupJob は期限切れキャッシュの削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	cache  Purger
	logger *slog.Logger
	now    func() time.Time
	// Grace は期限切れから削除までの猶予期間（デフォルト: 0）。
	Grace time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(cache Purger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Run は現在時刻からGraceを引いた時刻以前に期限切れとなったエントリを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	before := start.Add(-j.Grace)

	deletedCount, err := j.cache.DeleteExpired(ctx, before)
	if err != nil {
		j.logger.Error("キャッシュクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.String("backend", j.cache.Backend()),
		)
		return fmt.Errorf("キャッシュクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("キャッシュクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.String("backend", j.cache.Backend()),
		slog.Duration("grace", j.Grace),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
