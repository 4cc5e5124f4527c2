package marker

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/jobmapper/internal/model"
	"github.com/hitoshi/jobmapper/internal/repository"
	"github.com/hitoshi/jobmapper/internal/worker/syncjob"
)

// SyncStateReader は同期状態を返す。*syncjob.Orchestrator が満たす。
type SyncStateReader interface {
	State() syncjob.State
}

// NextRunReader は次回の定期同期時刻を返す。*syncjob.Scheduler が満たす。
type NextRunReader interface {
	NextRun() *time.Time
}

// LatestLogReader は最新の同期ログを返す。*synclog.Log が満たす。
type LatestLogReader interface {
	Latest(ctx context.Context) (*model.SyncLogEntry, error)
}

// StatusService は管理画面向けにキャッシュと同期の状態を集約する。
type StatusService struct {
	cache     repository.DatasetCacheRepository
	state     SyncStateReader
	log       LatestLogReader
	scheduler NextRunReader
}

// NewStatusService はStatusServiceの新しいインスタンスを生成する。
// schedulerはスケジューラを起動しないプロセスではnilでよい。
func NewStatusService(cache repository.DatasetCacheRepository, state SyncStateReader, log LatestLogReader, scheduler NextRunReader) *StatusService {
	return &StatusService{cache: cache, state: state, log: log, scheduler: scheduler}
}

// GetCacheStatus は現在のキャッシュ内容と同期状態を返す。
func (s *StatusService) GetCacheStatus(ctx context.Context) (*model.CacheStatus, error) {
	status := &model.CacheStatus{
		Backend:   s.cache.Backend(),
		SyncState: string(syncjob.StateIdle),
	}
	if s.state != nil {
		status.SyncState = string(s.state.State())
	}

	entry, err := s.cache.MostRecentAny(ctx)
	if err != nil {
		return nil, fmt.Errorf("キャッシュ状態の取得に失敗しました: %w", err)
	}
	if entry != nil {
		created, expires := entry.CreatedAt, entry.ExpiresAt
		status.Cached = true
		status.DatasetKey = entry.DatasetKey
		status.ItemsCount = len(entry.Payload)
		status.CreatedAt = &created
		status.ExpiresAt = &expires
	}

	last, err := s.log.Latest(ctx)
	if err != nil {
		return nil, err
	}
	status.LastSync = last

	if s.scheduler != nil {
		status.NextSyncAt = s.scheduler.NextRun()
	}
	return status, nil
}
