// Package syncjob はデータセット同期のオーケストレーションとスケジューリングを提供する。
// 同期は 待機 → 取得中 → 成功/失敗 の順に遷移し、同時に1つしか実行されない。
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/jobmapper/internal/apify"
	"github.com/hitoshi/jobmapper/internal/metrics"
	"github.com/hitoshi/jobmapper/internal/model"
	"github.com/hitoshi/jobmapper/internal/repository"
)

// ErrSyncInProgress は別の同期が実行中のため、トリガーが拒否されたことを表す。
var ErrSyncInProgress = errors.New("sync already running")

// DefaultCacheTTL はキャッシュエントリの既定の有効期間。
const DefaultCacheTTL = 24 * time.Hour

// State は同期の状態を表す。
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateSuccess  State = "success"
	StateError    State = "error"
)

// DatasetSource は最新データセットの取得元。*apify.Client が満たす。
type DatasetSource interface {
	ActorID() string
	FetchLatest(ctx context.Context) (*apify.Dataset, error)
}

// ActivityLog は同期結果の記録先。*synclog.Log が満たす。
type ActivityLog interface {
	Append(ctx context.Context, kind model.SyncKind, status model.SyncStatus, message string, itemsCount int) (*model.SyncLogEntry, error)
}

// Result は1回の同期の結果を表す。
// Err は失敗時のみ設定され、ErrSyncInProgress または apify の取得エラーを包む。
type Result struct {
	Kind       model.SyncKind
	Status     model.SyncStatus
	Message    string
	ItemsCount int
	DatasetKey string
	StartedAt  time.Time
	Duration   time.Duration
	Err        error
}

// Options は同期の動作設定。
type Options struct {
	// CacheTTL はキャッシュエントリの有効期間。0以下の場合はDefaultCacheTTL。
	CacheTTL time.Duration
	// LockPath が空でない場合、プロセス間のファイルロックで同時実行を防ぐ。
	LockPath string
	// Locker はファイルシステムを共有しないプロセス間（別コンテナ）の同時実行を防ぐロック。
	// LockPath と併用した場合は両方を取得する。
	Locker SyncLocker
}

// Orchestrator はデータセットを取得し、キャッシュを置き換えて結果をログに記録する。
// 複数のトリガー（手動・スケジュール・キャッシュミス）から並行に呼び出してよい。
type Orchestrator struct {
	source  DatasetSource
	cache   repository.DatasetCacheRepository
	log     ActivityLog
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	ttl     time.Duration
	lockers []SyncLocker

	running atomic.Bool

	mu         sync.RWMutex
	state      State
	lastResult *Result
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	source DatasetSource,
	cache repository.DatasetCacheRepository,
	log ActivityLog,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Orchestrator {
	if mc == nil {
		mc = metrics.Nop{}
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	o := &Orchestrator{
		source:  source,
		cache:   cache,
		log:     log,
		metrics: mc,
		logger:  logger,
		ttl:     ttl,
		state:   StateIdle,
	}
	if opts.LockPath != "" {
		o.lockers = append(o.lockers, NewFileLocker(opts.LockPath))
	}
	if opts.Locker != nil {
		o.lockers = append(o.lockers, opts.Locker)
	}
	return o
}

// State は現在の同期状態を返す。実行中でなければ直前の結果（未実行ならidle）を返す。
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// LastResult は直前に完了した同期の結果を返す。未実行の場合はnil。
func (o *Orchestrator) LastResult() *Result {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.lastResult == nil {
		return nil
	}
	r := *o.lastResult
	return &r
}

// Running は同期が実行中かを返す。
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// TriggerSync は同期を1回実行する。
// 実行中の場合はキャッシュにもログにも触れずに ErrSyncInProgress を返す。
// 失敗はpanicとして伝播せず、ログに記録したうえでResultに格納する。
func (o *Orchestrator) TriggerSync(ctx context.Context, kind model.SyncKind) Result {
	if !o.running.CompareAndSwap(false, true) {
		return inProgress(kind)
	}
	defer o.running.Store(false)

	release, err := o.acquireLocks(ctx)
	if errors.Is(err, ErrSyncInProgress) {
		o.logger.Info("別のプロセスで同期が実行中のためスキップします",
			slog.String("kind", string(kind)),
		)
		return inProgress(kind)
	}
	if err != nil {
		err = fmt.Errorf("同期ロックの取得に失敗しました: %w", err)
		res := o.fail(ctx, kind, time.Now(), "lock", err.Error(), err)
		o.finish(res)
		return res
	}
	defer release()

	o.setState(StateFetching)
	res := o.runSafely(ctx, kind)
	o.finish(res)
	return res
}

// finish は結果に応じて状態と直前の結果を更新する。
func (o *Orchestrator) finish(res Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if res.Status == model.SyncStatusSuccess {
		o.state = StateSuccess
	} else {
		o.state = StateError
	}
	o.lastResult = &res
}

// acquireLocks はプロセス間ロックを順に取得する。
// いずれかが他で保持されている場合は取得済みのロックを解放して ErrSyncInProgress を返す。
func (o *Orchestrator) acquireLocks(ctx context.Context) (func(), error) {
	releases := make([]func() error, 0, len(o.lockers))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			if err := releases[i](); err != nil {
				o.logger.Warn("同期ロックの解放に失敗しました", slog.String("error", err.Error()))
			}
		}
	}

	for _, l := range o.lockers {
		release, acquired, err := l.TryLock(ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		if !acquired {
			releaseAll()
			return nil, ErrSyncInProgress
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func inProgress(kind model.SyncKind) Result {
	return Result{
		Kind:    kind,
		Status:  model.SyncStatusError,
		Message: "already running",
		Err:     ErrSyncInProgress,
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// runSafely は同期中のpanicをエラー結果に変換する。
func (o *Orchestrator) runSafely(ctx context.Context, kind model.SyncKind) (res Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("同期中に予期しないエラーが発生しました: %v", rec)
			o.logger.Error("同期中にpanicが発生しました",
				slog.String("kind", string(kind)),
				slog.Any("panic", rec),
			)
			res = o.fail(ctx, kind, start, "panic", err.Error(), err)
		}
	}()
	return o.run(ctx, kind, start)
}

func (o *Orchestrator) run(ctx context.Context, kind model.SyncKind, start time.Time) Result {
	o.logger.Info("データセットの同期を開始します",
		slog.String("kind", string(kind)),
		slog.String("actor_id", o.source.ActorID()),
	)

	ds, err := o.source.FetchLatest(ctx)
	o.metrics.RecordFetchLatency(time.Since(start))
	if err != nil {
		return o.fail(ctx, kind, start, failureReason(err), err.Error(), err)
	}
	if len(ds.Records) == 0 {
		err := &apify.FetchError{Kind: apify.ErrEmptyDataset, Resource: "dataset " + ds.Ref.DatasetID}
		return o.fail(ctx, kind, start, failureReason(err), err.Error(), err)
	}
	if ds.Skipped > 0 {
		o.metrics.RecordRecordsSkipped(ds.Skipped)
	}

	key := ds.Ref.Key()
	if err := o.cache.ReplaceAll(ctx, key, ds.Records, o.ttl); err != nil {
		err = fmt.Errorf("キャッシュの更新に失敗しました: %w", err)
		return o.fail(ctx, kind, start, "cache", err.Error(), err)
	}

	count := len(ds.Records)
	message := fmt.Sprintf("データセット %s から %d 件を同期しました", ds.Ref.DatasetID, count)
	if ds.Skipped > 0 {
		message += fmt.Sprintf("（解析できない %d 件を除外）", ds.Skipped)
	}
	o.appendLog(ctx, kind, model.SyncStatusSuccess, message, count)
	o.metrics.RecordSyncSuccess(string(kind), count)

	duration := time.Since(start)
	o.logger.Info("データセットの同期が完了しました",
		slog.String("kind", string(kind)),
		slog.String("dataset_key", key),
		slog.Int("items_count", count),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return Result{
		Kind:       kind,
		Status:     model.SyncStatusSuccess,
		Message:    message,
		ItemsCount: count,
		DatasetKey: key,
		StartedAt:  start,
		Duration:   duration,
	}
}

// fail は失敗をログと同期ログに記録する。キャッシュには触れない。
func (o *Orchestrator) fail(ctx context.Context, kind model.SyncKind, start time.Time, reason, message string, err error) Result {
	o.logger.Error("データセットの同期に失敗しました",
		slog.String("kind", string(kind)),
		slog.String("reason", reason),
		slog.String("error", message),
	)
	o.appendLog(ctx, kind, model.SyncStatusError, message, 0)
	o.metrics.RecordSyncFailure(string(kind), reason)

	return Result{
		Kind:      kind,
		Status:    model.SyncStatusError,
		Message:   message,
		StartedAt: start,
		Duration:  time.Since(start),
		Err:       err,
	}
}

func (o *Orchestrator) appendLog(ctx context.Context, kind model.SyncKind, status model.SyncStatus, message string, items int) {
	// 呼び出し元のキャンセルで結果の記録が失われないようにする
	logCtx := context.WithoutCancel(ctx)
	if _, err := o.log.Append(logCtx, kind, status, message, items); err != nil {
		o.logger.Error("同期ログの記録に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}

// failureReason はメトリクス用の失敗理由ラベルを返す。
func failureReason(err error) string {
	switch {
	case errors.Is(err, apify.ErrNotFound):
		return "not_found"
	case errors.Is(err, apify.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apify.ErrEmptyDataset):
		return "empty"
	case errors.Is(err, apify.ErrDecode):
		return "decode"
	case errors.Is(err, apify.ErrTooLarge):
		return "too_large"
	case errors.Is(err, apify.ErrUnexpectedStatus):
		return "unexpected_status"
	case errors.Is(err, apify.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
