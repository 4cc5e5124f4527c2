package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/jobmapper/internal/model"
)

// DefaultSchedule は同期スケジュールの既定値。
const DefaultSchedule = "@every 1h"

// Trigger は同期を実行するインターフェース。*Orchestrator が満たす。
type Trigger interface {
	TriggerSync(ctx context.Context, kind model.SyncKind) Result
}

// Scheduler はcron式に従って定期同期を実行する。
// 手動トリガーとはOrchestratorのガードを共有するため、同時に実行されることはない。
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	trigger Trigger
	logger  *slog.Logger

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
	wg      sync.WaitGroup
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// specが空の場合はDefaultScheduleを使う。
func NewScheduler(trigger Trigger, spec string, logger *slog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSchedule
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cronLogger{logger: logger})),
		spec:    spec,
		trigger: trigger,
		logger:  logger,
	}
}

// ValidateSchedule はcron式が解釈可能かを検証する。
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("同期スケジュールの解析に失敗しました: %w", err)
	}
	return nil
}

// AddJob は同期以外の定期ジョブ（期限切れキャッシュの削除など）を登録する。Startの前に呼び出す。
func (s *Scheduler) AddJob(ctx context.Context, spec, name string, job func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := job(ctx); err != nil {
			s.logger.Error("定期ジョブの実行に失敗しました",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("定期ジョブ %s の登録に失敗しました: %w", name, err)
	}
	return nil
}

// Start は定期同期を登録してスケジューラを起動し、起動直後に1回同期する。
// ctxは各同期に渡され、キャンセルされると実行中の取得が中断される。
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("スケジューラは既に起動しています")
	}

	id, err := s.cron.AddFunc(s.spec, func() { s.runSync(ctx) })
	if err != nil {
		return fmt.Errorf("同期スケジュールの登録に失敗しました: %w", err)
	}
	s.entryID = id
	s.started = true
	s.cron.Start()

	s.logger.Info("同期スケジューラを開始しました",
		slog.String("schedule", s.spec),
	)

	// 起動直後に1回実行
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync(ctx)
	}()

	return nil
}

// Stop はスケジューラを停止し、実行中のジョブの完了を待つ。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}

	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("同期スケジューラを停止しました")
}

// NextRun は次回の定期同期の予定時刻を返す。未起動の場合はnil。
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	id, started := s.entryID, s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	next := s.cron.Entry(id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

func (s *Scheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res := s.trigger.TriggerSync(ctx, model.SyncKindScheduled)
	if errors.Is(res.Err, ErrSyncInProgress) {
		s.logger.Info("同期が実行中のため定期同期をスキップしました")
	}
}

// cronLogger はcronの内部ログをslogに転送する。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
