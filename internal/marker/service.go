// Package marker はキャッシュ済みデータセットからユーザーごとの地図マーカーを組み立てる。
package marker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/jobmapper/internal/apify"
	"github.com/hitoshi/jobmapper/internal/job"
	"github.com/hitoshi/jobmapper/internal/metrics"
	"github.com/hitoshi/jobmapper/internal/model"
	"github.com/hitoshi/jobmapper/internal/repository"
	"github.com/hitoshi/jobmapper/internal/worker/syncjob"
)

// SyncTrigger はキャッシュミス時の同期に使うインターフェース。*syncjob.Orchestrator が満たす。
type SyncTrigger interface {
	TriggerSync(ctx context.Context, kind model.SyncKind) syncjob.Result
	LastResult() *syncjob.Result
}

// View はマーカーの取得結果を表す。
type View struct {
	Markers    []model.MarkerJob `json:"markers"`
	DatasetKey string            `json:"dataset_key,omitempty"`
	// Total は正規化できた求人の件数（フィルタ前）。
	Total   int  `json:"total"`
	Dropped int  `json:"dropped"`
	Relaxed bool `json:"relaxed"`
	Cached  bool `json:"cached"`
}

// Options はマーカーサービスの動作設定。
type Options struct {
	// FetchOnMiss が true の場合、キャッシュミス時に同期を1回試みる。
	FetchOnMiss bool
}

// Service はキャッシュ・ゾーン・ユーザー設定を組み合わせてマーカーを返す。
type Service struct {
	cache      repository.DatasetCacheRepository
	zones      repository.LocationRepository
	prefs      repository.PreferenceRepository
	classifier *job.Classifier
	trigger    SyncTrigger
	actorID    string
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	opts       Options
}

// NewService はServiceの新しいインスタンスを生成する。
// triggerがnilの場合、キャッシュミス時の同期は行わない。
func NewService(
	cache repository.DatasetCacheRepository,
	zones repository.LocationRepository,
	prefs repository.PreferenceRepository,
	classifier *job.Classifier,
	trigger SyncTrigger,
	actorID string,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		cache:      cache,
		zones:      zones,
		prefs:      prefs,
		classifier: classifier,
		trigger:    trigger,
		actorID:    actorID,
		metrics:    mc,
		logger:     logger,
		opts:       opts,
	}
}

// GetFilteredMarkers はユーザーに表示するマーカーを返す。
// キャッシュが空の場合はエラーではなく空のスライスを返す。
func (s *Service) GetFilteredMarkers(ctx context.Context, userID string) ([]model.MarkerJob, error) {
	view, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return view.Markers, nil
}

// Load はGetFilteredMarkersと同じ判定を行い、件数などの付帯情報を含めて返す。
func (s *Service) Load(ctx context.Context, userID string) (*View, error) {
	entry := s.cachedEntry(ctx)
	if entry == nil && s.opts.FetchOnMiss && s.trigger != nil {
		res := s.trigger.TriggerSync(ctx, model.SyncKindFetch)
		switch {
		case res.Err == nil:
			entry = s.cachedEntry(ctx)
		case errors.Is(res.Err, syncjob.ErrSyncInProgress):
			s.logger.Info("同期が実行中のため空のマーカーを返します")
		default:
			s.logger.Warn("キャッシュミス時の同期に失敗しました",
				slog.String("error", res.Message),
			)
		}
	}
	if entry == nil {
		return &View{Markers: []model.MarkerJob{}}, nil
	}

	zones, err := s.zones.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ゾーン一覧の取得に失敗しました: %w", err)
	}

	ignored := map[string]struct{}{}
	if userID != "" {
		prefs, err := s.prefs.FindByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
		}
		if prefs != nil {
			ignored = prefs.IgnoredSet()
		}
	}

	jobs, dropped := job.NormalizeAll(entry.Payload)
	result := s.classifier.ClassifyDetailed(jobs, zones, ignored)
	if result.Relaxed {
		s.logger.Info("全ゾーンを満たす求人がないため先頭ゾーンのみで判定しました",
			slog.String("user_id", userID),
			slog.Int("zones", len(zones)),
		)
	}
	s.metrics.RecordMarkersServed(len(result.Markers))

	return &View{
		Markers:    result.Markers,
		DatasetKey: entry.DatasetKey,
		Total:      len(jobs),
		Dropped:    dropped,
		Relaxed:    result.Relaxed,
		Cached:     true,
	}, nil
}

// cachedEntry は直近の同期で保存したキーを優先し、なければ最新の有効なエントリを返す。
// 設定と異なるアクターのエントリは使わない。読み出しエラーはキャッシュミスとして扱う。
func (s *Service) cachedEntry(ctx context.Context) *model.CacheEntry {
	if s.trigger != nil {
		if last := s.trigger.LastResult(); last != nil && last.DatasetKey != "" {
			entry, err := s.cache.Get(ctx, last.DatasetKey)
			if err != nil {
				s.logger.Warn("キャッシュの読み出しに失敗しました",
					slog.String("dataset_key", last.DatasetKey),
					slog.String("error", err.Error()),
				)
			} else if entry != nil {
				return entry
			}
		}
	}

	entry, err := s.cache.MostRecentAny(ctx)
	if err != nil {
		s.logger.Warn("キャッシュの読み出しに失敗しました",
			slog.String("backend", s.cache.Backend()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if entry == nil {
		return nil
	}
	if s.actorID != "" && !strings.HasPrefix(entry.DatasetKey, apify.ActorKeyPrefix(s.actorID)) {
		s.logger.Debug("別のアクターのキャッシュを無視しました",
			slog.String("dataset_key", entry.DatasetKey),
		)
		return nil
	}
	return entry
}
