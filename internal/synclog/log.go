// Package synclog は同期アクティビティログ（最新50件を保持）を提供する。
package synclog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobmapper/internal/model"
	"github.com/hitoshi/jobmapper/internal/repository"
)

// MaxEntries はログに保持する最大件数。
const MaxEntries = 50

// Log は同期ログの追記と参照を行う。
// 書き込みのたびに最新MaxEntries件へ切り詰めるため、バックエンドに関わらず上限を超えない。
type Log struct {
	repo   repository.SyncLogRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewLog はLogの新しいインスタンスを生成する。
func NewLog(repo repository.SyncLogRepository, logger *slog.Logger) *Log {
	return &Log{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append はIDと時刻を付与してエントリを追記し、古いエントリを削除する。
// 付与後のエントリを返す。
func (l *Log) Append(ctx context.Context, kind model.SyncKind, status model.SyncStatus, message string, itemsCount int) (*model.SyncLogEntry, error) {
	entry := &model.SyncLogEntry{
		ID:         uuid.NewString(),
		Timestamp:  l.now(),
		Kind:       kind,
		Status:     status,
		Message:    message,
		ItemsCount: itemsCount,
	}

	if err := l.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("同期ログの追記に失敗しました: %w", err)
	}

	trimmed, err := l.repo.TrimTo(ctx, MaxEntries)
	if err != nil {
		// 追記自体は成功しているため、次回の追記で再度切り詰める
		l.logger.Warn("同期ログの切り詰めに失敗しました",
			slog.String("error", err.Error()),
		)
	} else if trimmed > 0 {
		l.logger.Debug("古い同期ログを削除しました",
			slog.Int64("deleted_count", trimmed),
		)
	}

	return entry, nil
}

// Recent は新しい順にエントリを返す。limitは1〜MaxEntriesに丸める。
func (l *Log) Recent(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	limit = ClampLimit(limit)
	entries, err := l.repo.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("同期ログの取得に失敗しました: %w", err)
	}
	if entries == nil {
		entries = []model.SyncLogEntry{}
	}
	return entries, nil
}

// Latest は最新のエントリを返す。ログが空の場合はnilを返す。
func (l *Log) Latest(ctx context.Context) (*model.SyncLogEntry, error) {
	entries, err := l.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// ClampLimit は取得件数を1〜MaxEntriesの範囲に丸める。
func ClampLimit(limit int) int {
	return min(max(limit, 1), MaxEntries)
}
