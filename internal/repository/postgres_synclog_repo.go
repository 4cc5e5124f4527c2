package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobmapper/internal/model"
)

// PostgresSyncLogRepo はPostgreSQLを使用した同期ログリポジトリ。
// 挿入順は BIGSERIAL の seq 列で保持する。
type PostgresSyncLogRepo struct {
	db *sql.DB
}

// NewPostgresSyncLogRepo はPostgresSyncLogRepoを生成する。
func NewPostgresSyncLogRepo(db *sql.DB) *PostgresSyncLogRepo {
	return &PostgresSyncLogRepo{db: db}
}

// Append はエントリを追加する。
func (r *PostgresSyncLogRepo) Append(ctx context.Context, entry *model.SyncLogEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_log (id, created_at, kind, status, message, items_count)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Timestamp, entry.Kind, entry.Status,
		nullString(entry.Message), entry.ItemsCount,
	)
	if err != nil {
		return fmt.Errorf("同期ログの追加に失敗しました: %w", err)
	}
	return nil
}

// Recent は新しい順に最大limit件のエントリを返す。
func (r *PostgresSyncLogRepo) Recent(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, kind, status, message, items_count
		 FROM sync_log
		 ORDER BY seq DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("同期ログの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []model.SyncLogEntry
	for rows.Next() {
		var e model.SyncLogEntry
		var message sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Kind, &e.Status, &message, &e.ItemsCount); err != nil {
			return nil, fmt.Errorf("同期ログのスキャンに失敗しました: %w", err)
		}
		e.Message = nullStringValue(message)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("同期ログの取得に失敗しました: %w", err)
	}
	return entries, nil
}

// TrimTo は新しいlimit件を残して古いエントリを削除する。
func (r *PostgresSyncLogRepo) TrimTo(ctx context.Context, limit int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_log
		 WHERE seq NOT IN (SELECT seq FROM sync_log ORDER BY seq DESC LIMIT $1)`,
		limit,
	)
	if err != nil {
		return 0, fmt.Errorf("同期ログの切り詰めに失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}
