package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// syncAdvisoryLockKey はデータセット同期用のアドバイザリロックのキー。
const syncAdvisoryLockKey int64 = 0x6a6f626d6170

// PostgresSyncLock はPostgreSQLのアドバイザリロックによる同期ロック。
// 同じデータベースに接続する全プロセス（APIサーバーとワーカー）で共有される。
type PostgresSyncLock struct {
	db  *sql.DB
	key int64
}

// NewPostgresSyncLock はPostgresSyncLockを生成する。
func NewPostgresSyncLock(db *sql.DB) *PostgresSyncLock {
	return &PostgresSyncLock{db: db, key: syncAdvisoryLockKey}
}

// TryLock はトランザクションレベルのアドバイザリロックをブロックせずに取得する。
// ロックは解放関数によるロールバック、または接続の切断で必ず解放される。
func (l *PostgresSyncLock) TryLock(ctx context.Context) (func() error, bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("ロック用トランザクションの開始に失敗しました: %w", err)
	}

	var acquired bool
	if err := tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock($1)`, l.key).Scan(&acquired); err != nil {
		_ = tx.Rollback()
		return nil, false, fmt.Errorf("アドバイザリロックの取得に失敗しました: %w", err)
	}
	if !acquired {
		_ = tx.Rollback()
		return nil, false, nil
	}

	return func() error {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			return fmt.Errorf("アドバイザリロックの解放に失敗しました: %w", err)
		}
		return nil
	}, true, nil
}
