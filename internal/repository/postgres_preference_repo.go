package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobmapper/internal/model"
)

// PostgresPreferenceRepo はPostgreSQLを使用したユーザー設定リポジトリ。
// 非表示求人は ignored_jobs テーブルに1行ずつ保持する。
type PostgresPreferenceRepo struct {
	db *sql.DB
}

// NewPostgresPreferenceRepo はPostgresPreferenceRepoを生成する。
func NewPostgresPreferenceRepo(db *sql.DB) *PostgresPreferenceRepo {
	return &PostgresPreferenceRepo{db: db}
}

// FindByUserID は指定ユーザーの設定を取得する。見つからない場合はnilを返す。
func (r *PostgresPreferenceRepo) FindByUserID(ctx context.Context, userID string) (*model.UserPreferences, error) {
	prefs := &model.UserPreferences{UserID: userID}
	var lat, lng sql.NullFloat64

	err := r.db.QueryRowContext(ctx,
		`SELECT last_lat, last_lng, preferred_zoom, geolocation_enabled, updated_at
		 FROM user_preferences WHERE user_id = $1`,
		userID,
	).Scan(&lat, &lng, &prefs.PreferredZoom, &prefs.GeolocationEnabled, &prefs.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}
	if lat.Valid && lng.Valid {
		prefs.LastLocation = &model.LatLng{Lat: lat.Float64, Lng: lng.Float64}
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT job_id FROM ignored_jobs WHERE user_id = $1 ORDER BY created_at, job_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("非表示求人の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	prefs.IgnoredJobIDs = []string{}
	for rows.Next() {
		var jobID string
		if err := rows.Scan(&jobID); err != nil {
			return nil, fmt.Errorf("非表示求人のスキャンに失敗しました: %w", err)
		}
		prefs.IgnoredJobIDs = append(prefs.IgnoredJobIDs, jobID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("非表示求人の取得に失敗しました: %w", err)
	}

	return prefs, nil
}

// AddIgnoredJob は非表示求人を冪等に追加する。設定行が未作成の場合は作成する。
func (r *PostgresPreferenceRepo) AddIgnoredJob(ctx context.Context, userID, jobID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := ensurePreferenceRow(ctx, tx, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ignored_jobs (user_id, job_id, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id, job_id) DO NOTHING`,
		userID, jobID,
	); err != nil {
		return fmt.Errorf("非表示求人の追加に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// RemoveIgnoredJob は非表示求人を解除する。
func (r *PostgresPreferenceRepo) RemoveIgnoredJob(ctx context.Context, userID, jobID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM ignored_jobs WHERE user_id = $1 AND job_id = $2`,
		userID, jobID,
	); err != nil {
		return fmt.Errorf("非表示求人の解除に失敗しました: %w", err)
	}
	return nil
}

// ClearIgnoredJobs は全ての非表示求人を解除する。
func (r *PostgresPreferenceRepo) ClearIgnoredJobs(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ignored_jobs WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("非表示求人の全解除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// SaveLocation は最後に表示した地図の位置とズームを保存する。
func (r *PostgresPreferenceRepo) SaveLocation(ctx context.Context, userID string, loc model.LatLng, zoom int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, last_lat, last_lng, preferred_zoom, geolocation_enabled, updated_at)
		 VALUES ($1, $2, $3, $4, false, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		     last_lat = EXCLUDED.last_lat,
		     last_lng = EXCLUDED.last_lng,
		     preferred_zoom = EXCLUDED.preferred_zoom,
		     updated_at = now()`,
		userID, loc.Lat, loc.Lng, zoom,
	)
	if err != nil {
		return fmt.Errorf("地図位置の保存に失敗しました: %w", err)
	}
	return nil
}

// SetGeolocationEnabled は位置情報の利用可否を保存する。
func (r *PostgresPreferenceRepo) SetGeolocationEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, preferred_zoom, geolocation_enabled, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		     geolocation_enabled = EXCLUDED.geolocation_enabled,
		     updated_at = now()`,
		userID, model.DefaultZoom, enabled,
	)
	if err != nil {
		return fmt.Errorf("位置情報設定の保存に失敗しました: %w", err)
	}
	return nil
}

func ensurePreferenceRow(ctx context.Context, ex execer, userID string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, preferred_zoom, geolocation_enabled, updated_at)
		 VALUES ($1, $2, false, now())
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = now()`,
		userID, model.DefaultZoom,
	)
	if err != nil {
		return fmt.Errorf("ユーザー設定の作成に失敗しました: %w", err)
	}
	return nil
}
