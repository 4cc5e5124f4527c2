package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobmapper/internal/model"
)

// PostgresLocationRepo はPostgreSQLを使用したゾーンリポジトリ。
type PostgresLocationRepo struct {
	db *sql.DB
}

// NewPostgresLocationRepo はPostgresLocationRepoを生成する。
func NewPostgresLocationRepo(db *sql.DB) *PostgresLocationRepo {
	return &PostgresLocationRepo{db: db}
}

const locationColumns = `id, label, latitude, longitude, radius_meters, mode, position, created_at, updated_at`

// List は全ゾーンを position, created_at の昇順で返す。
func (r *PostgresLocationRepo) List(ctx context.Context) ([]model.Location, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+locationColumns+` FROM locations ORDER BY position, created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ゾーン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	locs := []model.Location{}
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("ゾーンのスキャンに失敗しました: %w", err)
		}
		locs = append(locs, *loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ゾーン一覧の取得に失敗しました: %w", err)
	}
	return locs, nil
}

// FindByID は指定IDのゾーンを取得する。見つからない場合はnilを返す。
func (r *PostgresLocationRepo) FindByID(ctx context.Context, id string) (*model.Location, error) {
	loc, err := scanLocation(r.db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ゾーンの取得に失敗しました: %w", err)
	}
	return loc, nil
}

// Create はゾーンを作成する。
func (r *PostgresLocationRepo) Create(ctx context.Context, loc *model.Location) error {
	if err := insertLocation(ctx, r.db, loc); err != nil {
		return err
	}
	return nil
}

// Update はゾーンを更新する。
func (r *PostgresLocationRepo) Update(ctx context.Context, loc *model.Location) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE locations SET
		    label = $2, latitude = $3, longitude = $4, radius_meters = $5,
		    mode = $6, position = $7, updated_at = $8
		 WHERE id = $1`,
		loc.ID, nullString(loc.Label), loc.Latitude, loc.Longitude, loc.RadiusMeters,
		loc.Mode, loc.Position, loc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ゾーンの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのゾーンを削除する。
func (r *PostgresLocationRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM locations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("ゾーンの削除に失敗しました: %w", err)
	}
	return nil
}

// ReplaceAll は全ゾーンを1つのトランザクションで置き換える。
func (r *PostgresLocationRepo) ReplaceAll(ctx context.Context, locs []model.Location) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM locations`); err != nil {
		return fmt.Errorf("ゾーンの全削除に失敗しました: %w", err)
	}
	for i := range locs {
		if err := insertLocation(ctx, tx, &locs[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// Count はゾーン数を返す。
func (r *PostgresLocationRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM locations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ゾーン数の取得に失敗しました: %w", err)
	}
	return n, nil
}

func insertLocation(ctx context.Context, ex execer, loc *model.Location) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO locations (`+locationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		loc.ID, nullString(loc.Label), loc.Latitude, loc.Longitude, loc.RadiusMeters,
		loc.Mode, loc.Position, loc.CreatedAt, loc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ゾーンの作成に失敗しました: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (*model.Location, error) {
	loc := &model.Location{}
	var label sql.NullString
	if err := row.Scan(
		&loc.ID, &label, &loc.Latitude, &loc.Longitude, &loc.RadiusMeters,
		&loc.Mode, &loc.Position, &loc.CreatedAt, &loc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	loc.Label = nullStringValue(label)
	return loc, nil
}
