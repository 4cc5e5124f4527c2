// Package location は地図の判定ゾーン（中心・半径・inside/outside）の管理を提供する。
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hitoshi/jobmapper/internal/model"
	"github.com/hitoshi/jobmapper/internal/repository"
)

// MaxZones は登録できるゾーン数の上限。
const MaxZones = 20

var validate = validator.New()

// Input はゾーンの作成・更新内容。
type Input struct {
	Label        string         `json:"label" yaml:"label"`
	Latitude     float64        `json:"latitude" yaml:"latitude"`
	Longitude    float64        `json:"longitude" yaml:"longitude"`
	RadiusMeters float64        `json:"radius_meters" yaml:"radius_meters"`
	Mode         model.ZoneMode `json:"mode" yaml:"mode"`
}

// seedFile はZONES_FILEのYAML構造。
type seedFile struct {
	Zones []Input `yaml:"zones"`
}

// Service はゾーン管理のサービス層。
type Service struct {
	repo   repository.LocationRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.LocationRepository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List は全ゾーンを表示順に返す。
func (s *Service) List(ctx context.Context) ([]model.Location, error) {
	locs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ゾーン一覧の取得に失敗しました: %w", err)
	}
	if locs == nil {
		locs = []model.Location{}
	}
	return locs, nil
}

// Create はゾーンを末尾に追加する。
func (s *Service) Create(ctx context.Context, in Input) (*model.Location, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ゾーン数の取得に失敗しました: %w", err)
	}
	if count >= MaxZones {
		return nil, model.NewValidationError("zones", fmt.Sprintf("ゾーンは最大%d件までです", MaxZones))
	}

	now := s.now()
	loc := s.build(uuid.NewString(), in, count, now)
	if err := Validate(loc); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, loc); err != nil {
		return nil, fmt.Errorf("ゾーンの作成に失敗しました: %w", err)
	}

	s.logger.Info("ゾーンを作成しました",
		slog.String("location_id", loc.ID),
		slog.String("mode", string(loc.Mode)),
		slog.Float64("radius_meters", loc.RadiusMeters),
	)
	return loc, nil
}

// Update は既存ゾーンの内容を置き換える。表示順と作成日時は維持する。
func (s *Service) Update(ctx context.Context, id string, in Input) (*model.Location, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ゾーンの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return nil, model.NewLocationNotFoundError(id)
	}

	loc := s.build(id, in, existing.Position, existing.CreatedAt)
	loc.UpdatedAt = s.now()
	if err := Validate(loc); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, loc); err != nil {
		return nil, fmt.Errorf("ゾーンの更新に失敗しました: %w", err)
	}
	return loc, nil
}

// Delete はゾーンを削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("ゾーンの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return model.NewLocationNotFoundError(id)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("ゾーンの削除に失敗しました: %w", err)
	}
	return nil
}

// ReplaceAll は全ゾーンを入力の順序で一括保存する。
// いずれかの入力が不正な場合は何も変更しない。
func (s *Service) ReplaceAll(ctx context.Context, inputs []Input) ([]model.Location, error) {
	if len(inputs) > MaxZones {
		return nil, model.NewValidationError("zones", fmt.Sprintf("ゾーンは最大%d件までです", MaxZones))
	}

	now := s.now()
	locs := make([]model.Location, 0, len(inputs))
	for i, in := range inputs {
		loc := s.build(uuid.NewString(), in, i, now)
		if err := Validate(loc); err != nil {
			return nil, err
		}
		locs = append(locs, *loc)
	}

	if err := s.repo.ReplaceAll(ctx, locs); err != nil {
		return nil, fmt.Errorf("ゾーンの一括保存に失敗しました: %w", err)
	}
	s.logger.Info("ゾーンを一括保存しました", slog.Int("count", len(locs)))
	return locs, nil
}

// SeedFromFile はゾーンが未登録の場合に限り、YAMLファイルからゾーンを登録する。
// 登録した件数を返す。pathが空の場合は何もしない。
func (s *Service) SeedFromFile(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("ゾーン数の取得に失敗しました: %w", err)
	}
	if count > 0 {
		s.logger.Info("ゾーンが登録済みのためシードをスキップしました", slog.Int("count", count))
		return 0, nil
	}

	inputs, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	locs, err := s.ReplaceAll(ctx, inputs)
	if err != nil {
		return 0, fmt.Errorf("ゾーンのシードに失敗しました (%s): %w", path, err)
	}
	return len(locs), nil
}

// LoadFile はYAML形式のゾーン定義ファイルを読み込む。
func LoadFile(path string) ([]Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ゾーン定義ファイルの読み込みに失敗しました: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ゾーン定義ファイルの解析に失敗しました: %w", err)
	}
	return f.Zones, nil
}

// Validate はゾーンの各値が有効範囲内かを検証する。
func Validate(loc *model.Location) error {
	err := validate.Struct(loc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(fieldName(fe.Field()), fe.Tag())
	}
	return model.NewValidationError("location", err.Error())
}

func (s *Service) build(id string, in Input, position int, createdAt time.Time) *model.Location {
	mode := model.ZoneMode(strings.ToLower(strings.TrimSpace(string(in.Mode))))
	if mode == "" {
		mode = model.ZoneModeInside
	}
	return &model.Location{
		ID:           id,
		Label:        strings.TrimSpace(in.Label),
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		RadiusMeters: in.RadiusMeters,
		Mode:         mode,
		Position:     position,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func fieldName(structField string) string {
	switch structField {
	case "Latitude":
		return "latitude"
	case "Longitude":
		return "longitude"
	case "RadiusMeters":
		return "radius_meters"
	case "Mode":
		return "mode"
	case "Label":
		return "label"
	}
	return strings.ToLower(structField)
}
