// Package preference はユーザーごとの地図設定（非表示求人・最終位置・ズーム）を管理する。
package preference

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/jobmapper/internal/model"
	"github.com/hitoshi/jobmapper/internal/repository"
)

// ズームレベルの範囲
const (
	MinZoom = 0
	MaxZoom = 22
)

// maxJobIDLength は非表示登録できる求人IDの最大長。
const maxJobIDLength = 255

var validate = validator.New()

// Service はユーザー設定のサービス層。
// 書き込みはユーザーIDごとに独立しており、同期処理とは干渉しない。
type Service struct {
	repo repository.PreferenceRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.PreferenceRepository) *Service {
	return &Service{repo: repo}
}

// Get はユーザー設定を返す。未保存のユーザーには既定値を返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.UserPreferences, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	prefs, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}
	if prefs == nil {
		return &model.UserPreferences{
			UserID:        userID,
			IgnoredJobIDs: []string{},
			PreferredZoom: model.DefaultZoom,
		}, nil
	}
	if prefs.IgnoredJobIDs == nil {
		prefs.IgnoredJobIDs = []string{}
	}
	return prefs, nil
}

// RecordIgnoredJob は求人を非表示に登録する。登録済みの場合も成功する。
// IDを持たない求人は登録できない。
func (s *Service) RecordIgnoredJob(ctx context.Context, userID, jobID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	jobID, err := normalizeJobID(jobID)
	if err != nil {
		return err
	}
	if err := s.repo.AddIgnoredJob(ctx, userID, jobID); err != nil {
		return fmt.Errorf("非表示求人の登録に失敗しました: %w", err)
	}
	return nil
}

// UnignoreJob は求人の非表示登録を解除する。未登録の場合も成功する。
func (s *Service) UnignoreJob(ctx context.Context, userID, jobID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	jobID, err := normalizeJobID(jobID)
	if err != nil {
		return err
	}
	if err := s.repo.RemoveIgnoredJob(ctx, userID, jobID); err != nil {
		return fmt.Errorf("非表示求人の解除に失敗しました: %w", err)
	}
	return nil
}

// ClearIgnoredJobs はユーザーの非表示登録をすべて解除し、解除件数を返す。
func (s *Service) ClearIgnoredJobs(ctx context.Context, userID string) (int64, error) {
	if err := validateUserID(userID); err != nil {
		return 0, err
	}
	n, err := s.repo.ClearIgnoredJobs(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("非表示求人の一括解除に失敗しました: %w", err)
	}
	return n, nil
}

// SaveUserLocation は最後に表示した地図の中心とズームを保存する。
func (s *Service) SaveUserLocation(ctx context.Context, userID string, lat, lng float64, zoom int) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := validate.Var(lat, "gte=-90,lte=90"); err != nil {
		return model.NewValidationError("lat", "-90〜90の範囲で指定してください")
	}
	if err := validate.Var(lng, "gte=-180,lte=180"); err != nil {
		return model.NewValidationError("lng", "-180〜180の範囲で指定してください")
	}
	if err := validate.Var(zoom, fmt.Sprintf("min=%d,max=%d", MinZoom, MaxZoom)); err != nil {
		return model.NewValidationError("zoom", fmt.Sprintf("%d〜%dの範囲で指定してください", MinZoom, MaxZoom))
	}

	if err := s.repo.SaveLocation(ctx, userID, model.LatLng{Lat: lat, Lng: lng}, zoom); err != nil {
		return fmt.Errorf("位置情報の保存に失敗しました: %w", err)
	}
	return nil
}

// SetGeolocationEnabled は端末の位置情報を使うかどうかを保存する。
func (s *Service) SetGeolocationEnabled(ctx context.Context, userID string, enabled bool) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := s.repo.SetGeolocationEnabled(ctx, userID, enabled); err != nil {
		return fmt.Errorf("位置情報設定の保存に失敗しました: %w", err)
	}
	return nil
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return model.NewUnauthorizedError()
	}
	return nil
}

func normalizeJobID(jobID string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", model.NewInvalidJobIDError()
	}
	if len(jobID) > maxJobIDLength {
		return "", model.NewValidationError("job_id", "長すぎます")
	}
	return jobID, nil
}
