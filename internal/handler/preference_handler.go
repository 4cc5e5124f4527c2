package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobmapper/internal/model"
)

// PreferenceServiceInterface はユーザー設定ハンドラーが必要とするサービスインターフェース。
type PreferenceServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.UserPreferences, error)
	RecordIgnoredJob(ctx context.Context, userID, jobID string) error
	UnignoreJob(ctx context.Context, userID, jobID string) error
	ClearIgnoredJobs(ctx context.Context, userID string) (int64, error)
	SaveUserLocation(ctx context.Context, userID string, lat, lng float64, zoom int) error
	SetGeolocationEnabled(ctx context.Context, userID string, enabled bool) error
}

// PreferenceHandler はユーザー設定と非表示求人のHTTPハンドラー。
type PreferenceHandler struct {
	service PreferenceServiceInterface
	logger  *slog.Logger
}

// NewPreferenceHandler はPreferenceHandlerを生成する。
func NewPreferenceHandler(service PreferenceServiceInterface, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{service: service, logger: logger}
}

type saveLocationRequest struct {
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
	Zoom *int     `json:"zoom"`
}

type geolocationRequest struct {
	Enabled *bool `json:"enabled"`
}

type clearIgnoredResponse struct {
	Cleared int64 `json:"cleared"`
}

// GetPreferences はユーザー設定を返す。未保存の場合は既定値を返す。
// GET /api/preferences
func (h *PreferenceHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	prefs, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, prefs)
}

// IgnoreJob は求人を非表示にする。同じ求人を繰り返し指定しても結果は変わらない。
// POST /api/jobs/{id}/ignore
func (h *PreferenceHandler) IgnoreJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.RecordIgnoredJob(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnignoreJob は求人の非表示を解除する。
// DELETE /api/jobs/{id}/ignore
func (h *PreferenceHandler) UnignoreJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.UnignoreJob(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearIgnoredJobs は全ての非表示求人を解除し、解除した件数を返す。
// DELETE /api/preferences/ignored
func (h *PreferenceHandler) ClearIgnoredJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	n, err := h.service.ClearIgnoredJobs(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, clearIgnoredResponse{Cleared: n})
}

// SaveLocation は最後に表示した地図の中心とズームを保存する。
// PUT /api/preferences/location
func (h *PreferenceHandler) SaveLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req saveLocationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}
	if req.Lat == nil || req.Lng == nil {
		handleServiceError(w, r, h.logger, model.NewValidationError("lat/lng", "required"))
		return
	}
	zoom := model.DefaultZoom
	if req.Zoom != nil {
		zoom = *req.Zoom
	}

	if err := h.service.SaveUserLocation(r.Context(), userID, *req.Lat, *req.Lng, zoom); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetGeolocation は現在地の利用可否を保存する。
// PUT /api/preferences/geolocation
func (h *PreferenceHandler) SetGeolocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req geolocationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}
	if req.Enabled == nil {
		handleServiceError(w, r, h.logger, model.NewValidationError("enabled", "required"))
		return
	}

	if err := h.service.SetGeolocationEnabled(r.Context(), userID, *req.Enabled); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
