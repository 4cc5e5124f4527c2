package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/jobmapper/internal/marker"
)

// MarkerServiceInterface はマーカーハンドラーが必要とするサービスインターフェース。
type MarkerServiceInterface interface {
	Load(ctx context.Context, userID string) (*marker.View, error)
}

// MarkerHandler は地図マーカーのHTTPハンドラー。
type MarkerHandler struct {
	service MarkerServiceInterface
	logger  *slog.Logger
}

// NewMarkerHandler はMarkerHandlerを生成する。
func NewMarkerHandler(service MarkerServiceInterface, logger *slog.Logger) *MarkerHandler {
	return &MarkerHandler{service: service, logger: logger}
}

// GetMarkers はユーザーに表示するマーカーを返す。キャッシュが空の場合は空の配列を返す。
// GET /api/markers
func (h *MarkerHandler) GetMarkers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	view, err := h.service.Load(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
