package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobmapper/internal/location"
	"github.com/hitoshi/jobmapper/internal/model"
)

// LocationServiceInterface はゾーン管理ハンドラーが必要とするサービスインターフェース。
type LocationServiceInterface interface {
	List(ctx context.Context) ([]model.Location, error)
	Create(ctx context.Context, in location.Input) (*model.Location, error)
	Update(ctx context.Context, id string, in location.Input) (*model.Location, error)
	Delete(ctx context.Context, id string) error
	ReplaceAll(ctx context.Context, inputs []location.Input) ([]model.Location, error)
}

// LocationHandler は判定ゾーンの管理用HTTPハンドラー。
type LocationHandler struct {
	service LocationServiceInterface
	logger  *slog.Logger
}

// NewLocationHandler はLocationHandlerを生成する。
func NewLocationHandler(service LocationServiceInterface, logger *slog.Logger) *LocationHandler {
	return &LocationHandler{service: service, logger: logger}
}

type locationListResponse struct {
	Locations []model.Location `json:"locations"`
}

type replaceLocationsRequest struct {
	Locations []location.Input `json:"locations"`
}

// ListLocations は全ゾーンを表示順に返す。
// GET /api/admin/locations
func (h *LocationHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, locationListResponse{Locations: locs})
}

// CreateLocation はゾーンを末尾に追加する。
// POST /api/admin/locations
func (h *LocationHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var in location.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeInvalidRequest(w)
		return
	}

	loc, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, loc)
}

// ReplaceLocations はゾーン一覧を送信された内容で置き換える。
// PUT /api/admin/locations
func (h *LocationHandler) ReplaceLocations(w http.ResponseWriter, r *http.Request) {
	var req replaceLocationsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	locs, err := h.service.ReplaceAll(r.Context(), req.Locations)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, locationListResponse{Locations: locs})
}

// UpdateLocation はゾーンの内容を更新する。
// PUT /api/admin/locations/{id}
func (h *LocationHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var in location.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeInvalidRequest(w)
		return
	}

	loc, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, loc)
}

// DeleteLocation はゾーンを削除する。
// DELETE /api/admin/locations/{id}
func (h *LocationHandler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
