package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/jobmapper/internal/apify"
	"github.com/hitoshi/jobmapper/internal/middleware"
	"github.com/hitoshi/jobmapper/internal/model"
	"github.com/hitoshi/jobmapper/internal/synclog"
	"github.com/hitoshi/jobmapper/internal/worker/syncjob"
)

// defaultLogLimit は同期ログ取得時に limit が指定されない場合の件数。
const defaultLogLimit = 20

// SyncTrigger は手動同期の起動に必要なインターフェース。*syncjob.Orchestrator が満たす。
type SyncTrigger interface {
	TriggerSync(ctx context.Context, kind model.SyncKind) syncjob.Result
}

// SyncLogReader は同期ログの読み出しインターフェース。*synclog.Log が満たす。
type SyncLogReader interface {
	Recent(ctx context.Context, limit int) ([]model.SyncLogEntry, error)
}

// CacheStatusReader はキャッシュ状態の取得インターフェース。*marker.StatusService が満たす。
type CacheStatusReader interface {
	GetCacheStatus(ctx context.Context) (*model.CacheStatus, error)
}

// ConnectionTester はデータソースへの接続確認インターフェース。*apify.Client が満たす。
type ConnectionTester interface {
	TestConnection(ctx context.Context) (apify.DatasetRef, error)
}

// AdminHandler は同期操作と状態確認の管理用HTTPハンドラー。
type AdminHandler struct {
	trigger SyncTrigger
	log     SyncLogReader
	status  CacheStatusReader
	tester  ConnectionTester
	logger  *slog.Logger
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(trigger SyncTrigger, log SyncLogReader, status CacheStatusReader, tester ConnectionTester, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		trigger: trigger,
		log:     log,
		status:  status,
		tester:  tester,
		logger:  logger,
	}
}

type syncResponse struct {
	Kind       model.SyncKind   `json:"kind"`
	Status     model.SyncStatus `json:"status"`
	Message    string           `json:"message"`
	ItemsCount int              `json:"items_count"`
	DatasetKey string           `json:"dataset_key,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	DurationMs int64            `json:"duration_ms"`
}

type syncLogResponse struct {
	Entries []model.SyncLogEntry `json:"entries"`
}

type connectionTestResponse struct {
	OK         bool       `json:"ok"`
	ActorID    string     `json:"actor_id,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	DatasetID  string     `json:"dataset_id,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// TriggerSync は手動同期を実行し、完了まで待って結果を返す。
// 同期が実行中の場合は409、取得に失敗した場合は502を返す。
// POST /api/admin/sync
func (h *AdminHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	res := h.trigger.TriggerSync(r.Context(), model.SyncKindManual)

	if res.Err != nil {
		switch {
		case errors.Is(res.Err, syncjob.ErrSyncInProgress):
			middleware.WriteErrorResponse(w, http.StatusConflict, model.NewSyncInProgressError())
		case errors.Is(res.Err, apify.ErrNotFound), errors.Is(res.Err, apify.ErrUnauthorized):
			middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewSourceNotFoundError(res.Message))
		default:
			middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewSyncFailedError(res.Message))
		}
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Kind:       res.Kind,
		Status:     res.Status,
		Message:    res.Message,
		ItemsCount: res.ItemsCount,
		DatasetKey: res.DatasetKey,
		StartedAt:  res.StartedAt,
		DurationMs: res.Duration.Milliseconds(),
	})
}

// GetSyncLog は同期ログを新しい順に返す。limitは1〜50に丸める。
// GET /api/admin/sync/log?limit=N
func (h *AdminHandler) GetSyncLog(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("limit", "numeric"))
			return
		}
		limit = n
	}

	entries, err := h.log.Recent(r.Context(), synclog.ClampLimit(limit))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, syncLogResponse{Entries: entries})
}

// GetStatus はキャッシュと同期の状態を返す。
// GET /api/admin/sync/status
func (h *AdminHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.status.GetCacheStatus(r.Context())
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// TestConnection はAPIトークンとアクターIDで最新の実行を取得できるかを確認する。
// 確認の失敗はエラーレスポンスではなく ok=false として返す。
// POST /api/admin/connection-test
func (h *AdminHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	ref, err := h.tester.TestConnection(r.Context())
	if err != nil {
		h.logger.Warn("接続確認に失敗しました", slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, connectionTestResponse{OK: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, connectionTestResponse{
		OK:         true,
		ActorID:    ref.ActorID,
		RunID:      ref.RunID,
		DatasetID:  ref.DatasetID,
		FinishedAt: ref.FinishedAt,
	})
}
