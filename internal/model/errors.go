// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, sync, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation       = "VALIDATION_FAILED"
	ErrCodeLocationNotFound = "LOCATION_NOT_FOUND"
	ErrCodeInvalidJobID     = "INVALID_JOB_ID"
	ErrCodeSyncInProgress   = "SYNC_IN_PROGRESS"
	ErrCodeSyncFailed       = "SYNC_FAILED"
	ErrCodeSourceNotFound   = "SOURCE_NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s (%s)", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewLocationNotFoundError はゾーン未検出エラーを生成する。
func NewLocationNotFoundError(locationID string) *APIError {
	return &APIError{
		Code:     ErrCodeLocationNotFound,
		Message:  fmt.Sprintf("指定されたゾーンが見つかりません: %s", locationID),
		Category: "validation",
		Action:   "ゾーンIDを確認してください。",
	}
}

// NewInvalidJobIDError は求人IDが空の場合のエラーを生成する。
func NewInvalidJobIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidJobID,
		Message:  "求人IDが指定されていません。",
		Category: "validation",
		Action:   "IDを持つ求人のみ非表示にできます。",
	}
}

// NewSyncInProgressError は同期が既に実行中の場合のエラーを生成する。
func NewSyncInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncInProgress,
		Message:  "同期は既に実行中です。",
		Category: "sync",
		Action:   "実行中の同期が完了してから再度お試しください。",
	}
}

// NewSyncFailedError は同期失敗エラーを生成する。
func NewSyncFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailed,
		Message:  fmt.Sprintf("データセットの同期に失敗しました: %s", reason),
		Category: "sync",
		Action:   "同期ログを確認し、しばらく待ってから再度お試しください。",
	}
}

// NewSourceNotFoundError はデータソース（アクターまたはデータセット）が見つからない場合のエラーを生成する。
func NewSourceNotFoundError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSourceNotFound,
		Message:  fmt.Sprintf("データソースが見つかりません: %s", reason),
		Category: "sync",
		Action:   "アクターIDとAPIトークンの設定を確認してください。",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は許可されていないユーザーからのアクセスエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このユーザーにはアクセス権限がありません。",
		Category: "auth",
		Action:   "管理者に利用許可を依頼してください。",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
