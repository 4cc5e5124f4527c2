package apify

// StatusClass はHTTPステータスコードの分類。
type StatusClass int

const (
	// StatusOK は2xx。
	StatusOK StatusClass = iota
	// StatusNotFound は404/410。アクターIDまたはデータセットIDが無効。
	StatusNotFound
	// StatusUnauthorized は401/403。トークンの設定ミス。
	StatusUnauthorized
	// StatusRetryable は429/5xx。次回の同期で回復が見込める。
	StatusRetryable
	// StatusUnexpected はその他のステータス。
	StatusUnexpected
)

// ClassifyHTTPStatus はHTTPステータスコードを分類する。
func ClassifyHTTPStatus(statusCode int) StatusClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusOK
	case statusCode == 404 || statusCode == 410:
		return StatusNotFound
	case statusCode == 401 || statusCode == 403:
		return StatusUnauthorized
	case statusCode == 429 || statusCode >= 500:
		return StatusRetryable
	default:
		return StatusUnexpected
	}
}

// statusError はステータス分類に対応するFetchErrorを返す。StatusOKの場合はnil。
func statusError(statusCode int, resource string) error {
	var kind error
	switch ClassifyHTTPStatus(statusCode) {
	case StatusOK:
		return nil
	case StatusNotFound:
		kind = ErrNotFound
	case StatusUnauthorized:
		kind = ErrUnauthorized
	default:
		kind = ErrUnexpectedStatus
	}
	return &FetchError{Kind: kind, Resource: resource, StatusCode: statusCode}
}
