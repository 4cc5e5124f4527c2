package apify

import (
	"errors"
	"fmt"
)

// 取得エラーの種別。呼び出し側は errors.Is で分岐する。
var (
	// ErrTransport はネットワーク障害・タイムアウトを表す。次回の同期で再試行される。
	ErrTransport = errors.New("通信エラー")
	// ErrNotFound はアクターまたはデータセットが存在しないことを表す（HTTP 404/410）。
	ErrNotFound = errors.New("データソースが見つかりません")
	// ErrUnauthorized はAPIトークンが拒否されたことを表す（HTTP 401/403）。
	ErrUnauthorized = errors.New("APIトークンが拒否されました")
	// ErrUnexpectedStatus は上記以外の2xx以外のステータスを表す。
	ErrUnexpectedStatus = errors.New("予期しないHTTPステータス")
	// ErrEmptyDataset はデコードに成功したが有効なレコードが0件だったことを表す。
	ErrEmptyDataset = errors.New("データセットが空です")
	// ErrDecode はJSON配列・NDJSONのいずれとしても解釈できなかったことを表す。
	ErrDecode = errors.New("レスポンスの解析に失敗しました")
	// ErrTooLarge はレスポンスボディが上限サイズを超えたことを表す。途中までのデータは使用しない。
	ErrTooLarge = errors.New("レスポンスが上限サイズを超えました")
)

// FetchError はデータセット取得の失敗を表す。
// Kind は上記の種別のいずれかで、Resource は失敗した対象（例: "actor abc"）。
type FetchError struct {
	Kind       error
	Resource   string
	StatusCode int
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	msg := e.Kind.Error()
	if e.Resource != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Resource)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is は errors.Is(err, ErrNotFound) のような種別判定を可能にする。
func (e *FetchError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap は原因となったエラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsEmpty は呼び出し側にとって「データなし」として扱うべきエラーかを返す。
// DecodeError は EmptyDataset と同様に扱う。
func IsEmpty(err error) bool {
	return errors.Is(err, ErrEmptyDataset) || errors.Is(err, ErrDecode)
}
