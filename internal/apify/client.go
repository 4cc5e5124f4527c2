// Package apify は Apify API からアクターの実行結果（データセット）を取得するクライアントを提供する。
package apify

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/jobmapper/internal/model"
)

// DefaultBaseURL は Apify API v2 のベースURL。
const DefaultBaseURL = "https://api.apify.com/v2"

const userAgent = "JobMapper/1.0 (+dataset sync)"

// HTTPGuard はSSRF検証付きHTTPクライアントを提供するインターフェース。
type HTTPGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Config はクライアントの接続設定。
type Config struct {
	BaseURL     string
	Token       string
	ActorID     string
	Timeout     time.Duration
	MaxBodySize int64
}

// DatasetRef は最新の成功した実行とそのデフォルトデータセットを表す。
type DatasetRef struct {
	ActorID    string
	RunID      string
	DatasetID  string
	FinishedAt *time.Time
}

// Key はキャッシュのデータセットキーを返す。
// アクターごとの接頭辞に実行のデータセットIDを付けるため、新しい実行で自然にキャッシュが切り替わる。
func (r DatasetRef) Key() string {
	return ActorKeyPrefix(r.ActorID) + r.DatasetID
}

// ActorKeyPrefix はアクターIDから導出したデータセットキーの接頭辞を返す。
func ActorKeyPrefix(actorID string) string {
	sum := md5.Sum([]byte(actorID))
	return "jobs:" + hex.EncodeToString(sum[:])[:12] + ":"
}

// Dataset は取得したデータセットの内容。
type Dataset struct {
	Ref     DatasetRef
	Records []model.RawJobRecord
	// Skipped は解析できずに読み飛ばした行・要素の数。
	Skipped int
}

// Client は Apify API のクライアント。リトライは行わず、呼び出し側が判断する。
type Client struct {
	cfg    Config
	guard  HTTPGuard
	logger *slog.Logger
	status StatusRecorder
}

// StatusRecorder は上流のHTTPステータスを記録する。metrics.Collector が満たす。
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// SetStatusRecorder はHTTPステータスの記録先を設定する。起動時に1回だけ呼び出す。
func (c *Client) SetStatusRecorder(r StatusRecorder) {
	c.status = r
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, guard HTTPGuard, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 50 * 1024 * 1024
	}
	return &Client{cfg: cfg, guard: guard, logger: logger}
}

// ActorID は設定されたアクターIDを返す。
func (c *Client) ActorID() string {
	return c.cfg.ActorID
}

// runsURL は最新の成功した実行を1件取得するURLを返す。
func (c *Client) runsURL() string {
	q := url.Values{}
	q.Set("limit", "1")
	q.Set("status", "SUCCEEDED")
	q.Set("desc", "1")
	q.Set("token", c.cfg.Token)
	return fmt.Sprintf("%s/acts/%s/runs?%s", c.cfg.BaseURL, url.PathEscape(c.cfg.ActorID), q.Encode())
}

// DatasetItemsURL はデータセットの全アイテムを取得するURLを返す。
func (c *Client) DatasetItemsURL(ref DatasetRef) string {
	q := url.Values{}
	q.Set("clean", "1")
	q.Set("format", "json")
	q.Set("token", c.cfg.Token)
	return fmt.Sprintf("%s/datasets/%s/items?%s", c.cfg.BaseURL, url.PathEscape(ref.DatasetID), q.Encode())
}

type runsEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type runsPage struct {
	Items []runItem `json:"items"`
}

type runItem struct {
	ID               string     `json:"id"`
	DefaultDatasetID string     `json:"defaultDatasetId"`
	FinishedAt       *time.Time `json:"finishedAt"`
}

// LatestDataset は最新の成功した実行のデータセットを特定する。
// 成功した実行が存在しない場合は ErrNotFound を返す。
func (c *Client) LatestDataset(ctx context.Context) (DatasetRef, error) {
	resource := "actor " + c.cfg.ActorID
	body, err := c.get(ctx, c.runsURL(), resource)
	if err != nil {
		return DatasetRef{}, err
	}

	var env runsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return DatasetRef{}, &FetchError{Kind: ErrDecode, Resource: resource, Err: err}
	}

	// 一覧APIは data.items、古い形式は data 直下の配列で返す
	var items []runItem
	var page runsPage
	if err := json.Unmarshal(env.Data, &page); err == nil && page.Items != nil {
		items = page.Items
	} else if err := json.Unmarshal(env.Data, &items); err != nil {
		return DatasetRef{}, &FetchError{Kind: ErrDecode, Resource: resource, Err: err}
	}

	if len(items) == 0 || items[0].DefaultDatasetID == "" {
		return DatasetRef{}, &FetchError{
			Kind:     ErrNotFound,
			Resource: resource,
			Err:      errors.New("成功した実行がありません"),
		}
	}

	return DatasetRef{
		ActorID:    c.cfg.ActorID,
		RunID:      items[0].ID,
		DatasetID:  items[0].DefaultDatasetID,
		FinishedAt: items[0].FinishedAt,
	}, nil
}

// FetchDataset は指定URLからデータセットを取得してデコードする。
// JSON配列とNDJSONの両方に対応する。
func (c *Client) FetchDataset(ctx context.Context, endpoint string) ([]model.RawJobRecord, int, error) {
	body, err := c.get(ctx, endpoint, "dataset")
	if err != nil {
		return nil, 0, err
	}
	return DecodeRecords(body)
}

// FetchLatest は最新の実行を特定し、そのデータセットを取得する。
func (c *Client) FetchLatest(ctx context.Context) (*Dataset, error) {
	start := time.Now()

	ref, err := c.LatestDataset(ctx)
	if err != nil {
		return nil, err
	}

	resource := "dataset " + ref.DatasetID
	body, err := c.get(ctx, c.DatasetItemsURL(ref), resource)
	if err != nil {
		return nil, err
	}

	records, skipped, err := DecodeRecords(body)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) && fe.Resource == "" {
			fe.Resource = resource
		}
		return nil, err
	}

	if skipped > 0 {
		c.logger.Warn("解析できない行を読み飛ばしました",
			slog.String("dataset_id", ref.DatasetID),
			slog.Int("skipped", skipped),
		)
	}
	c.logger.Info("データセットを取得しました",
		slog.String("actor_id", ref.ActorID),
		slog.String("run_id", ref.RunID),
		slog.String("dataset_id", ref.DatasetID),
		slog.Int("items", len(records)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return &Dataset{Ref: ref, Records: records, Skipped: skipped}, nil
}

// TestConnection は資格情報とアクターIDが有効かを確認する。
func (c *Client) TestConnection(ctx context.Context) (DatasetRef, error) {
	return c.LatestDataset(ctx)
}

// get はGETリクエストを送信し、2xxの場合にボディを返す。
func (c *Client) get(ctx context.Context, rawURL, resource string) ([]byte, error) {
	if err := c.guard.ValidateURL(rawURL); err != nil {
		return nil, &FetchError{Kind: ErrTransport, Resource: resource, Err: fmt.Errorf("SSRF検証に失敗: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: ErrTransport, Resource: resource, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, application/x-ndjson")

	client := c.guard.NewSafeClient(c.cfg.Timeout, c.cfg.MaxBodySize)
	resp, err := client.Do(req)
	if err != nil {
		c.logger.Error("HTTPリクエストに失敗しました",
			slog.String("resource", resource),
			slog.String("error", redact(err.Error(), c.cfg.Token)),
		)
		return nil, &FetchError{Kind: ErrTransport, Resource: resource, Err: errors.New(redact(err.Error(), c.cfg.Token))}
	}
	defer resp.Body.Close()

	if c.status != nil {
		c.status.RecordHTTPStatus(resp.StatusCode)
	}
	if err := statusError(resp.StatusCode, resource); err != nil {
		c.logger.Warn("データソースがエラーステータスを返しました",
			slog.String("resource", resource),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, err
	}

	// 上限を1バイト超えて読み、切り詰められたボディを有効なデータとして扱わない
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize+1))
	if err != nil {
		return nil, &FetchError{Kind: ErrTransport, Resource: resource, Err: err}
	}
	if int64(len(body)) > c.cfg.MaxBodySize {
		c.logger.Error("レスポンスが上限サイズを超えました",
			slog.String("resource", resource),
			slog.Int64("max_body_size", c.cfg.MaxBodySize),
		)
		return nil, &FetchError{
			Kind:     ErrTooLarge,
			Resource: resource,
			Err:      fmt.Errorf("上限 %d バイト", c.cfg.MaxBodySize),
		}
	}
	return body, nil
}

// redact はエラーメッセージに含まれるURLからトークンを取り除く。
func redact(msg, token string) string {
	if token == "" {
		return msg
	}
	msg = strings.ReplaceAll(msg, url.QueryEscape(token), "REDACTED")
	return strings.ReplaceAll(msg, token, "REDACTED")
}
