// Package model はドメインモデルを定義する。
package model

import "time"

// RawJobRecord はリモートデータセットから受信したままの求人レコードを表す。
// スキーマは保証されない。フェッチ後に変更してはならない。
type RawJobRecord = map[string]any

// NormalizedJob は正規化済みの求人を表す。
// データセットの読み出しごとに生成され、個別には永続化しない。
type NormalizedJob struct {
	ID           string // 空の場合は個別に非表示登録できない
	Title        string
	Company      string
	City         string
	URL          string
	Latitude     float64
	Longitude    float64
	SalaryMin    *float64
	SalaryMax    *float64
	SalaryValue  float64 // max、なければmin、どちらもなければ0
	SalaryLabel  string
	JobTypeLabel string // 小文字化した雇用形態の連結
	PublishedAt  *time.Time
}

// MarkerCategory はマーカーの表示カテゴリを表す。
type MarkerCategory string

const (
	// MarkerCategoryTopPaid は給与上位のマーカー。
	MarkerCategoryTopPaid MarkerCategory = "top_paid"
	// MarkerCategoryNewest は最新の求人のマーカー。
	MarkerCategoryNewest MarkerCategory = "newest"
	// MarkerCategoryDefault は通常のマーカー。
	MarkerCategoryDefault MarkerCategory = "default"
)

// マーカーの色
const (
	MarkerColorTopPaid  = "gold"
	MarkerColorNewest   = "red"
	MarkerColorPartTime = "green"
	MarkerColorDefault  = "blue"
)

// MarkerJob は地図に描画するマーカーを表す。UI層へJSONで返却する。
type MarkerJob struct {
	ID          string         `json:"id"`
	Lat         float64        `json:"lat"`
	Lng         float64        `json:"lng"`
	Title       string         `json:"title"`
	Info        string         `json:"info"`
	Color       string         `json:"color"`
	Category    MarkerCategory `json:"category"`
	SalaryValue float64        `json:"salaryValue"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
}
