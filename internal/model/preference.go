// Package model はドメインモデルを定義する。
package model

import "time"

// LatLng は緯度経度の組を表す。
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UserPreferences はユーザーごとの地図設定を表す。
// 最初の書き込み時に作成され、このサービスからは削除しない。
type UserPreferences struct {
	UserID             string    `json:"user_id"`
	IgnoredJobIDs      []string  `json:"ignored_job_ids"`
	LastLocation       *LatLng   `json:"last_location,omitempty"`
	PreferredZoom      int       `json:"preferred_zoom"`
	GeolocationEnabled bool      `json:"geolocation_enabled"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultZoom は設定が未保存のユーザーに使用するズームレベル。
const DefaultZoom = 11

// IgnoredSet は非表示の求人IDを集合として返す。
func (p *UserPreferences) IgnoredSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.IgnoredJobIDs))
	for _, id := range p.IgnoredJobIDs {
		set[id] = struct{}{}
	}
	return set
}
