// Package model はドメインモデルを定義する。
package model

import "time"

// ZoneMode はゾーンの判定モードを表す。
type ZoneMode string

const (
	// ZoneModeInside は中心から半径以内の求人のみを対象とする。
	ZoneModeInside ZoneMode = "inside"
	// ZoneModeOutside は中心から半径より外側の求人のみを対象とする。
	ZoneModeOutside ZoneMode = "outside"
)

// Location は地理的な判定ゾーン（中心点・半径・モード）を表す。
// 設定された全ゾーンはAND条件で適用される。
type Location struct {
	ID           string    `json:"id" yaml:"id"`
	Label        string    `json:"label" yaml:"label" validate:"max=200"`
	Latitude     float64   `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64   `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
	RadiusMeters float64   `json:"radius_meters" yaml:"radius_meters" validate:"gt=0,lte=20040000"`
	Mode         ZoneMode  `json:"mode" yaml:"mode" validate:"oneof=inside outside"`
	Position     int       `json:"position" yaml:"position"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}
