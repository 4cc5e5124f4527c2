// Package security はアプリケーションのセキュリティ機能を提供する。
//
// InfoSanitizer は地図マーカーの情報ウィンドウHTMLをサニタイズする。
// 求人データは外部のスクレイピング結果であり信頼できないため、
// 情報ウィンドウで使う strong, br, a のみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// InfoSanitizerService は情報ウィンドウHTMLのサニタイズ機能のインターフェースを定義する。
type InfoSanitizerService interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ（strong, br, a）以外は除去し、テキストのみ残す。
	// aタグのhref属性は http/https の絶対URLのみ許可し、
	// target="_blank" と rel="noopener" を付与する。
	Sanitize(rawHTML string) string
}

// infoSanitizer はInfoSanitizerServiceの実装。
// bluemonday.Policyはスレッドセーフなため複数のリクエストから共有できる。
type infoSanitizer struct {
	policy *bluemonday.Policy
}

// NewInfoSanitizer はInfoSanitizerServiceの新しいインスタンスを生成する。
func NewInfoSanitizer() *infoSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("strong", "br")

	p.AllowAttrs("href").OnElements("a")
	p.RequireParseableURLs(true)
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &infoSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
func (s *infoSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
