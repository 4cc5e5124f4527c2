package job

import "github.com/hitoshi/jobmapper/internal/model"

// HTMLSanitizer はHTMLサニタイズ処理のインターフェース。
type HTMLSanitizer interface {
	Sanitize(rawHTML string) string
}

// SanitizedRenderer は InfoHTML の出力をサニタイザに通してから返す InfoRenderer。
type SanitizedRenderer struct {
	sanitizer HTMLSanitizer
}

// NewSanitizedRenderer はSanitizedRendererの新しいインスタンスを生成する。
func NewSanitizedRenderer(sanitizer HTMLSanitizer) *SanitizedRenderer {
	return &SanitizedRenderer{sanitizer: sanitizer}
}

// RenderInfo はInfoRendererインターフェースを実装する。
func (r *SanitizedRenderer) RenderInfo(j model.NormalizedJob) string {
	return r.sanitizer.Sanitize(InfoHTML(j))
}
