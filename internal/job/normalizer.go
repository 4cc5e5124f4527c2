// Package job は求人データの正規化と地理フィルタ・マーカー分類を提供する。
package job

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/hitoshi/jobmapper/internal/model"
)

// フィールドの探索パス。先頭から順に試行する。
var (
	idPaths        = [][]string{{"id"}, {"jobkey"}, {"jobKey"}}
	titlePaths     = [][]string{{"title"}, {"positionName"}}
	companyPaths   = [][]string{{"employer", "name"}, {"company"}, {"companyName"}}
	cityPaths      = [][]string{{"location", "city"}, {"city"}}
	urlPaths       = [][]string{{"joburl"}, {"url"}, {"jobUrl"}}
	latitudePaths  = [][]string{{"location", "latitude"}, {"latitude"}, {"lat"}}
	longitudePaths = [][]string{{"location", "longitude"}, {"longitude"}, {"lng"}}
	salaryPaths    = [][]string{{"basesalary"}, {"baseSalary"}, {"salary"}}
	jobTypePaths   = [][]string{{"jobtype"}, {"jobType"}, {"jobTypes"}}
	// 公開日時は datePublished を優先し、次に dateOnIndeed を使う
	publishedPaths = [][]string{{"datePublished"}, {"dateOnIndeed"}}
)

// epochMillisThreshold を超える数値はミリ秒として解釈する。
const epochMillisThreshold = 1e11

// Normalize は生レコードから正規化済み求人を抽出する。
// 緯度・経度のいずれかが欠落または解釈不能な場合のみ ok=false を返す。
// それ以外のフィールドは空値・ゼロ値に縮退する。
func Normalize(raw model.RawJobRecord) (model.NormalizedJob, bool) {
	lat, ok := floatAt(raw, latitudePaths)
	if !ok {
		return model.NormalizedJob{}, false
	}
	lng, ok := floatAt(raw, longitudePaths)
	if !ok {
		return model.NormalizedJob{}, false
	}

	j := model.NormalizedJob{
		ID:        stringAt(raw, idPaths),
		Title:     stringAt(raw, titlePaths),
		Company:   stringAt(raw, companyPaths),
		City:      stringAt(raw, cityPaths),
		URL:       stringAt(raw, urlPaths),
		Latitude:  lat,
		Longitude: lng,
	}

	applySalary(&j, raw)
	j.JobTypeLabel = jobTypeLabel(raw)
	j.PublishedAt = publishedAt(raw)

	return j, true
}

// NormalizeAll はデータセット全体を正規化する。
// 座標を持たないレコードは除外し、その件数をdroppedとして返す。
func NormalizeAll(raws []model.RawJobRecord) (jobs []model.NormalizedJob, dropped int) {
	jobs = make([]model.NormalizedJob, 0, len(raws))
	for _, raw := range raws {
		j, ok := Normalize(raw)
		if !ok {
			dropped++
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, dropped
}

// IsPartTime は雇用形態がパートタイムかを返す。
func IsPartTime(j model.NormalizedJob) bool {
	return strings.Contains(j.JobTypeLabel, "part-time")
}

// applySalary は給与構造から表示ラベルと比較用の値を設定する。
// ラベルは "<min>[ - <max>][ <currency>][ / <unit>]" の形式で、欠落部分は省略する。
func applySalary(j *model.NormalizedJob, raw model.RawJobRecord) {
	v, ok := valueAt(raw, salaryPaths)
	if !ok {
		return
	}

	salary, isMap := v.(map[string]any)
	if !isMap {
		// 構造化されていない給与文字列はラベルのみ使用する
		if s, err := cast.ToStringE(v); err == nil {
			j.SalaryLabel = strings.TrimSpace(s)
		}
		return
	}

	var rangeParts []string
	if text, f, ok := salaryAmount(salary["min"]); ok {
		rangeParts = append(rangeParts, text)
		if f != nil {
			j.SalaryMin = f
		}
	}
	if text, f, ok := salaryAmount(salary["max"]); ok {
		rangeParts = append(rangeParts, text)
		if f != nil {
			j.SalaryMax = f
		}
	}

	var b strings.Builder
	b.WriteString(strings.Join(rangeParts, " - "))
	if currency := firstString(salary, "currencyCode", "currency"); currency != "" {
		appendPart(&b, " ", currency)
	}
	if unit := firstString(salary, "unitOfWork", "unit", "unitText"); unit != "" {
		appendPart(&b, " / ", unit)
	}
	j.SalaryLabel = b.String()

	switch {
	case j.SalaryMax != nil:
		j.SalaryValue = *j.SalaryMax
	case j.SalaryMin != nil:
		j.SalaryValue = *j.SalaryMin
	}
}

// salaryAmount は給与額を表示用文字列と数値に変換する。
// 数値として解釈できない場合でも文字列があれば表示用に返す。
func salaryAmount(v any) (string, *float64, bool) {
	if v == nil {
		return "", nil, false
	}
	text, err := cast.ToStringE(v)
	if err != nil {
		return "", nil, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, false
	}
	f, err := cast.ToFloat64E(strings.ReplaceAll(text, ",", ""))
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return text, nil, true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), &f, true
}

func appendPart(b *strings.Builder, sep, part string) {
	if b.Len() > 0 {
		b.WriteString(sep)
	}
	b.WriteString(part)
}

// jobTypeLabel は雇用形態タグを小文字化して連結する。文字列とリストの両方に対応する。
func jobTypeLabel(raw model.RawJobRecord) string {
	v, ok := valueAt(raw, jobTypePaths)
	if !ok {
		return ""
	}
	var tags []string
	if list, isList := v.([]any); isList {
		for _, item := range list {
			if s, err := cast.ToStringE(item); err == nil && strings.TrimSpace(s) != "" {
				tags = append(tags, strings.TrimSpace(s))
			}
		}
	} else if s, err := cast.ToStringE(v); err == nil {
		tags = append(tags, strings.TrimSpace(s))
	}
	return strings.ToLower(strings.Join(tags, ", "))
}

// publishedAt は公開日時を候補フィールドから順に解釈する。
func publishedAt(raw model.RawJobRecord) *time.Time {
	for _, path := range publishedPaths {
		v, ok := lookup(raw, path)
		if !ok {
			continue
		}
		if t, ok := parseTime(v); ok {
			return &t
		}
	}
	return nil
}

func parseTime(v any) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return epochTime(n)
	case int:
		return epochTime(float64(n))
	case int64:
		return epochTime(float64(n))
	case string:
		if strings.TrimSpace(n) == "" {
			return time.Time{}, false
		}
	}
	t, err := cast.ToTimeE(v)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func epochTime(n float64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n > epochMillisThreshold {
		return time.UnixMilli(int64(n)).UTC(), true
	}
	return time.Unix(int64(n), 0).UTC(), true
}

// lookup はネストしたマップをパスに沿って辿る。欠落キーでもpanicしない。
func lookup(raw map[string]any, path []string) (any, bool) {
	var cur any = raw
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func valueAt(raw map[string]any, paths [][]string) (any, bool) {
	for _, path := range paths {
		if v, ok := lookup(raw, path); ok {
			return v, true
		}
	}
	return nil, false
}

func stringAt(raw map[string]any, paths [][]string) string {
	for _, path := range paths {
		v, ok := lookup(raw, path)
		if !ok {
			continue
		}
		if _, nested := v.(map[string]any); nested {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringAt(m, [][]string{{key}}); s != "" {
			return s
		}
	}
	return ""
}

// floatAt は最初に数値として解釈できたパスの値を返す。
// bool値は座標として扱わない。
func floatAt(raw map[string]any, paths [][]string) (float64, bool) {
	for _, path := range paths {
		v, ok := lookup(raw, path)
		if !ok {
			continue
		}
		if _, isBool := v.(bool); isBool {
			continue
		}
		if s, isString := v.(string); isString {
			v = strings.TrimSpace(s)
		}
		f, err := cast.ToFloat64E(v)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		return f, true
	}
	return 0, false
}
