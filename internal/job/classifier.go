package job

import (
	"html"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/jobmapper/internal/geo"
	"github.com/hitoshi/jobmapper/internal/model"
)

// DefaultTopPaidLimit は給与上位として扱う求人の最大件数。
const DefaultTopPaidLimit = 10

// InfoRenderer はマーカーの情報ウィンドウHTMLを生成するインターフェース。
type InfoRenderer interface {
	RenderInfo(j model.NormalizedJob) string
}

// Options は分類の動作設定。
type Options struct {
	// TopPaidLimit は給与上位として扱う件数。0以下の場合はDefaultTopPaidLimitを使う。
	TopPaidLimit int
	// RelaxOnEmpty はゾーン判定で結果が空になった場合に、
	// 先頭ゾーンのみで再判定する縮退モードを有効にする。
	RelaxOnEmpty bool
}

// Result は分類結果を表す。
type Result struct {
	Markers []model.MarkerJob
	// Candidates は非表示求人を除いた分類対象の件数。
	Candidates int
	// Relaxed は縮退モード（先頭ゾーンのみ）で判定したかを示す。
	Relaxed bool
}

// Classifier はゾーンによる絞り込みとマーカーカテゴリの付与を行う。
// 状態を持たないため並行に利用できる。
type Classifier struct {
	renderer InfoRenderer
	opts     Options
}

// NewClassifier はClassifierの新しいインスタンスを生成する。
// rendererがnilの場合はエスケープのみのプレーンな情報HTMLを生成する。
func NewClassifier(renderer InfoRenderer, opts Options) *Classifier {
	if renderer == nil {
		renderer = plainRenderer{}
	}
	if opts.TopPaidLimit <= 0 {
		opts.TopPaidLimit = DefaultTopPaidLimit
	}
	return &Classifier{renderer: renderer, opts: opts}
}

// Classify は求人をゾーンで絞り込み、マーカーに変換する。
//
//  1. ignored に含まれるIDの求人を除外する
//  2. 給与値（>0）の上位N件を給与上位とする（同値は入力順）
//  3. 公開日時が最も新しい1件を最新とする（分単位で比較し、同一分内は正確な時刻で比較）
//  4. 給与上位以外の求人は全ゾーンの条件を満たす必要がある
//  5. 給与上位はゾーン判定を免除され、最新はゾーン判定を通過した場合のみ含まれる
//  6. カテゴリは 給与上位 → 最新 → 通常 の優先順で付与する
//
// 同一入力に対して常に同一の結果を返す。
func (c *Classifier) Classify(jobs []model.NormalizedJob, zones []model.Location, ignored map[string]struct{}) []model.MarkerJob {
	return c.ClassifyDetailed(jobs, zones, ignored).Markers
}

// ClassifyDetailed はClassifyと同じ判定を行い、縮退モードの適用有無などを含む結果を返す。
func (c *Classifier) ClassifyDetailed(jobs []model.NormalizedJob, zones []model.Location, ignored map[string]struct{}) Result {
	candidates := make([]model.NormalizedJob, 0, len(jobs))
	for _, j := range jobs {
		if j.ID != "" {
			if _, skip := ignored[j.ID]; skip {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	topPaid := topPaidIndexes(candidates, c.opts.TopPaidLimit)
	newest := newestIndex(candidates)

	markers := c.buildMarkers(candidates, zones, topPaid, newest)
	result := Result{Markers: markers, Candidates: len(candidates)}

	if c.opts.RelaxOnEmpty && len(markers) == 0 && len(candidates) > 0 && len(zones) > 1 {
		result.Markers = c.buildMarkers(candidates, zones[:1], topPaid, newest)
		result.Relaxed = true
	}

	return result
}

func (c *Classifier) buildMarkers(candidates []model.NormalizedJob, zones []model.Location, topPaid map[int]struct{}, newest int) []model.MarkerJob {
	markers := make([]model.MarkerJob, 0, len(candidates))
	for i, j := range candidates {
		category := model.MarkerCategoryDefault
		if _, ok := topPaid[i]; ok {
			category = model.MarkerCategoryTopPaid
		} else {
			if !MatchesZones(j, zones) {
				continue
			}
			if i == newest {
				category = model.MarkerCategoryNewest
			}
		}
		markers = append(markers, c.toMarker(j, category))
	}
	return markers
}

func (c *Classifier) toMarker(j model.NormalizedJob, category model.MarkerCategory) model.MarkerJob {
	return model.MarkerJob{
		ID:          j.ID,
		Lat:         j.Latitude,
		Lng:         j.Longitude,
		Title:       MarkerTitle(j),
		Info:        c.renderer.RenderInfo(j),
		Color:       markerColor(j, category),
		Category:    category,
		SalaryValue: j.SalaryValue,
		PublishedAt: j.PublishedAt,
	}
}

// MatchesZones は求人が全ゾーンの条件を満たすかを返す。
// ゾーンが0件の場合は常にtrue。最初に条件を満たさないゾーンで判定を打ち切る。
func MatchesZones(j model.NormalizedJob, zones []model.Location) bool {
	for _, z := range zones {
		if !MatchesZone(j, z) {
			return false
		}
	}
	return true
}

// MatchesZone は求人が1つのゾーンの条件を満たすかを返す。
// inside は距離が半径以下、outside は距離が半径より大きい場合に満たす。
func MatchesZone(j model.NormalizedJob, z model.Location) bool {
	d := geo.HaversineMeters(z.Latitude, z.Longitude, j.Latitude, j.Longitude)
	if z.Mode == model.ZoneModeOutside {
		return d > z.RadiusMeters
	}
	return d <= z.RadiusMeters
}

// topPaidIndexes は給与値が正の求人のうち上位limit件のインデックスを返す。
// 安定ソートのため同値の場合は入力順が優先される。
func topPaidIndexes(jobs []model.NormalizedJob, limit int) map[int]struct{} {
	idx := make([]int, 0, len(jobs))
	for i, j := range jobs {
		if j.SalaryValue > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return jobs[idx[a]].SalaryValue > jobs[idx[b]].SalaryValue
	})
	if len(idx) > limit {
		idx = idx[:limit]
	}

	set := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		set[i] = struct{}{}
	}
	return set
}

// newestIndex は公開日時が最も新しい求人のインデックスを返す。該当なしの場合は-1。
// 分単位に切り捨てた時刻を第1キー、正確な時刻を第2キーとし、完全に同一の場合は入力順で先の求人を選ぶ。
func newestIndex(jobs []model.NormalizedJob) int {
	best := -1
	var bestMinute, bestExact time.Time
	for i, j := range jobs {
		if j.PublishedAt == nil {
			continue
		}
		exact := *j.PublishedAt
		minute := exact.Truncate(time.Minute)
		if best == -1 ||
			minute.After(bestMinute) ||
			(minute.Equal(bestMinute) && exact.After(bestExact)) {
			best = i
			bestMinute = minute
			bestExact = exact
		}
	}
	return best
}

// MarkerTitle はマーカーのツールチップ用タイトルを返す。
// 会社名に給与ラベルを続けた形式で、会社名が空の場合は求人タイトルを使う。
func MarkerTitle(j model.NormalizedJob) string {
	name := j.Company
	if name == "" {
		name = j.Title
	}
	if j.SalaryLabel == "" {
		return name
	}
	if name == "" {
		return j.SalaryLabel
	}
	return name + " - " + j.SalaryLabel
}

func markerColor(j model.NormalizedJob, category model.MarkerCategory) string {
	switch category {
	case model.MarkerCategoryTopPaid:
		return model.MarkerColorTopPaid
	case model.MarkerCategoryNewest:
		return model.MarkerColorNewest
	}
	if IsPartTime(j) {
		return model.MarkerColorPartTime
	}
	return model.MarkerColorDefault
}

// InfoHTML は求人の情報ウィンドウHTMLを組み立てる。各値はHTMLエスケープする。
func InfoHTML(j model.NormalizedJob) string {
	var parts []string
	if j.Title != "" {
		parts = append(parts, "<strong>"+html.EscapeString(j.Title)+"</strong>")
	}
	for _, s := range []string{j.Company, j.SalaryLabel, j.City} {
		if s != "" {
			parts = append(parts, html.EscapeString(s))
		}
	}
	if j.URL != "" {
		parts = append(parts, `<a href="`+html.EscapeString(j.URL)+`" target="_blank" rel="noopener">View Job</a>`)
	}
	return strings.Join(parts, "<br>")
}

type plainRenderer struct{}

func (plainRenderer) RenderInfo(j model.NormalizedJob) string {
	return InfoHTML(j)
}
