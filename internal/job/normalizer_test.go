package job

import (
	"testing"
	"time"

	"github.com/hitoshi/jobmapper/internal/model"
)

func indeedRecord() model.RawJobRecord {
	return model.RawJobRecord{
		"id":    "job-1",
		"title": "Barista",
		"employer": map[string]any{
			"name": "Cafe Uno",
		},
		"location": map[string]any{
			"latitude":  40.7128,
			"longitude": -74.006,
			"city":      "New York",
		},
		"basesalary": map[string]any{
			"min":          15.0,
			"max":          18.5,
			"currencyCode": "USD",
			"unitOfWork":   "HOUR",
		},
		"jobtype":       []any{"Full-time", "Part-time"},
		"datePublished": "2024-05-01T10:15:30Z",
		"joburl":        "https://example.com/jobs/1",
	}
}

// TestNormalize_FullRecord は全フィールドを持つレコードの正規化を検証する。
func TestNormalize_FullRecord(t *testing.T) {
	j, ok := Normalize(indeedRecord())
	if !ok {
		t.Fatal("座標を持つレコードは ok=true であるべき")
	}

	if j.ID != "job-1" {
		t.Errorf("ID = %q, want %q", j.ID, "job-1")
	}
	if j.Title != "Barista" {
		t.Errorf("Title = %q, want %q", j.Title, "Barista")
	}
	if j.Company != "Cafe Uno" {
		t.Errorf("Company = %q, want %q", j.Company, "Cafe Uno")
	}
	if j.City != "New York" {
		t.Errorf("City = %q, want %q", j.City, "New York")
	}
	if j.URL != "https://example.com/jobs/1" {
		t.Errorf("URL = %q", j.URL)
	}
	if j.Latitude != 40.7128 || j.Longitude != -74.006 {
		t.Errorf("座標 = (%v, %v), want (40.7128, -74.006)", j.Latitude, j.Longitude)
	}
	if j.SalaryLabel != "15 - 18.5 USD / HOUR" {
		t.Errorf("SalaryLabel = %q, want %q", j.SalaryLabel, "15 - 18.5 USD / HOUR")
	}
	if j.SalaryMin == nil || *j.SalaryMin != 15 {
		t.Errorf("SalaryMin = %v, want 15", j.SalaryMin)
	}
	if j.SalaryValue != 18.5 {
		t.Errorf("SalaryValue = %v, want 18.5 (max優先)", j.SalaryValue)
	}
	if j.JobTypeLabel != "full-time, part-time" {
		t.Errorf("JobTypeLabel = %q", j.JobTypeLabel)
	}
	if !IsPartTime(j) {
		t.Error("part-time を含む雇用形態はパートタイムと判定されるべき")
	}
	want := time.Date(2024, 5, 1, 10, 15, 30, 0, time.UTC)
	if j.PublishedAt == nil || !j.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", j.PublishedAt, want)
	}
}

// TestNormalize_MissingCoordinates は座標欠落時のみ拒否されることを検証する。
func TestNormalize_MissingCoordinates(t *testing.T) {
	tests := []struct {
		name string
		raw  model.RawJobRecord
	}{
		{"座標なし", model.RawJobRecord{"title": "x"}},
		{"緯度のみ", model.RawJobRecord{"location": map[string]any{"latitude": 40.0}}},
		{"経度のみ", model.RawJobRecord{"longitude": -73.0}},
		{"解釈不能な文字列", model.RawJobRecord{"latitude": "north", "longitude": "west"}},
		{"null値", model.RawJobRecord{"latitude": nil, "longitude": nil}},
		{"bool値", model.RawJobRecord{"latitude": true, "longitude": false}},
		{"locationが文字列", model.RawJobRecord{"location": "Austin, TX"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Normalize(tt.raw); ok {
				t.Errorf("Normalize(%v) は ok=false を返すべき", tt.raw)
			}
		})
	}
}

// TestNormalize_MinimalRecord は座標のみのレコードが既定値に縮退することを検証する。
func TestNormalize_MinimalRecord(t *testing.T) {
	j, ok := Normalize(model.RawJobRecord{"latitude": "40.5", "longitude": " -73.25 "})
	if !ok {
		t.Fatal("文字列の座標も解釈できるべき")
	}
	if j.Latitude != 40.5 || j.Longitude != -73.25 {
		t.Errorf("座標 = (%v, %v)", j.Latitude, j.Longitude)
	}
	if j.ID != "" || j.Title != "" || j.SalaryLabel != "" || j.JobTypeLabel != "" {
		t.Errorf("欠落フィールドは空文字列であるべき: %+v", j)
	}
	if j.SalaryMin != nil || j.SalaryMax != nil || j.SalaryValue != 0 {
		t.Errorf("給与は未設定であるべき: %+v", j)
	}
	if j.PublishedAt != nil {
		t.Errorf("PublishedAt は nil であるべき: %v", j.PublishedAt)
	}
}

// TestNormalize_SalaryLabel は給与ラベルの組み立てを検証する。
func TestNormalize_SalaryLabel(t *testing.T) {
	tests := []struct {
		name      string
		salary    any
		wantLabel string
		wantValue float64
	}{
		{
			name:      "最小値のみ",
			salary:    map[string]any{"min": 20.0},
			wantLabel: "20",
			wantValue: 20,
		},
		{
			name:      "最大値と通貨",
			salary:    map[string]any{"max": 50000.0, "currencyCode": "EUR"},
			wantLabel: "50000 EUR",
			wantValue: 50000,
		},
		{
			name:      "カンマ区切りの文字列",
			salary:    map[string]any{"min": "40,000", "max": "55,000", "currency": "USD", "unit": "YEAR"},
			wantLabel: "40000 - 55000 USD / YEAR",
			wantValue: 55000,
		},
		{
			name:      "数値でない最大値は最小値にフォールバック",
			salary:    map[string]any{"min": 12.0, "max": "negotiable"},
			wantLabel: "12 - negotiable",
			wantValue: 12,
		},
		{
			name:      "構造化されていない給与文字列",
			salary:    " $18 an hour ",
			wantLabel: "$18 an hour",
			wantValue: 0,
		},
		{
			name:      "空の構造",
			salary:    map[string]any{},
			wantLabel: "",
			wantValue: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := model.RawJobRecord{"latitude": 1.0, "longitude": 2.0, "salary": tt.salary}
			j, ok := Normalize(raw)
			if !ok {
				t.Fatal("ok=true であるべき")
			}
			if j.SalaryLabel != tt.wantLabel {
				t.Errorf("SalaryLabel = %q, want %q", j.SalaryLabel, tt.wantLabel)
			}
			if j.SalaryValue != tt.wantValue {
				t.Errorf("SalaryValue = %v, want %v", j.SalaryValue, tt.wantValue)
			}
		})
	}
}

// TestNormalize_JobType は雇用形態ラベルの生成を検証する。
func TestNormalize_JobType(t *testing.T) {
	tests := []struct {
		name     string
		jobType  any
		want     string
		partTime bool
	}{
		{"文字列", "Part-Time", "part-time", true},
		{"リスト", []any{"Full-time"}, "full-time", false},
		{"空要素を含むリスト", []any{"", "Contract", " "}, "contract", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, _ := Normalize(model.RawJobRecord{"lat": 1.0, "lng": 2.0, "jobType": tt.jobType})
			if j.JobTypeLabel != tt.want {
				t.Errorf("JobTypeLabel = %q, want %q", j.JobTypeLabel, tt.want)
			}
			if IsPartTime(j) != tt.partTime {
				t.Errorf("IsPartTime = %v, want %v", IsPartTime(j), tt.partTime)
			}
		})
	}
}

// TestNormalize_PublishedAt は公開日時の候補フィールドと形式を検証する。
func TestNormalize_PublishedAt(t *testing.T) {
	tests := []struct {
		name string
		raw  model.RawJobRecord
		want *time.Time
	}{
		{
			name: "datePublishedが解釈不能ならdateOnIndeedを使う",
			raw:  model.RawJobRecord{"datePublished": "yesterday", "dateOnIndeed": "2024-03-02T08:00:00Z"},
			want: ptrTime(time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)),
		},
		{
			name: "エポック秒",
			raw:  model.RawJobRecord{"datePublished": 1700000000.0},
			want: ptrTime(time.Unix(1700000000, 0).UTC()),
		},
		{
			name: "エポックミリ秒",
			raw:  model.RawJobRecord{"dateOnIndeed": 1700000000123.0},
			want: ptrTime(time.UnixMilli(1700000000123).UTC()),
		},
		{
			name: "両方欠落",
			raw:  model.RawJobRecord{"datePublished": ""},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.raw["latitude"] = 1.0
			tt.raw["longitude"] = 2.0
			j, _ := Normalize(tt.raw)
			switch {
			case tt.want == nil && j.PublishedAt != nil:
				t.Errorf("PublishedAt = %v, want nil", j.PublishedAt)
			case tt.want != nil && (j.PublishedAt == nil || !j.PublishedAt.Equal(*tt.want)):
				t.Errorf("PublishedAt = %v, want %v", j.PublishedAt, *tt.want)
			}
		})
	}
}

// TestNormalizeAll は座標を持たないレコードが除外・計数されることを検証する。
func TestNormalizeAll(t *testing.T) {
	raws := []model.RawJobRecord{
		indeedRecord(),
		{"title": "no coordinates"},
		{"latitude": 1.0, "longitude": 2.0},
	}

	jobs, dropped := NormalizeAll(raws)
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if jobs[0].ID != "job-1" {
		t.Errorf("入力順が保持されるべき: jobs[0].ID = %q", jobs[0].ID)
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
