package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/jobmapper/internal/config"
	"github.com/hitoshi/jobmapper/internal/logger"
	"github.com/hitoshi/jobmapper/internal/repository"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APIFY_TOKEN", "apify-secret")
	t.Setenv("APIFY_ACTOR_ID", "user~indeed-scraper")
	t.Setenv("ADMIN_TOKEN", "admin-token-0123456789")
}

func TestInit_LoadsConfigAndLogsJSON(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	cfg, log, err := Init(&buf)
	if err != nil {
		t.Fatalf("Initがエラーを返しました: %v", err)
	}
	t.Cleanup(func() { _ = logger.SetLevel("info") })

	if cfg.ApifyActorID != "user~indeed-scraper" {
		t.Errorf("ApifyActorID = %q", cfg.ApifyActorID)
	}

	log.Info("出力されない")
	log.Warn("出力される")
	out := buf.String()
	if strings.Contains(out, "出力されない") {
		t.Error("LOG_LEVEL=warn の場合Infoは出力されないべき")
	}
	if !strings.Contains(out, `"msg":"出力される"`) {
		t.Errorf("WarnがJSONで出力されるべき: %s", out)
	}
}

func TestInit_MissingRequiredEnv(t *testing.T) {
	t.Setenv("APIFY_TOKEN", "")
	t.Setenv("APIFY_ACTOR_ID", "")
	t.Setenv("ADMIN_TOKEN", "")

	if _, _, err := Init(&bytes.Buffer{}); err == nil {
		t.Fatal("必須環境変数が無い場合はエラーになるべき")
	}
}

func TestRunHealthcheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	ctx := context.Background()
	if err := runHealthcheck(ctx, healthy.URL+"/health"); err != nil {
		t.Errorf("200の場合は成功するべき: %v", err)
	}
	if err := runHealthcheck(ctx, unhealthy.URL+"/health"); err == nil {
		t.Error("503の場合はエラーになるべき")
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()
	if err := runHealthcheck(ctx, closedURL+"/health"); err == nil {
		t.Error("接続できない場合はエラーになるべき")
	}
}

func TestHealthcheckURL(t *testing.T) {
	if got := healthcheckURL("9090"); got != "http://localhost:9090/health" {
		t.Errorf("healthcheckURL = %q", got)
	}
}

func TestDefaultPort(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	if got := defaultPort(); got != "8080" {
		t.Errorf("未設定の場合は8080であるべき: got %q", got)
	}
	t.Setenv("SERVER_PORT", "9000")
	if got := defaultPort(); got != "9000" {
		t.Errorf("SERVER_PORTを使うべき: got %q", got)
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://user:secret@db:5432/jobmapper")
	if strings.Contains(got, "secret") {
		t.Errorf("パスワードがマスクされていません: %s", got)
	}
	if got := maskDatabaseURL("short"); got != "***" {
		t.Errorf("短いURLは全てマスクするべき: %s", got)
	}
}

func TestParseSteps(t *testing.T) {
	tests := []struct {
		args    []string
		want    int
		wantErr bool
	}{
		{nil, 1, false},
		{[]string{"3"}, 3, false},
		{[]string{"0"}, 0, true},
		{[]string{"-1"}, 0, true},
		{[]string{"abc"}, 0, true},
	}
	for _, tt := range tests {
		got, err := parseSteps(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSteps(%v) err = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSteps(%v) = %d, want %d", tt.args, got, tt.want)
		}
	}
}

func TestHostOf(t *testing.T) {
	host, err := hostOf("https://api.apify.com/v2")
	if err != nil || host != "api.apify.com" {
		t.Errorf("hostOf = %q, %v", host, err)
	}
	if _, err := hostOf("not a url"); err == nil {
		t.Error("ホスト名の無いURLはエラーになるべき")
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ApifyToken:       "apify-secret",
		ApifyActorID:     "user~indeed-scraper",
		ApifyBaseURL:     "https://api.apify.com/v2",
		FetchTimeout:     5 * time.Second,
		FetchMaxSize:     1 << 20,
		CacheTTL:         time.Hour,
		SyncSchedule:     "@every 1h",
		CleanupSchedule:  "0 3 * * *",
		AdminToken:       "admin-token-0123456789",
		UserIDHeader:     "X-User-ID",
		RateLimitGeneral: 120,
		RateLimitSync:    6,
		ServerPort:       "8080",
		LogLevel:         "info",
	}
}

func TestBuildComponents_MemoryFallbackWithSeed(t *testing.T) {
	zones := filepath.Join(t.TempDir(), "zones.yaml")
	err := os.WriteFile(zones, []byte(`zones:
  - label: Downtown
    latitude: 40.7128
    longitude: -74.0060
    radius_meters: 8000
    mode: inside
`), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	cfg.ZonesFile = zones

	var buf bytes.Buffer
	ctx := context.Background()
	c, err := buildComponents(ctx, cfg, logger.Setup(&buf))
	if err != nil {
		t.Fatalf("buildComponentsがエラーを返しました: %v", err)
	}
	defer c.Close()

	if got := c.stores.Cache.Backend(); got != repository.BackendMemory {
		t.Errorf("接続先が無い場合はメモリキャッシュであるべき: got %q", got)
	}
	if checks := c.healthChecks(); len(checks) != 0 {
		t.Errorf("メモリの場合はヘルスチェック対象なしであるべき: got %d", len(checks))
	}

	locs, err := c.locations.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(locs) != 1 || locs[0].Label != "Downtown" {
		t.Errorf("ゾーンがシードされるべき: got %+v", locs)
	}
	if !strings.Contains(buf.String(), "ゾーンをシードしました") {
		t.Error("シード件数がログに出力されるべき")
	}

	sched, err := c.newScheduler(ctx)
	if err != nil {
		t.Fatalf("newSchedulerがエラーを返しました: %v", err)
	}
	if sched == nil {
		t.Fatal("スケジューラが生成されるべき")
	}
}

func TestBuildComponents_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.ApifyBaseURL = "/relative"
	if _, err := buildComponents(ctx, cfg, logger.Setup(&bytes.Buffer{})); err == nil {
		t.Error("ホスト名の無いAPIFY_BASE_URLはエラーになるべき")
	}

	cfg = testConfig(t)
	cfg.ZonesFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := buildComponents(ctx, cfg, logger.Setup(&bytes.Buffer{})); err == nil {
		t.Error("存在しないゾーン定義ファイルはエラーになるべき")
	}
}
