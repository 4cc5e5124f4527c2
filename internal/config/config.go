package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Storage
	DatabaseURL string `validate:"omitempty,url"`
	RedisURL    string `validate:"omitempty,url"`

	// Apify
	ApifyToken   string `validate:"required"`
	ApifyActorID string `validate:"required"`
	ApifyBaseURL string `validate:"required,url"`

	// Fetch
	FetchTimeout time.Duration `validate:"gt=0"`
	FetchMaxSize int64         `validate:"gt=0"`

	// Cache & Sync
	CacheTTL         time.Duration `validate:"gt=0"`
	SyncSchedule     string        `validate:"required,cronspec"`
	CleanupSchedule  string        `validate:"required,cronspec"`
	SyncLockPath     string
	SchedulerEnabled bool

	// Zones & Markers
	ZonesFile           string
	MarkersRelaxOnEmpty bool
	MarkersFetchOnMiss  bool

	// Access
	AdminToken   string `validate:"required,min=16"`
	UserIDHeader string `validate:"required"`
	AllowedUsers []string

	// Rate Limit（req/min）
	RateLimitGeneral int `validate:"gt=0"`
	RateLimitSync    int `validate:"gt=0"`

	// Server
	ServerPort        string `validate:"required,numeric"`
	CORSAllowedOrigin string

	// Logging
	LogLevel string `validate:"oneof=debug info warn error"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// cron式（@every 1h などの記述子を含む）として解釈できるか
	_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.ApifyToken = os.Getenv("APIFY_TOKEN")
	if cfg.ApifyToken == "" {
		missing = append(missing, "APIFY_TOKEN")
	}

	cfg.ApifyActorID = os.Getenv("APIFY_ACTOR_ID")
	if cfg.ApifyActorID == "" {
		missing = append(missing, "APIFY_ACTOR_ID")
	}

	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	if cfg.AdminToken == "" {
		missing = append(missing, "ADMIN_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.ApifyBaseURL = getEnvString("APIFY_BASE_URL", "https://api.apify.com/v2")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 20*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 52428800)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", 24*time.Hour)
	cfg.SyncSchedule = getEnvString("SYNC_SCHEDULE", "@every 1h")
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", "0 3 * * *")
	cfg.SyncLockPath = getEnvString("SYNC_LOCK_PATH", "")
	cfg.SchedulerEnabled = getEnvBool("SCHEDULER_ENABLED", true)
	cfg.ZonesFile = getEnvString("ZONES_FILE", "")
	cfg.MarkersRelaxOnEmpty = getEnvBool("MARKERS_RELAX_ON_EMPTY", false)
	cfg.MarkersFetchOnMiss = getEnvBool("MARKERS_FETCH_ON_MISS", false)
	cfg.UserIDHeader = getEnvString("USER_ID_HEADER", "X-User-ID")
	cfg.AllowedUsers = getEnvList("ALLOWED_USERS")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSync = getEnvInt("RATE_LIMIT_SYNC", 6)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の範囲と形式を検証する。
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
}

// UserAllowed はユーザーIDが許可リストに含まれるかを返す。リストが空の場合は全員を許可する。
func (c *Config) UserAllowed(userID string) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, u := range c.AllowedUsers {
		if u == userID {
			return true
		}
	}
	return false
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvList はカンマ区切りの値を空白を除いて分割する。
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
