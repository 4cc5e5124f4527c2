package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/jobmapper/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	UserIDHeader      string
	AllowUser         middleware.UserAllowFunc
	AdminToken        string
	RateLimiter       *middleware.RateLimiter

	// 公開エンドポイント
	HealthChecks   map[string]HealthCheck
	MetricsHandler http.Handler

	// 利用者向け
	MarkerService     MarkerServiceInterface
	PreferenceService PreferenceServiceInterface

	// 管理者向け
	SyncTrigger      SyncTrigger
	SyncLog          SyncLogReader
	CacheStatus      CacheStatusReader
	ConnectionTester ConnectionTester
	LocationService  LocationServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → CORS
//	  /api/*       : Identity → RateLimit(General)
//	  /api/admin/* : AdminAuth → RateLimit(General) [→ RateLimit(Sync)]
//
// /health と /metrics は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.UserIDHeader))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin, deps.UserIDHeader))

	healthHandler := NewHealthHandler(deps.HealthChecks, deps.Logger)
	markerHandler := NewMarkerHandler(deps.MarkerService, deps.Logger)
	prefHandler := NewPreferenceHandler(deps.PreferenceService, deps.Logger)
	adminHandler := NewAdminHandler(deps.SyncTrigger, deps.SyncLog, deps.CacheStatus, deps.ConnectionTester, deps.Logger)
	locationHandler := NewLocationHandler(deps.LocationService, deps.Logger)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 管理者ルート ---
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.NewAdminAuthMiddleware(deps.AdminToken, deps.Logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.With(deps.RateLimiter.SyncMiddleware()).Post("/sync", adminHandler.TriggerSync)
		r.Get("/sync/log", adminHandler.GetSyncLog)
		r.Get("/sync/status", adminHandler.GetStatus)
		r.With(deps.RateLimiter.SyncMiddleware()).Post("/connection-test", adminHandler.TestConnection)

		r.Route("/locations", func(r chi.Router) {
			r.Get("/", locationHandler.ListLocations)
			r.Post("/", locationHandler.CreateLocation)
			r.Put("/", locationHandler.ReplaceLocations)
			r.Put("/{id}", locationHandler.UpdateLocation)
			r.Delete("/{id}", locationHandler.DeleteLocation)
		})
	})

	// --- 利用者ルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.UserIDHeader, deps.AllowUser, deps.Logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/markers", markerHandler.GetMarkers)

		r.Route("/api/preferences", func(r chi.Router) {
			r.Get("/", prefHandler.GetPreferences)
			r.Delete("/ignored", prefHandler.ClearIgnoredJobs)
			r.Put("/location", prefHandler.SaveLocation)
			r.Put("/geolocation", prefHandler.SetGeolocation)
		})

		r.Route("/api/jobs/{id}/ignore", func(r chi.Router) {
			r.Post("/", prefHandler.IgnoreJob)
			r.Delete("/", prefHandler.UnignoreJob)
		})
	})

	return r
}
