package handler

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/srikandi/internal/metrics"
	"github.com/hitoshi/srikandi/internal/middleware"
)

//go:embed static
var staticFS embed.FS

// hstsMaxAge はStrict-Transport-Securityの有効期間。
const hstsMaxAge = 180 * 24 * time.Hour

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	TokenVerifier     middleware.AccessTokenVerifier
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	CORSAllowedOrigin string // カンマ区切りで複数指定可
	HSTS              bool   // HTTPS配信時にStrict-Transport-Securityを付与する

	// 認証
	AuthService AuthServiceInterface
	Cookies     SessionCookieWriter

	// 文書
	ArchiveService ArchiveServiceInterface
	MaxUploadSize  int64

	// 運用
	HealthChecker  HealthChecker
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler
	Logger         *slog.Logger // nilの場合はslog.Default()
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通:
//
//	RequestID → RealIP → Recovery → Logging → SecurityHeaders
//
// 画面: CSRF → RouteGuard（/logout, /auth/confirm はガード対象外）
// 認証API（/auth/v1）: CORS → RateLimit(Login)
// 文書API（/api）: CORS → Session → CSRF → RateLimit(General)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	csrfConfig := withFormLimit(deps.CSRF, deps.MaxUploadSize)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger,
		middleware.WithStatusObserver(deps.Metrics.RecordHTTPStatus),
		middleware.WithQuietPaths("/health", "/metrics"),
	))
	var headerOpts []middleware.SecurityHeadersOption
	if deps.HSTS {
		headerOpts = append(headerOpts, middleware.WithHSTS(hstsMaxAge))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(headerOpts...))

	pages := NewPageHandler(deps.AuthService, deps.Cookies, deps.ArchiveService, deps.Metrics, deps.MaxUploadSize)
	authAPI := NewAuthAPIHandler(deps.AuthService, deps.Metrics)
	archiveAPI := NewArchiveAPIHandler(deps.ArchiveService, deps.MaxUploadSize)

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	// --- 認証API（CLIクライアント向け） ---
	r.Route("/auth/v1", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/token", authAPI.Token)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/signup", authAPI.SignUp)
		r.Post("/logout", authAPI.Logout)
		r.With(middleware.NewSessionMiddleware(deps.TokenVerifier, deps.SessionResolver)).Get("/user", authAPI.User)
	})

	// --- 文書API ---
	r.Route("/api/archives", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(middleware.NewSessionMiddleware(deps.TokenVerifier, deps.SessionResolver))
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", archiveAPI.List)
		r.Post("/", archiveAPI.Create)
		r.Get("/summary", archiveAPI.Summary)
	})

	// --- 画面 ---
	guardConfig := middleware.DefaultRouteGuardConfig()
	guardConfig.OnRedirect = deps.Metrics.RecordGuardRedirect

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		// サインアウトは常にログイン画面へ遷移させるためガードの外に置く
		r.Post("/logout", pages.Logout)
		r.Get("/auth/confirm", pages.Confirm)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRouteGuardMiddleware(deps.SessionResolver, guardConfig))

			r.Get("/", pages.Dashboard)
			r.Get("/login", pages.LoginPage)
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", pages.LoginSubmit)
			r.Get("/upload", pages.UploadPage)
			r.Post("/upload", pages.UploadSubmit)
		})
	})

	return r
}

// withFormLimit はフォーム解析の上限を添付ファイルの上限に合わせる。
func withFormLimit(cfg middleware.CSRFConfig, maxUploadSize int64) middleware.CSRFConfig {
	if cfg.MaxFormBytes <= 0 && maxUploadSize > 0 {
		cfg.MaxFormBytes = maxUploadSize + formOverhead
	}
	return cfg
}
