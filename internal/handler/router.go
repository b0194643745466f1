package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/filedrop/internal/metrics"
	"github.com/hitoshi/filedrop/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	UserResolver      middleware.UserResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	IdentityService IdentityServiceInterface
	FileService     FileServiceInterface
	Spooler         Spooler

	// メトリクス
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	// ハンドラー設定
	AuthConfig AuthHandlerConfig
	FileConfig FileHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Metrics → Logging が全ルートに効き、
//	認証が必要なグループにはさらに Session → RateLimit(General) が重なる。
//
// 公開ダウンロード（/f/{key}）と登録・ログインはセッションの外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	authHandler := NewAuthHandler(deps.IdentityService, deps.Metrics, deps.AuthConfig)
	fileHandler := NewFileHandler(deps.FileService, deps.Spooler, deps.Metrics, deps.FileConfig)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// 公開ダウンロード。キーが推測不能な能力トークンとして働く
	r.Get("/f/{key}", fileHandler.Download)

	// アカウント作成とログイン。ログインは総当たり対策のIP別レート制限つき
	r.Post("/api/register", authHandler.Register)
	r.With(deps.RateLimiter.LoginMiddleware()).Post("/api/login", authHandler.Login)
	r.Delete("/api/login", authHandler.Logout)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.UserResolver, deps.AuthConfig.CookieSecure))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// アカウント
		r.Get("/api/user", authHandler.Me)
		r.Delete("/api/user", authHandler.Withdraw)

		// ファイル管理
		r.Route("/api/files", func(r chi.Router) {
			r.Post("/", fileHandler.Upload)
			r.Get("/", fileHandler.List)
			r.Delete("/{key}", fileHandler.Delete)
		})
	})

	return r
}
