package handler

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/kakeibo/internal/metrics"
	"github.com/hitoshi/kakeibo/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Sessions          middleware.SessionFinder
	Users             middleware.UserFinder
	Signer            CookieSigner
	RequireLogin      bool
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 運用
	HealthChecker  HealthChecker
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// 画面
	Templates *template.Template

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 家計簿
	LedgerService LedgerServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → StatusMetrics → SecurityHeaders → CORS
//	  → CSRF → Session → Logging → RateLimit(General) → RateLimit(Mutation)
//
// ログイン関連のルートはログイン必須設定に関わらず未ログインで到達できる。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Metrics != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRFConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- 運用エンドポイント ---
	r.With(middleware.NewLoggingMiddleware(logger)).Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Signer, deps.Templates, deps.AuthConfig)
	pageHandler := NewPageHandler(deps.LedgerService, deps.Templates)
	txHandler := NewTransactionHandler(deps.LedgerService)

	sessionConfig := middleware.SessionConfig{
		Sessions: deps.Sessions,
		Users:    deps.Users,
		Verifier: deps.Signer,
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// --- ログイン不要のルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(sessionConfig))
			r.Use(middleware.NewLoggingMiddleware(logger))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/login", authHandler.Login)
			r.Get("/auth/callback", authHandler.Callback)
			r.Get("/logout", authHandler.Logout)
			r.Post("/logout", authHandler.Logout)
			r.Get("/api/me", authHandler.Me)
			r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler().ServeHTTP)
		})

		// --- ログイン必須設定の対象ルート ---
		protected := sessionConfig
		protected.RequireLogin = deps.RequireLogin
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(protected))
			r.Use(middleware.NewLoggingMiddleware(logger))
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(deps.RateLimiter.MutationMiddleware())

			r.Get("/", pageHandler.Index)
			r.Post("/transactions", pageHandler.Create)
			r.Post("/transactions/{id}/delete", pageHandler.Delete)

			r.Route("/api/transactions", func(r chi.Router) {
				r.Get("/", txHandler.ListTransactions)
				r.Post("/", txHandler.CreateTransaction)
				r.Delete("/{id}", txHandler.DeleteTransaction)
			})
		})
	})

	return r
}
