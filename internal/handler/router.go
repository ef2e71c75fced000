package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/unlinked/internal/middleware"
	"github.com/hitoshi/unlinked/internal/metrics"
	"github.com/hitoshi/unlinked/internal/model"
)

// HealthChecker はヘルスチェックで疎通を確認する依存先。
// *sql.DB が満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// SessionStore はルーターが必要とするセッション操作をまとめたインターフェース。
// session.Manager が満たす。
type SessionStore interface {
	middleware.SessionGate
	SessionCookies
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	Metrics            metrics.Recorder
	CORSAllowedOrigins []string
	HSTS               bool

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	Sessions    SessionStore
	Accounts    middleware.AccountFinder
	Handshakes  HandshakeVerifier

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ConsultantRoutes はCONSULTANTロールのみが利用できるルートを登録する。
	// nilの場合は /api/v1/consultants をマウントしない。
	ConsultantRoutes func(r chi.Router)
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → OriginCheck → (Session → RequireRole)
//
// 認証不要のルートはSessionミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewOriginCheckMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService, deps.Sessions, deps.Handshakes, deps.AuthConfig)
	requireSession := middleware.NewSessionMiddleware(deps.Sessions, deps.Accounts)

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		// --- 認証不要のルート ---
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/verify-session", authHandler.VerifySession)

		// OAuthフロー
		r.Get("/oauth/{provider}", authHandler.OAuthStart)
		r.Get("/oauth/{provider}/callback", authHandler.OAuthCallback)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Post("/logout", authHandler.Logout)
			r.Get("/current-user", authHandler.CurrentUser)
		})
	})

	if deps.ConsultantRoutes != nil {
		r.Route("/api/v1/consultants", func(r chi.Router) {
			r.Use(requireSession)
			r.Use(middleware.RequireRole(model.RoleConsultant))
			deps.ConsultantRoutes(r)
		})
	}

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				middleware.WriteJSON(w, http.StatusServiceUnavailable, middleware.Response{Success: false, Message: "Database unavailable"})
				return
			}
		}
		middleware.WriteMessage(w, http.StatusOK, "ok")
	}
}
