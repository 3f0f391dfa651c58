package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/shomei/internal/metrics"
	"github.com/hitoshi/shomei/internal/middleware"
)

// Pinger はヘルスチェックで使用するDB疎通確認のインターフェース。
// *sql.DBがこれを満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// エンベロープ
	EnvelopeService EnvelopeServiceInterface
	AuditService    AuditListerInterface

	// リマインダー
	ReminderService ReminderServiceInterface

	// 外部署名者（招待トークン）
	TokenVerifier TokenVerifierInterface
	SignerFinder  SignerFinderInterface

	// セッション
	SessionDeleter SessionDeleterInterface

	// 運用エンドポイント
	DB       Pinger
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → LoggingMiddleware → SessionMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// ヘルスチェック・メトリクス・招待トークンルート（/signing/*）は
// セッション認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	authHandler := NewAuthHandler(deps.SessionDeleter)
	envelopeHandler := NewEnvelopeHandler(deps.EnvelopeService, deps.AuditService)
	reminderHandler := NewReminderHandler(deps.ReminderService)
	signingHandler := NewSigningHandler(deps.TokenVerifier, deps.SignerFinder, deps.EnvelopeService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.DB))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.SetupMetricsRoute(deps.Gatherer))
	}

	// 招待トークンによる外部署名者ルート（トークン自体が認証手段）
	r.Route("/signing/{token}", func(r chi.Router) {
		r.Get("/", signingHandler.GetSigningSession)
		r.Post("/sign", signingHandler.SignWithToken)
		r.Post("/decline", signingHandler.DeclineWithToken)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.UserFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// セッション管理
		r.Route("/auth", func(r chi.Router) {
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// エンベロープ管理
		r.Route("/api/envelopes/{id}", func(r chi.Router) {
			r.Get("/", envelopeHandler.GetEnvelope)
			r.Post("/send", envelopeHandler.SendEnvelope)
			r.Post("/cancel", envelopeHandler.CancelEnvelope)
			r.Get("/audit", envelopeHandler.ListAuditEvents)

			// 署名操作（内部ユーザー）
			r.Route("/signers/{signerID}", func(r chi.Router) {
				r.Post("/sign", envelopeHandler.SignEnvelope)
				r.Post("/decline", envelopeHandler.DeclineEnvelope)
			})

			// POST /api/envelopes/{id}/reminders - リマインダー送信（専用レート制限を追加）
			r.With(deps.RateLimiter.ReminderMiddleware()).Post("/reminders", reminderHandler.SendReminders)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
