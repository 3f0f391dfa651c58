package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/shomei/internal/audit"
	"github.com/hitoshi/shomei/internal/config"
	"github.com/hitoshi/shomei/internal/database"
	"github.com/hitoshi/shomei/internal/envelope"
	"github.com/hitoshi/shomei/internal/handler"
	"github.com/hitoshi/shomei/internal/logger"
	"github.com/hitoshi/shomei/internal/metrics"
	"github.com/hitoshi/shomei/internal/middleware"
	"github.com/hitoshi/shomei/internal/notification"
	"github.com/hitoshi/shomei/internal/reminder"
	"github.com/hitoshi/shomei/internal/repository"
	"github.com/hitoshi/shomei/internal/security"
	"github.com/hitoshi/shomei/internal/token"
	"github.com/hitoshi/shomei/internal/worker/cleanup"
	remindpkg "github.com/hitoshi/shomei/internal/worker/remind"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// services はワイヤリング済みのドメインサービス一式。
// serveとworkerの両モードで共通の構築手順を共有する。
type services struct {
	envelopeRepo repository.EnvelopeRepository
	signerRepo   repository.SignerRepository
	sessionRepo  *repository.PostgresSessionRepo
	userRepo     *repository.PostgresUserRepo
	tokenRepo    *repository.PostgresTokenRepo
	auditRepo    *repository.PostgresAuditRepo

	tokenService    token.Service
	auditService    audit.Service
	envelopeService envelope.Service
	reminderService reminder.Service
}

// buildServices はリポジトリとドメインサービスをワイヤリングする。
// collectorがnilでない場合はメトリクス記録を有効にする。
func buildServices(db *sql.DB, cfg *config.Config, collector *metrics.Collector) (*services, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	envelopeRepo := repository.NewPostgresEnvelopeRepo(db)
	signerRepo := repository.NewPostgresSignerRepo(db)
	reminderRepo := repository.NewPostgresReminderRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)
	auditRepo := repository.NewPostgresAuditRepo(db)

	// 2. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewMessageSanitizer()

	// Webhook通知先URLの事前検証（内部ネットワーク宛を拒否）
	if err := ssrfGuard.ValidateURL(cfg.WebhookURL); err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}

	// 3. Webhook通知の初期化（SSRF防止機能付きクライアント）
	webhookClient := ssrfGuard.NewSafeClient(cfg.WebhookTimeout, cfg.WebhookMaxResponseSize)
	notifier := notification.NewWebhookNotifier(webhookClient, slog.Default(), cfg.WebhookURL)
	if collector != nil {
		notifier.SetMetrics(collector)
	}

	// 4. ドメインサービスの初期化
	tokenService := token.NewService(tokenRepo, cfg.TokenSigningSecret, cfg.TokenTTL)
	auditService := audit.NewService(auditRepo, envelopeRepo)

	envelopeService := envelope.NewService(
		envelopeRepo, signerRepo, tokenService, notifier, auditService, slog.Default(),
	)

	limiter := reminder.NewRateLimiter(reminderRepo, cfg.ReminderMaxCount, cfg.ReminderMinInterval)
	reminderService := reminder.NewService(
		envelopeRepo, limiter, tokenService, notifier, auditService,
		sanitizer, slog.Default(), cfg.ReminderMessage,
	)

	if collector != nil {
		envelopeService.SetMetrics(collector)
		reminderService.SetMetrics(collector)
	}

	return &services{
		envelopeRepo:    envelopeRepo,
		signerRepo:      signerRepo,
		sessionRepo:     sessionRepo,
		userRepo:        userRepo,
		tokenRepo:       tokenRepo,
		auditRepo:       auditRepo,
		tokenService:    tokenService,
		auditService:    auditService,
		envelopeService: envelopeService,
		reminderService: reminderService,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスとサービスのワイヤリング
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	svcs, err := buildServices(db, cfg, collector)
	if err != nil {
		return err
	}

	// 3. ルーターの構築
	rateLimiterCfg := middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		ReminderRate:    rate.Limit(float64(cfg.RateLimitReminder) / 60.0),
		ReminderBurst:   cfg.RateLimitReminder,
		CleanupInterval: 5 * time.Minute,
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionFinder:     svcs.sessionRepo,
		UserFinder:        svcs.userRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		EnvelopeService: svcs.envelopeService,
		AuditService:    svcs.auditService,
		ReminderService: svcs.reminderService,

		TokenVerifier: svcs.tokenService,
		SignerFinder:  svcs.signerRepo,

		SessionDeleter: svcs.sessionRepo,

		DB:       db,
		Gatherer: registry,
	}

	router := handler.NewRouter(deps)

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、自動リマインダースケジューラとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. サービスのワイヤリング（ワーカーは/metricsを公開しない）
	svcs, err := buildServices(db, cfg, nil)
	if err != nil {
		return err
	}

	// 3. リマインダースケジューラの初期化
	scheduler := remindpkg.NewScheduler(
		svcs.envelopeRepo, svcs.reminderService, slog.Default(), cfg.WorkerMaxConcurrent,
	)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(svcs.tokenRepo, svcs.sessionRepo, svcs.auditRepo, slog.Default())
	cleanupJob.AuditRetentionDays = cfg.AuditRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("reminder_scan_interval", cfg.ReminderScanInterval),
		slog.Int("max_concurrent", cfg.WorkerMaxConcurrent),
	)

	// クリーンアップジョブをバックグラウンドで定期実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// リマインダースケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.ReminderScanInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
