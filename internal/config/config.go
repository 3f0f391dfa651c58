package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// InvitationToken
	TokenSigningSecret string
	TokenTTL           time.Duration

	// Reminder
	ReminderMaxCount     int           // (署名者, エンベロープ)あたりの最大リマインダー回数
	ReminderMinInterval  time.Duration // リマインダー間の最小間隔
	ReminderScanInterval time.Duration // 自動リマインダーワーカーの実行間隔
	ReminderMessage      string        // 自動リマインダーの既定メッセージ

	// Webhook
	WebhookURL             string
	WebhookTimeout         time.Duration
	WebhookMaxResponseSize int64

	// Worker
	WorkerMaxConcurrent int
	CleanupInterval     time.Duration
	AuditRetentionDays  int

	// Rate Limit
	RateLimitGeneral  int // API全般のレート（req/min/user）
	RateLimitReminder int // リマインダー送信のレート（req/min/user）

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TokenSigningSecret = os.Getenv("TOKEN_SIGNING_SECRET")
	if cfg.TokenSigningSecret == "" {
		missing = append(missing, "TOKEN_SIGNING_SECRET")
	}

	cfg.WebhookURL = os.Getenv("WEBHOOK_URL")
	if cfg.WebhookURL == "" {
		missing = append(missing, "WEBHOOK_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 7*24*time.Hour)
	cfg.ReminderMaxCount = getEnvInt("REMINDER_MAX_COUNT", 3)
	cfg.ReminderMinInterval = getEnvDuration("REMINDER_MIN_INTERVAL", 24*time.Hour)
	cfg.ReminderScanInterval = getEnvDuration("REMINDER_SCAN_INTERVAL", 1*time.Hour)
	cfg.ReminderMessage = getEnvString("REMINDER_MESSAGE", "署名のお願いが届いています。ご確認ください。")
	cfg.WebhookTimeout = getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second)
	cfg.WebhookMaxResponseSize = getEnvInt64("WEBHOOK_MAX_RESPONSE_SIZE", 1048576)
	cfg.WorkerMaxConcurrent = getEnvInt("WORKER_MAX_CONCURRENT", 5)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.AuditRetentionDays = getEnvInt("AUDIT_RETENTION_DAYS", 365)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitReminder = getEnvInt("RATE_LIMIT_REMINDER", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
