// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れの招待トークンとセッション、および保持期間
// （デフォルト365日）を超過した監査イベントを日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ExpiredDeleter は期限切れレコードの一括削除インターフェース。
// 招待トークンとセッションのリポジトリがこれを満たす。
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditPruner は古い監査イベントの一括削除インターフェース。
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は期限切れデータの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	tokens             ExpiredDeleter
	sessions           ExpiredDeleter
	audits             AuditPruner
	logger             *slog.Logger
	AuditRetentionDays int // 監査イベントの保持日数（デフォルト: 365）
	now                func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの監査イベント保持日数は365日。
func NewCleanupJob(tokens, sessions ExpiredDeleter, audits AuditPruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		tokens:             tokens,
		sessions:           sessions,
		audits:             audits,
		logger:             logger,
		AuditRetentionDays: 365,
		now:                time.Now,
	}
}

// Run は期限切れトークン・セッションと保持期間超過の監査イベントを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
// いずれかの削除が失敗した場合も残りの削除は試行し、最後にエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	now := j.now()

	var firstErr error

	deletedTokens, err := j.tokens.DeleteExpired(ctx, now)
	if err != nil {
		j.logger.Error("期限切れトークンの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		firstErr = fmt.Errorf("期限切れトークンの削除に失敗: %w", err)
	}

	deletedSessions, err := j.sessions.DeleteExpired(ctx, now)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		if firstErr == nil {
			firstErr = fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
		}
	}

	cutoff := now.AddDate(0, 0, -j.AuditRetentionDays)
	deletedAudits, err := j.audits.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("監査イベントの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.AuditRetentionDays),
		)
		if firstErr == nil {
			firstErr = fmt.Errorf("監査イベントの削除に失敗: %w", err)
		}
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_tokens", deletedTokens),
		slog.Int64("deleted_sessions", deletedSessions),
		slog.Int64("deleted_audit_events", deletedAudits),
		slog.Int("audit_retention_days", j.AuditRetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return firstErr
}
