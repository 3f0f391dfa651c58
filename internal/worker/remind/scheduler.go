// Package remind は署名待ち署名者への自動リマインダー送信ジョブを提供する。
// スケジューラは定期的に署名待ちのエンベロープを取得し、
// リマインダーサービスへ送信バッチを委譲する。送信可否の判定
// （送信回数上限・最低間隔）はサービス側のレートリミッターが担う。
package remind

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/shomei/internal/model"
	"github.com/hitoshi/shomei/internal/reminder"
	"github.com/hitoshi/shomei/internal/repository"
)

// ReminderSenderService はリマインダー送信の実行インターフェース。
type ReminderSenderService interface {
	// SendReminders はエンベロープの署名待ち署名者へリマインダーを送信する。
	SendReminders(ctx context.Context, input reminder.SendRemindersInput) (*reminder.SendRemindersResult, error)
}

// Scheduler は自動リマインダーのスケジューリングと並列制御を行う。
// ティッカーで署名待ちエンベロープを取得し、
// semaphoreパターンで最大並列数を制御しながら送信バッチを実行する。
type Scheduler struct {
	envelopeRepo   repository.EnvelopeRepository
	sender         ReminderSenderService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	envelopeRepo repository.EnvelopeRepository,
	sender ReminderSenderService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		envelopeRepo:   envelopeRepo,
		sender:         sender,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("リマインダースケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("リマインダーサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("リマインダースケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("リマインダーサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は署名待ちエンベロープを1回取得し、並列で送信バッチを実行する。
// semaphoreパターンで最大並列数を制御する。
// 個々のエンベロープの送信失敗はログに記録し、サイクル全体は継続する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// 署名待ちエンベロープを取得（FOR UPDATE SKIP LOCKED）
	envelopes, err := s.envelopeRepo.ListAwaitingSignature(ctx)
	if err != nil {
		return err
	}

	if len(envelopes) == 0 {
		s.logger.Info("リマインダー対象のエンベロープはありません")
		return nil
	}

	s.logger.Info("リマインダーサイクルを開始します",
		slog.Int("envelope_count", len(envelopes)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	var mu sync.Mutex
	totalSent := 0

	for _, envelope := range envelopes {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(e *model.Envelope) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			result, err := s.sender.SendReminders(ctx, reminder.SendRemindersInput{
				EnvelopeID: e.ID,
				Actor:      model.SystemActor(),
			})
			if err != nil {
				s.logger.Error("リマインダー送信バッチに失敗しました",
					slog.String("envelope_id", e.ID),
					slog.String("error", err.Error()),
				)
				return
			}

			mu.Lock()
			totalSent += result.RemindersSent
			mu.Unlock()
		}(envelope)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("リマインダーサイクルが完了しました",
		slog.Int("envelope_count", len(envelopes)),
		slog.Int("reminders_sent", totalSent),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
