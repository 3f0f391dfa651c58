// Package reminder は署名待ち署名者へのリマインダー送信を提供する。
// (署名者, エンベロープ)ごとの送信回数・間隔制限と、
// 送信バッチのオーケストレーションを含む。
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/shomei/internal/model"
	"github.com/hitoshi/shomei/internal/repository"
)

// スキップ理由。通知本文やAPI応答にそのまま含まれる機械可読の文字列。
const (
	// ReasonMaxReminders は送信回数の上限到達。
	ReasonMaxReminders = "maximum reminders reached"
	// ReasonMinInterval は前回送信からの最小間隔未経過。
	ReasonMinInterval = "minimum interval not elapsed"
	// ReasonNoActiveToken は有効な招待トークンの不在。
	ReasonNoActiveToken = "no active invitation token found"
)

// Decision は送信可否の判定結果。
type Decision struct {
	CanSend bool
	Reason  string // 拒否時のみ設定される
}

// Limiter はリマインダー送信の可否判定と送信実績の記録を行うインターフェース。
type Limiter interface {
	// CanSendReminder は(署名者, エンベロープ)への送信可否を判定する。
	// 判定は読み取りのみで副作用を持たず、同じ状態に対して常に同じ結果を返す。
	// 判定の根拠となった実績スナップショット（未作成の場合はnil）も返す。
	CanSendReminder(ctx context.Context, signerID, envelopeID string) (Decision, *model.ReminderTracking, error)

	// RecordReminderSent は送信実績を記録する。
	// expectedCountには直前のCanSendReminderで読み取ったreminder_countを渡す
	// （実績未作成の場合は0）。永続化されている値が変わっていた場合は
	// CONCURRENCY_CONFLICTを返し、加算は行われない。
	RecordReminderSent(ctx context.Context, signerID, envelopeID string, expectedCount int, message string) (*model.ReminderTracking, error)
}

// RateLimiter はLimiterの実装。判定基準はアプリケーション設定から注入される。
type RateLimiter struct {
	trackingRepo repository.ReminderTrackingRepository
	maxReminders int
	minInterval  time.Duration
	now          func() time.Time
}

// NewRateLimiter はRateLimiterを生成する。
// maxRemindersは(署名者, エンベロープ)あたりの送信上限、
// minIntervalは連続送信の最小間隔。
func NewRateLimiter(trackingRepo repository.ReminderTrackingRepository, maxReminders int, minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		trackingRepo: trackingRepo,
		maxReminders: maxReminders,
		minInterval:  minInterval,
		now:          time.Now,
	}
}

// CanSendReminder は(署名者, エンベロープ)への送信可否を判定する。
func (l *RateLimiter) CanSendReminder(ctx context.Context, signerID, envelopeID string) (Decision, *model.ReminderTracking, error) {
	tracking, err := l.trackingRepo.FindBySignerAndEnvelope(ctx, signerID, envelopeID)
	if err != nil {
		return Decision{}, nil, fmt.Errorf("リマインダー実績の取得に失敗しました: %w", err)
	}

	// 実績未作成 = 一度も送信していないため常に許可
	if tracking == nil {
		return Decision{CanSend: true}, nil, nil
	}

	if tracking.ReminderCount >= l.maxReminders {
		return Decision{CanSend: false, Reason: ReasonMaxReminders}, tracking, nil
	}
	if tracking.LastReminderAt != nil && l.now().Sub(*tracking.LastReminderAt) < l.minInterval {
		return Decision{CanSend: false, Reason: ReasonMinInterval}, tracking, nil
	}
	return Decision{CanSend: true}, tracking, nil
}

// RecordReminderSent は送信実績を条件付きで記録する。
func (l *RateLimiter) RecordReminderSent(ctx context.Context, signerID, envelopeID string, expectedCount int, message string) (*model.ReminderTracking, error) {
	tracking, err := l.trackingRepo.IncrementAndStamp(ctx, signerID, envelopeID, expectedCount, message, l.now())
	if err != nil {
		return nil, err
	}
	return tracking, nil
}
