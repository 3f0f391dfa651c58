package reminder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/shomei/internal/access"
	"github.com/hitoshi/shomei/internal/model"
	"github.com/hitoshi/shomei/internal/repository"
)

// TokenFinder はリマインダー送信が必要とする招待トークン操作のポート。
type TokenFinder interface {
	// FindActiveToken は署名者の有効なトークンを返す。ない場合は(nil, nil)。
	FindActiveToken(ctx context.Context, signerID string) (*model.InvitationToken, error)
	// MarkResent はトークンの再送実績を記録する。
	MarkResent(ctx context.Context, tokenID string) error
}

// Notifier はリマインダー通知配信のポート。
type Notifier interface {
	PublishReminder(ctx context.Context, envelope *model.Envelope, signer *model.Signer, token *model.InvitationToken, message string, reminderCount int) error
}

// AuditRecorder は監査証跡書き込みのポート。
type AuditRecorder interface {
	Record(ctx context.Context, envelopeID, signerID string, eventType model.AuditEventType, description string, actor model.Actor, metadata map[string]any) error
}

// MetricsRecorder はリマインダー送信のメトリクス記録のポート。
// metrics.Collectorがこれを満たす。
type MetricsRecorder interface {
	RecordReminderSent()
	RecordReminderSkipped(reason string)
}

// Sanitizer はリマインダーメッセージのサニタイズのポート。
type Sanitizer interface {
	Sanitize(raw string) string
}

// NotifiedSigner は通知に成功した署名者の記録。
type NotifiedSigner struct {
	SignerID      string `json:"signer_id"`
	Email         string `json:"email"`
	ReminderCount int    `json:"reminder_count"`
}

// SkippedSigner はスキップされた署名者とその理由の記録。
type SkippedSigner struct {
	SignerID string `json:"signer_id"`
	Email    string `json:"email"`
	Reason   string `json:"reason"`
}

// SendRemindersInput はリマインダー送信バッチの入力。
type SendRemindersInput struct {
	EnvelopeID string
	// SignerIDs は対象署名者の絞り込み。空の場合は署名待ちの全署名者が対象。
	SignerIDs []string
	// Message はリマインダー本文。空の場合はデフォルトメッセージを使用する。
	Message string
	Actor   model.Actor
}

// SendRemindersResult はリマインダー送信バッチの結果。
// バッチは常に署名者ごとの内訳付きの部分成功として報告される。
type SendRemindersResult struct {
	RemindersSent   int              `json:"reminders_sent"`
	SignersNotified []NotifiedSigner `json:"signers_notified"`
	SkippedSigners  []SkippedSigner  `json:"skipped_signers"`
}

// Service はリマインダー送信サービスのインターフェースを定義する。
type Service interface {
	// SendReminders は署名待ちの署名者へリマインダーを送信する。
	// 署名者ごとの送信可否は独立に判定され、スキップはバッチを中断しない。
	SendReminders(ctx context.Context, input SendRemindersInput) (*SendRemindersResult, error)
}

// reminderService はServiceの実装。
type reminderService struct {
	envelopeRepo   repository.EnvelopeRepository
	limiter        Limiter
	tokens         TokenFinder
	notifier       Notifier
	audit          AuditRecorder
	sanitizer      Sanitizer
	metrics        MetricsRecorder
	logger         *slog.Logger
	defaultMessage string
}

// NewService はリマインダー送信サービスを生成する。
func NewService(
	envelopeRepo repository.EnvelopeRepository,
	limiter Limiter,
	tokens TokenFinder,
	notifier Notifier,
	auditRecorder AuditRecorder,
	sanitizer Sanitizer,
	logger *slog.Logger,
	defaultMessage string,
) *reminderService {
	return &reminderService{
		envelopeRepo:   envelopeRepo,
		limiter:        limiter,
		tokens:         tokens,
		notifier:       notifier,
		audit:          auditRecorder,
		sanitizer:      sanitizer,
		logger:         logger,
		defaultMessage: defaultMessage,
	}
}

// SetMetrics はリマインダー送信のメトリクス記録を有効にする。
func (s *reminderService) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// SendReminders は署名待ちの署名者へリマインダーを送信する。
//
// エンベロープ未検出とアクセス拒否は前提条件違反としてバッチ全体を中断する。
// 送信回数上限・間隔未経過・有効トークン不在は署名者単位のスキップとして
// 記録し、残りの署名者の処理を続行する。それ以外の予期しないエラーは
// 欠陥として呼び出し元へ伝播させる（黙殺しない）。
func (s *reminderService) SendReminders(ctx context.Context, input SendRemindersInput) (*SendRemindersResult, error) {
	envelope, signers, err := s.envelopeRepo.FindByIDWithSigners(ctx, input.EnvelopeID)
	if err != nil {
		return nil, fmt.Errorf("エンベロープの取得に失敗しました: %w", err)
	}
	if envelope == nil {
		return nil, model.NewEnvelopeNotFoundError(input.EnvelopeID)
	}

	if err := access.ValidateEnvelopeModificationAccess(envelope, input.Actor); err != nil {
		return nil, err
	}

	targets := filterPendingSigners(signers, input.SignerIDs)

	// 対象がいない場合は冪等な成功（エラーではない）
	result := &SendRemindersResult{
		SignersNotified: []NotifiedSigner{},
		SkippedSigners:  []SkippedSigner{},
	}
	if len(targets) == 0 {
		return result, nil
	}

	message := s.sanitizer.Sanitize(input.Message)
	if message == "" {
		message = s.defaultMessage
	}

	// 署名者ごとに逐次処理する。送信回数と監査ログの順序を
	// エンベロープ単位で決定的に保つため並列化はしない。
	for _, signer := range targets {
		notified, skipped, err := s.remindSigner(ctx, envelope, signer, message, input.Actor)
		if err != nil {
			return nil, err
		}
		if skipped != nil {
			result.SkippedSigners = append(result.SkippedSigners, *skipped)
			continue
		}
		result.SignersNotified = append(result.SignersNotified, *notified)
	}

	result.RemindersSent = len(result.SignersNotified)
	return result, nil
}

// remindSigner は1署名者分のリマインダー処理を行う。
// スキップの場合は(nil, skip, nil)、通知成功の場合は(notified, nil, nil)を返す。
func (s *reminderService) remindSigner(ctx context.Context, envelope *model.Envelope, signer *model.Signer, message string, actor model.Actor) (*NotifiedSigner, *SkippedSigner, error) {
	decision, tracking, err := s.limiter.CanSendReminder(ctx, signer.ID, envelope.ID)
	if err != nil {
		return nil, nil, err
	}
	if !decision.CanSend {
		s.logger.Info("リマインダーをスキップしました",
			slog.String("envelope_id", envelope.ID),
			slog.String("signer_id", signer.ID),
			slog.String("reason", decision.Reason),
		)
		if s.metrics != nil {
			s.metrics.RecordReminderSkipped(decision.Reason)
		}
		return nil, &SkippedSigner{SignerID: signer.ID, Email: signer.Email, Reason: decision.Reason}, nil
	}

	expectedCount := 0
	if tracking != nil {
		expectedCount = tracking.ReminderCount
	}

	// 送信実績の加算はトークン確認より先に行う。有効トークンがなく通知に
	// 至らなかった場合でも加算は取り消さない（既存動作を踏襲）。
	updated, err := s.limiter.RecordReminderSent(ctx, signer.ID, envelope.ID, expectedCount, message)
	if err != nil {
		return nil, nil, err
	}

	token, err := s.tokens.FindActiveToken(ctx, signer.ID)
	if err != nil {
		return nil, nil, err
	}
	if token == nil {
		s.logger.Info("リマインダーをスキップしました",
			slog.String("envelope_id", envelope.ID),
			slog.String("signer_id", signer.ID),
			slog.String("reason", ReasonNoActiveToken),
		)
		if s.metrics != nil {
			s.metrics.RecordReminderSkipped(ReasonNoActiveToken)
		}
		return nil, &SkippedSigner{SignerID: signer.ID, Email: signer.Email, Reason: ReasonNoActiveToken}, nil
	}

	if err := s.tokens.MarkResent(ctx, token.ID); err != nil {
		return nil, nil, err
	}

	if err := s.notifier.PublishReminder(ctx, envelope, signer, token, message, updated.ReminderCount); err != nil {
		return nil, nil, err
	}

	if err := s.audit.Record(ctx, envelope.ID, signer.ID, model.AuditEventReminderSent,
		"リマインダーを送信しました", actor, map[string]any{
			"reminder_count": updated.ReminderCount,
			"message":        message,
		}); err != nil {
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordReminderSent()
	}
	return &NotifiedSigner{SignerID: signer.ID, Email: signer.Email, ReminderCount: updated.ReminderCount}, nil, nil
}

// filterPendingSigners は署名待ちの署名者を抽出し、signerIDsが指定されている
// 場合はその共通部分に絞り込む。元のスライス順（署名順）を保つ。
func filterPendingSigners(signers []*model.Signer, signerIDs []string) []*model.Signer {
	var wanted map[string]bool
	if len(signerIDs) > 0 {
		wanted = make(map[string]bool, len(signerIDs))
		for _, id := range signerIDs {
			wanted[id] = true
		}
	}

	var targets []*model.Signer
	for _, signer := range signers {
		if signer.Status != model.SignerStatusPending {
			continue
		}
		if wanted != nil && !wanted[signer.ID] {
			continue
		}
		targets = append(targets, signer)
	}
	return targets
}
