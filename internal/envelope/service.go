// Package envelope はエンベロープの署名ワークフロー操作を提供する。
// 送付・署名・拒否・取消の各操作と、署名順序・状態機械の検証を含む。
package envelope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/shomei/internal/access"
	"github.com/hitoshi/shomei/internal/model"
	"github.com/hitoshi/shomei/internal/repository"
	"github.com/hitoshi/shomei/internal/signing"
)

// TokenIssuer はエンベロープ送付時の招待トークン発行のポート。
type TokenIssuer interface {
	IssueForSigner(ctx context.Context, signerID, envelopeID string) (*model.InvitationToken, error)
}

// StatusNotifier はエンベロープ状態変更通知のポート。
type StatusNotifier interface {
	PublishEnvelopeStatus(ctx context.Context, envelope *model.Envelope, eventType model.AuditEventType) error
}

// AuditRecorder は監査証跡書き込みのポート。
type AuditRecorder interface {
	Record(ctx context.Context, envelopeID, signerID string, eventType model.AuditEventType, description string, actor model.Actor, metadata map[string]any) error
}

// MetricsRecorder はワークフロー操作のメトリクス記録のポート。
// metrics.Collectorがこれを満たす。
type MetricsRecorder interface {
	RecordEnvelopeTransition(to string)
	RecordOrderViolation()
	RecordConcurrencyConflict()
}

// Service はエンベロープサービスのインターフェースを定義する。
type Service interface {
	// Get はエンベロープと全署名者を返す。
	Get(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, []*model.Signer, error)

	// Send はドラフトのエンベロープを署名依頼として送付する。
	// 構成検証に通った場合のみ状態を遷移させ、全署名者に招待トークンを発行する。
	Send(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error)

	// Sign は署名者の署名を記録する。全署名者が署名済みになった場合は
	// エンベロープを完了状態へ遷移させる。
	Sign(ctx context.Context, envelopeID, signerID string, actor model.Actor) (*model.Envelope, error)

	// Decline は署名者の拒否を記録し、エンベロープを拒否状態へ遷移させる。
	// 最初の拒否がワークフロー全体を終了させる。
	Decline(ctx context.Context, envelopeID, signerID, reason string, actor model.Actor) (*model.Envelope, error)

	// Cancel はオーナーによるエンベロープの取消を記録する。
	Cancel(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error)
}

// envelopeService はServiceの実装。
type envelopeService struct {
	envelopeRepo repository.EnvelopeRepository
	signerRepo   repository.SignerRepository
	tokens       TokenIssuer
	notifier     StatusNotifier
	audit        AuditRecorder
	metrics      MetricsRecorder
	logger       *slog.Logger
	now          func() time.Time
}

// NewService はエンベロープサービスを生成する。
func NewService(
	envelopeRepo repository.EnvelopeRepository,
	signerRepo repository.SignerRepository,
	tokens TokenIssuer,
	notifier StatusNotifier,
	auditRecorder AuditRecorder,
	logger *slog.Logger,
) *envelopeService {
	return &envelopeService{
		envelopeRepo: envelopeRepo,
		signerRepo:   signerRepo,
		tokens:       tokens,
		notifier:     notifier,
		audit:        auditRecorder,
		logger:       logger,
		now:          time.Now,
	}
}

// SetMetrics はワークフロー操作のメトリクス記録を有効にする。
func (s *envelopeService) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// Get はエンベロープと全署名者を返す。
// 閲覧できるのはオーナー・管理者・システムに加え、署名者本人。
func (s *envelopeService) Get(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, []*model.Signer, error) {
	envelope, signers, err := s.loadEnvelope(ctx, envelopeID)
	if err != nil {
		return nil, nil, err
	}

	if err := access.ValidateEnvelopeModificationAccess(envelope, actor); err != nil {
		// オーナーでなくても署名者本人であれば閲覧を許可する
		if !isAnySigner(signers, actor) {
			return nil, nil, err
		}
	}
	return envelope, signers, nil
}

// Send はドラフトのエンベロープを署名依頼として送付する。
func (s *envelopeService) Send(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error) {
	envelope, signers, err := s.loadEnvelope(ctx, envelopeID)
	if err != nil {
		return nil, err
	}

	if err := access.ValidateEnvelopeModificationAccess(envelope, actor); err != nil {
		return nil, err
	}
	if err := signing.ValidateTransition(envelope.Status, model.EnvelopeStatusSent); err != nil {
		return nil, err
	}
	if err := validateComposition(envelope, signers); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.updateStatus(ctx, envelope.ID, envelope.Status, model.EnvelopeStatusSent, now); err != nil {
		return nil, err
	}
	envelope.Status = model.EnvelopeStatusSent
	envelope.SentAt = &now

	// 全署名者に招待トークンを発行する。失敗した署名者はリマインダーの
	// 再送経路で回復できるため、送付自体は中断しない。
	for _, signer := range signers {
		if _, err := s.tokens.IssueForSigner(ctx, signer.ID, envelope.ID); err != nil {
			s.logger.Error("招待トークンの発行に失敗しました",
				slog.String("envelope_id", envelope.ID),
				slog.String("signer_id", signer.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.recordAudit(ctx, envelope.ID, "", model.AuditEventEnvelopeSent,
		"エンベロープを送付しました", actor, map[string]any{"signer_count": len(signers)})
	s.publishStatus(ctx, envelope, model.AuditEventEnvelopeSent)

	// 署名できる署名者が存在する場合はready_for_signatureへ進める
	if s.anySignerCanAct(envelope, signers) {
		if err := s.updateStatus(ctx, envelope.ID, model.EnvelopeStatusSent, model.EnvelopeStatusReadyForSignature, s.now()); err != nil {
			return nil, err
		}
		envelope.Status = model.EnvelopeStatusReadyForSignature
	}
	return envelope, nil
}

// Sign は署名者の署名を記録する。
func (s *envelopeService) Sign(ctx context.Context, envelopeID, signerID string, actor model.Actor) (*model.Envelope, error) {
	envelope, signers, err := s.loadEnvelope(ctx, envelopeID)
	if err != nil {
		return nil, err
	}

	signer := findSigner(signers, signerID)
	if signer == nil {
		return nil, model.NewSignerNotFoundError(signerID)
	}
	if err := validateSignerActor(signer, actor); err != nil {
		return nil, err
	}
	if !signing.IsSignable(envelope.Status) {
		return nil, model.NewInvalidEnvelopeStateError(
			fmt.Sprintf("状態 %s のエンベロープは署名を受け付けません", envelope.Status))
	}
	if signer.IsTerminal() {
		return nil, model.NewInvalidEnvelopeStateError("この署名者は既に署名または拒否済みです")
	}

	// 直前に読み込んだ状態に対して順序を検証する。検証後に他の署名者が
	// 先行した場合はMarkSignedの条件付き書き込みが競合として失敗する。
	if err := signing.ValidateSigningOrder(envelope, signerID, envelope.CreatedBy, signers); err != nil {
		s.recordOrderViolation()
		return nil, err
	}

	now := s.now()
	if err := s.signerRepo.MarkSigned(ctx, signer.ID, now); err != nil {
		s.recordConflict(err)
		return nil, err
	}
	signer.Status = model.SignerStatusSigned
	signer.SignedAt = &now

	s.recordAudit(ctx, envelope.ID, signer.ID, model.AuditEventSignerSigned,
		"署名が完了しました", actor, map[string]any{"signing_order": signer.Order})

	// 全署名者が署名済みならエンベロープを完了させる
	if allSigned(signers) {
		if err := s.updateStatus(ctx, envelope.ID, envelope.Status, model.EnvelopeStatusCompleted, s.now()); err != nil {
			return nil, err
		}
		envelope.Status = model.EnvelopeStatusCompleted
		completedAt := s.now()
		envelope.CompletedAt = &completedAt

		s.recordAudit(ctx, envelope.ID, "", model.AuditEventEnvelopeCompleted,
			"全署名者の署名が完了しました", actor, nil)
		s.publishStatus(ctx, envelope, model.AuditEventEnvelopeCompleted)
	}
	return envelope, nil
}

// Decline は署名者の拒否を記録し、エンベロープを拒否状態へ遷移させる。
func (s *envelopeService) Decline(ctx context.Context, envelopeID, signerID, reason string, actor model.Actor) (*model.Envelope, error) {
	envelope, signers, err := s.loadEnvelope(ctx, envelopeID)
	if err != nil {
		return nil, err
	}

	signer := findSigner(signers, signerID)
	if signer == nil {
		return nil, model.NewSignerNotFoundError(signerID)
	}
	if err := validateSignerActor(signer, actor); err != nil {
		return nil, err
	}
	if !signing.IsSignable(envelope.Status) {
		return nil, model.NewInvalidEnvelopeStateError(
			fmt.Sprintf("状態 %s のエンベロープは拒否を受け付けません", envelope.Status))
	}
	if signer.IsTerminal() {
		return nil, model.NewInvalidEnvelopeStateError("この署名者は既に署名または拒否済みです")
	}

	// 拒否も署名と同じ順序ゲートに従う
	if err := signing.ValidateSigningOrder(envelope, signerID, envelope.CreatedBy, signers); err != nil {
		s.recordOrderViolation()
		return nil, err
	}

	now := s.now()
	if err := s.signerRepo.MarkDeclined(ctx, signer.ID, reason, now); err != nil {
		s.recordConflict(err)
		return nil, err
	}
	signer.Status = model.SignerStatusDeclined
	signer.DeclinedAt = &now

	s.recordAudit(ctx, envelope.ID, signer.ID, model.AuditEventSignerDeclined,
		"署名が拒否されました", actor, map[string]any{"reason": reason})

	// 最初の拒否でワークフロー全体を終了させる
	if err := s.updateStatus(ctx, envelope.ID, envelope.Status, model.EnvelopeStatusDeclined, s.now()); err != nil {
		return nil, err
	}
	envelope.Status = model.EnvelopeStatusDeclined
	s.publishStatus(ctx, envelope, model.AuditEventSignerDeclined)
	return envelope, nil
}

// Cancel はオーナーによるエンベロープの取消を記録する。
func (s *envelopeService) Cancel(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error) {
	envelope, _, err := s.loadEnvelope(ctx, envelopeID)
	if err != nil {
		return nil, err
	}

	if err := access.ValidateEnvelopeModificationAccess(envelope, actor); err != nil {
		return nil, err
	}
	if err := signing.ValidateTransition(envelope.Status, model.EnvelopeStatusCancelled); err != nil {
		return nil, err
	}

	if err := s.updateStatus(ctx, envelope.ID, envelope.Status, model.EnvelopeStatusCancelled, s.now()); err != nil {
		return nil, err
	}
	envelope.Status = model.EnvelopeStatusCancelled

	s.recordAudit(ctx, envelope.ID, "", model.AuditEventEnvelopeCancelled,
		"エンベロープを取り消しました", actor, nil)
	s.publishStatus(ctx, envelope, model.AuditEventEnvelopeCancelled)
	return envelope, nil
}

// updateStatus は条件付き状態遷移を実行し、結果をメトリクスに記録する。
func (s *envelopeService) updateStatus(ctx context.Context, id string, from, to model.EnvelopeStatus, now time.Time) error {
	if err := s.envelopeRepo.UpdateStatus(ctx, id, from, to, now); err != nil {
		s.recordConflict(err)
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordEnvelopeTransition(string(to))
	}
	return nil
}

// recordConflict はエラーが楽観的並行制御の競合であればメトリクスに記録する。
func (s *envelopeService) recordConflict(err error) {
	if s.metrics == nil {
		return
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeConcurrencyConflict {
		s.metrics.RecordConcurrencyConflict()
	}
}

// recordOrderViolation は署名順序違反をメトリクスに記録する。
func (s *envelopeService) recordOrderViolation() {
	if s.metrics != nil {
		s.metrics.RecordOrderViolation()
	}
}

// loadEnvelope はエンベロープと署名者を取得し、未検出をエラーに変換する。
func (s *envelopeService) loadEnvelope(ctx context.Context, envelopeID string) (*model.Envelope, []*model.Signer, error) {
	envelope, signers, err := s.envelopeRepo.FindByIDWithSigners(ctx, envelopeID)
	if err != nil {
		return nil, nil, fmt.Errorf("エンベロープの取得に失敗しました: %w", err)
	}
	if envelope == nil {
		return nil, nil, model.NewEnvelopeNotFoundError(envelopeID)
	}
	return envelope, signers, nil
}

// anySignerCanAct は今すぐ行動できる署名待ちの署名者が存在するかを返す。
func (s *envelopeService) anySignerCanAct(envelope *model.Envelope, signers []*model.Signer) bool {
	for _, signer := range signers {
		if signer.Status != model.SignerStatusPending {
			continue
		}
		allowed, err := signing.CanActNow(signers, envelope.SigningOrderType, signer.ID, envelope.CreatedBy)
		if err == nil && allowed {
			return true
		}
	}
	return false
}

// recordAudit は監査イベントを記録する。記録失敗は操作を巻き戻せないため
// ログに残して続行する。
func (s *envelopeService) recordAudit(ctx context.Context, envelopeID, signerID string, eventType model.AuditEventType, description string, actor model.Actor, metadata map[string]any) {
	if err := s.audit.Record(ctx, envelopeID, signerID, eventType, description, actor, metadata); err != nil {
		s.logger.Error("監査イベントの記録に失敗しました",
			slog.String("envelope_id", envelopeID),
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
}

// publishStatus は状態変更通知を配信する。配信は確定済みの状態変更に対する
// ベストエフォートであり、失敗してもログに残して続行する。
func (s *envelopeService) publishStatus(ctx context.Context, envelope *model.Envelope, eventType model.AuditEventType) {
	if err := s.notifier.PublishEnvelopeStatus(ctx, envelope, eventType); err != nil {
		s.logger.Error("状態変更通知の配信に失敗しました",
			slog.String("envelope_id", envelope.ID),
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
}

// validateComposition は送付前のエンベロープ構成を検証する。
func validateComposition(envelope *model.Envelope, signers []*model.Signer) error {
	if envelope.DocumentCount < 1 {
		return model.NewInvalidEnvelopeStateError("送付には少なくとも1つのドキュメントが必要です")
	}
	if len(signers) < 1 {
		return model.NewInvalidEnvelopeStateError("送付には少なくとも1人の署名者が必要です")
	}

	owners := 0
	orders := make(map[int]bool, len(signers))
	for _, signer := range signers {
		if signer.IsOwner(envelope.CreatedBy) {
			owners++
		}
		if signer.Order < 1 {
			return model.NewInvalidEnvelopeStateError("署名順は正の整数でなければなりません")
		}
		if orders[signer.Order] {
			return model.NewInvalidEnvelopeStateError("署名順が重複しています")
		}
		orders[signer.Order] = true
	}
	if owners != 1 {
		return model.NewInvalidEnvelopeStateError("オーナー署名者はちょうど1人でなければなりません")
	}

	return signing.ValidateSigningOrderConsistency(envelope.SigningOrderType, signers, envelope.CreatedBy)
}

// validateSignerActor は実行主体が署名者として行動できるかを検証する。
// 内部署名者は本人のユーザーID、外部署名者はトークン検証済みのメールアドレスで照合する。
func validateSignerActor(signer *model.Signer, actor model.Actor) error {
	if actor.Role == model.RoleAdmin || actor.Role == model.RoleSystem {
		return nil
	}
	if !signer.IsExternal && actor.UserID != "" && actor.UserID == signer.UserID {
		return nil
	}
	if signer.IsExternal && actor.Email != "" && actor.Email == signer.Email {
		return nil
	}
	return model.NewAccessDeniedError()
}

// findSigner は署名者一覧から指定IDの署名者を探す。
func findSigner(signers []*model.Signer, signerID string) *model.Signer {
	for _, signer := range signers {
		if signer.ID == signerID {
			return signer
		}
	}
	return nil
}

// isAnySigner は実行主体が署名者一覧のいずれかに該当するかを返す。
func isAnySigner(signers []*model.Signer, actor model.Actor) bool {
	for _, signer := range signers {
		if validateSignerActor(signer, actor) == nil {
			return true
		}
	}
	return false
}

// allSigned は全署名者が署名済みかを返す。
func allSigned(signers []*model.Signer) bool {
	for _, signer := range signers {
		if signer.Status != model.SignerStatusSigned {
			return false
		}
	}
	return len(signers) > 0
}
