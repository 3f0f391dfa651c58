// Package audit はエンベロープ操作の監査証跡を提供する。
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/shomei/internal/access"
	"github.com/hitoshi/shomei/internal/model"
	"github.com/hitoshi/shomei/internal/repository"
)

// defaultListLimit はListForEnvelopeの取得上限。
const defaultListLimit = 200

// Service は監査証跡サービスのインターフェースを定義する。
type Service interface {
	// Record は監査イベントを記録する。
	// signerIDは署名者に紐付かないイベントでは空文字列でよい。
	Record(ctx context.Context, envelopeID, signerID string, eventType model.AuditEventType, description string, actor model.Actor, metadata map[string]any) error

	// ListForEnvelope はエンベロープの監査イベントを作成日時昇順で返す。
	// オーナー・管理者・システム以外の実行主体にはACCESS_DENIEDを返す。
	ListForEnvelope(ctx context.Context, envelopeID string, actor model.Actor) ([]*model.AuditEvent, error)
}

// auditService はServiceの実装。
type auditService struct {
	auditRepo    repository.AuditEventRepository
	envelopeRepo repository.EnvelopeRepository
	now          func() time.Time
}

// NewService は監査証跡サービスを生成する。
func NewService(auditRepo repository.AuditEventRepository, envelopeRepo repository.EnvelopeRepository) *auditService {
	return &auditService{
		auditRepo:    auditRepo,
		envelopeRepo: envelopeRepo,
		now:          time.Now,
	}
}

// Record は監査イベントを記録する。
func (s *auditService) Record(ctx context.Context, envelopeID, signerID string, eventType model.AuditEventType, description string, actor model.Actor, metadata map[string]any) error {
	event := &model.AuditEvent{
		ID:          uuid.NewString(),
		EnvelopeID:  envelopeID,
		SignerID:    signerID,
		EventType:   eventType,
		Description: description,
		Actor:       actor,
		Metadata:    metadata,
		CreatedAt:   s.now(),
	}
	if err := s.auditRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("監査イベントの記録に失敗しました: %w", err)
	}
	return nil
}

// ListForEnvelope はエンベロープの監査イベントを返す。
func (s *auditService) ListForEnvelope(ctx context.Context, envelopeID string, actor model.Actor) ([]*model.AuditEvent, error) {
	envelope, err := s.envelopeRepo.FindByID(ctx, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("エンベロープの取得に失敗しました: %w", err)
	}
	if envelope == nil {
		return nil, model.NewEnvelopeNotFoundError(envelopeID)
	}

	if err := access.ValidateEnvelopeModificationAccess(envelope, actor); err != nil {
		return nil, err
	}

	events, err := s.auditRepo.ListByEnvelopeID(ctx, envelopeID, defaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("監査イベント一覧の取得に失敗しました: %w", err)
	}
	return events, nil
}
