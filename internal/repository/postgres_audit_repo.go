package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/shomei/internal/model"
)

// PostgresAuditRepo はPostgreSQLを使用した監査証跡リポジトリ。
type PostgresAuditRepo struct {
	db *sql.DB
}

// NewPostgresAuditRepo はPostgresAuditRepoを生成する。
func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// Create は監査イベントを追記する。Metadataはjsonbとして永続化される。
func (r *PostgresAuditRepo) Create(ctx context.Context, event *model.AuditEvent) error {
	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("監査メタデータのエンコードに失敗しました: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, envelope_id, signer_id, event_type, description,
		                           actor_user_id, actor_email, actor_ip, actor_user_agent, actor_role,
		                           metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID, event.EnvelopeID, nullString(event.SignerID), event.EventType, event.Description,
		event.Actor.UserID, event.Actor.Email, event.Actor.IP, event.Actor.UserAgent, event.Actor.Role,
		metadata, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("監査イベントの作成に失敗しました: %w", err)
	}
	return nil
}

// ListByEnvelopeID はエンベロープの監査イベントを作成日時昇順で取得する。
func (r *PostgresAuditRepo) ListByEnvelopeID(ctx context.Context, envelopeID string, limit int) ([]*model.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, envelope_id, signer_id, event_type, description,
		        actor_user_id, actor_email, actor_ip, actor_user_agent, actor_role,
		        metadata, created_at
		 FROM audit_events WHERE envelope_id = $1
		 ORDER BY created_at LIMIT $2`,
		envelopeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("監査イベント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []*model.AuditEvent
	for rows.Next() {
		event := &model.AuditEvent{}
		var signerID sql.NullString
		var metadata []byte

		err := rows.Scan(
			&event.ID, &event.EnvelopeID, &signerID, &event.EventType, &event.Description,
			&event.Actor.UserID, &event.Actor.Email, &event.Actor.IP, &event.Actor.UserAgent, &event.Actor.Role,
			&metadata, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("監査イベントのスキャンに失敗しました: %w", err)
		}

		event.SignerID = nullStringValue(signerID)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("監査メタデータのデコードに失敗しました: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("監査イベント一覧の走査に失敗しました: %w", err)
	}
	return events, nil
}

// DeleteOlderThan は指定日時より古い監査イベントを削除し、削除件数を返す。
// 保持期間を超えたレコードのクリーンアップに使用する。
func (r *PostgresAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("監査イベントの削除に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除行数の取得に失敗しました: %w", err)
	}
	return rows, nil
}
