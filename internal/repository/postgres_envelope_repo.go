package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/shomei/internal/model"
)

// PostgresEnvelopeRepo はPostgreSQLを使用したエンベロープリポジトリ。
type PostgresEnvelopeRepo struct {
	db *sql.DB
}

// NewPostgresEnvelopeRepo はPostgresEnvelopeRepoを生成する。
func NewPostgresEnvelopeRepo(db *sql.DB) *PostgresEnvelopeRepo {
	return &PostgresEnvelopeRepo{db: db}
}

const envelopeColumns = `id, title, status, signing_order_type, created_by,
	document_count, sent_at, completed_at, created_at, updated_at`

// scanEnvelope は1行分のエンベロープをスキャンする。
func scanEnvelope(row interface{ Scan(...any) error }) (*model.Envelope, error) {
	env := &model.Envelope{}
	var sentAt, completedAt sql.NullTime

	err := row.Scan(
		&env.ID, &env.Title, &env.Status, &env.SigningOrderType, &env.CreatedBy,
		&env.DocumentCount, &sentAt, &completedAt, &env.CreatedAt, &env.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sentAt.Valid {
		env.SentAt = &sentAt.Time
	}
	if completedAt.Valid {
		env.CompletedAt = &completedAt.Time
	}
	return env, nil
}

// FindByID は指定IDのエンベロープを取得する。見つからない場合はnilを返す。
func (r *PostgresEnvelopeRepo) FindByID(ctx context.Context, id string) (*model.Envelope, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+envelopeColumns+` FROM envelopes WHERE id = $1`, id)

	env, err := scanEnvelope(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("エンベロープの取得に失敗しました: %w", err)
	}
	return env, nil
}

// FindByIDWithSigners はエンベロープと全署名者を取得する。
// エンベロープが見つからない場合は(nil, nil, nil)を返す。
func (r *PostgresEnvelopeRepo) FindByIDWithSigners(ctx context.Context, id string) (*model.Envelope, []*model.Signer, error) {
	env, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if env == nil {
		return nil, nil, nil
	}

	signerRepo := NewPostgresSignerRepo(r.db)
	signers, err := signerRepo.ListByEnvelopeID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return env, signers, nil
}

// Create はエンベロープを作成する。
func (r *PostgresEnvelopeRepo) Create(ctx context.Context, envelope *model.Envelope) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO envelopes (id, title, status, signing_order_type, created_by,
		                        document_count, sent_at, completed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		envelope.ID, envelope.Title, envelope.Status, envelope.SigningOrderType,
		envelope.CreatedBy, envelope.DocumentCount,
		nullTime(envelope.SentAt), nullTime(envelope.CompletedAt),
		envelope.CreatedAt, envelope.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("エンベロープの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateStatus はエンベロープの状態をfromからtoへ条件付きで更新する。
// 現在の状態がfromでない場合はCONCURRENCY_CONFLICTを返す。
func (r *PostgresEnvelopeRepo) UpdateStatus(ctx context.Context, id string, from, to model.EnvelopeStatus, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE envelopes SET
		    status = $3,
		    sent_at = CASE WHEN $3 = 'sent' THEN $4 ELSE sent_at END,
		    completed_at = CASE WHEN $3 = 'completed' THEN $4 ELSE completed_at END,
		    updated_at = $4
		 WHERE id = $1 AND status = $2`,
		id, from, to, now,
	)
	if err != nil {
		return fmt.Errorf("エンベロープ状態の更新に失敗しました: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if rows == 0 {
		return model.NewConcurrencyConflictError()
	}
	return nil
}

// ListAwaitingSignature は署名待ちの署名者が存在するsent/ready_for_signature
// 状態のエンベロープをFOR UPDATE SKIP LOCKEDで排他的に取得する。
func (r *PostgresEnvelopeRepo) ListAwaitingSignature(ctx context.Context) ([]*model.Envelope, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+envelopeColumns+`
		 FROM envelopes
		 WHERE status IN ('sent', 'ready_for_signature')
		   AND EXISTS (
		       SELECT 1 FROM signers
		       WHERE signers.envelope_id = envelopes.id AND signers.status = 'pending'
		   )
		 ORDER BY created_at
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("署名待ちエンベロープの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var envelopes []*model.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("エンベロープのスキャンに失敗しました: %w", err)
		}
		envelopes = append(envelopes, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("署名待ちエンベロープの走査に失敗しました: %w", err)
	}
	return envelopes, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列値を取り出す。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
