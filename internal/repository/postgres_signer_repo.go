package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/shomei/internal/model"
)

// PostgresSignerRepo はPostgreSQLを使用した署名者リポジトリ。
type PostgresSignerRepo struct {
	db *sql.DB
}

// NewPostgresSignerRepo はPostgresSignerRepoを生成する。
func NewPostgresSignerRepo(db *sql.DB) *PostgresSignerRepo {
	return &PostgresSignerRepo{db: db}
}

const signerColumns = `id, envelope_id, user_id, is_external, email, full_name,
	signing_order, status, decline_reason, signed_at, declined_at, created_at, updated_at`

// scanSigner は1行分の署名者をスキャンする。
func scanSigner(row interface{ Scan(...any) error }) (*model.Signer, error) {
	signer := &model.Signer{}
	var userID, declineReason sql.NullString
	var signedAt, declinedAt sql.NullTime

	err := row.Scan(
		&signer.ID, &signer.EnvelopeID, &userID, &signer.IsExternal,
		&signer.Email, &signer.FullName, &signer.Order, &signer.Status,
		&declineReason, &signedAt, &declinedAt,
		&signer.CreatedAt, &signer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	signer.UserID = nullStringValue(userID)
	signer.DeclineReason = nullStringValue(declineReason)
	if signedAt.Valid {
		signer.SignedAt = &signedAt.Time
	}
	if declinedAt.Valid {
		signer.DeclinedAt = &declinedAt.Time
	}
	return signer, nil
}

// FindByID は指定IDの署名者を取得する。見つからない場合はnilを返す。
func (r *PostgresSignerRepo) FindByID(ctx context.Context, id string) (*model.Signer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+signerColumns+` FROM signers WHERE id = $1`, id)

	signer, err := scanSigner(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("署名者の取得に失敗しました: %w", err)
	}
	return signer, nil
}

// ListByEnvelopeID はエンベロープの全署名者をOrder昇順で取得する。
func (r *PostgresSignerRepo) ListByEnvelopeID(ctx context.Context, envelopeID string) ([]*model.Signer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+signerColumns+` FROM signers
		 WHERE envelope_id = $1 ORDER BY signing_order`,
		envelopeID,
	)
	if err != nil {
		return nil, fmt.Errorf("署名者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var signers []*model.Signer
	for rows.Next() {
		signer, err := scanSigner(rows)
		if err != nil {
			return nil, fmt.Errorf("署名者のスキャンに失敗しました: %w", err)
		}
		signers = append(signers, signer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("署名者一覧の走査に失敗しました: %w", err)
	}
	return signers, nil
}

// Create は署名者を作成する。
func (r *PostgresSignerRepo) Create(ctx context.Context, signer *model.Signer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO signers (id, envelope_id, user_id, is_external, email, full_name,
		                      signing_order, status, decline_reason, signed_at, declined_at,
		                      created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		signer.ID, signer.EnvelopeID, nullString(signer.UserID), signer.IsExternal,
		signer.Email, signer.FullName, signer.Order, signer.Status,
		nullString(signer.DeclineReason), nullTime(signer.SignedAt), nullTime(signer.DeclinedAt),
		signer.CreatedAt, signer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("署名者の作成に失敗しました: %w", err)
	}
	return nil
}

// MarkSigned は署名者の状態をpendingからsignedへ条件付きで更新する。
// すでにpendingでない場合（並行する署名・拒否との競合）はCONCURRENCY_CONFLICTを返す。
func (r *PostgresSignerRepo) MarkSigned(ctx context.Context, id string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE signers SET status = 'signed', signed_at = $2, updated_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("署名状態の更新に失敗しました: %w", err)
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

// MarkDeclined は署名者の状態をpendingからdeclinedへ条件付きで更新する。
// すでにpendingでない場合はCONCURRENCY_CONFLICTを返す。
func (r *PostgresSignerRepo) MarkDeclined(ctx context.Context, id, reason string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE signers SET status = 'declined', decline_reason = $2, declined_at = $3, updated_at = $3
		 WHERE id = $1 AND status = 'pending'`,
		id, nullString(reason), now,
	)
	if err != nil {
		return fmt.Errorf("拒否状態の更新に失敗しました: %w", err)
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
