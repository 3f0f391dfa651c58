package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/shomei/internal/model"
)

// PostgresTokenRepo はPostgreSQLを使用した招待トークンリポジトリ。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

const tokenColumns = `id, signer_id, envelope_id, token, expires_at, sent_count, last_sent_at, created_at`

func scanInvitationToken(row interface{ Scan(...any) error }) (*model.InvitationToken, error) {
	token := &model.InvitationToken{}
	var lastSentAt sql.NullTime

	err := row.Scan(
		&token.ID, &token.SignerID, &token.EnvelopeID, &token.Token,
		&token.ExpiresAt, &token.SentCount, &lastSentAt, &token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSentAt.Valid {
		token.LastSentAt = &lastSentAt.Time
	}
	return token, nil
}

// Create は招待トークンを作成する。
func (r *PostgresTokenRepo) Create(ctx context.Context, token *model.InvitationToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invitation_tokens (id, signer_id, envelope_id, token, expires_at, sent_count, last_sent_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		token.ID, token.SignerID, token.EnvelopeID, token.Token,
		token.ExpiresAt, token.SentCount, nullTime(token.LastSentAt), token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("招待トークンの作成に失敗しました: %w", err)
	}
	return nil
}

// ListBySignerID は署名者の全トークンを作成日時降順で取得する。
func (r *PostgresTokenRepo) ListBySignerID(ctx context.Context, signerID string) ([]*model.InvitationToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM invitation_tokens
		 WHERE signer_id = $1 ORDER BY created_at DESC`,
		signerID,
	)
	if err != nil {
		return nil, fmt.Errorf("招待トークン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tokens []*model.InvitationToken
	for rows.Next() {
		token, err := scanInvitationToken(rows)
		if err != nil {
			return nil, fmt.Errorf("招待トークンのスキャンに失敗しました: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("招待トークン一覧の走査に失敗しました: %w", err)
	}
	return tokens, nil
}

// MarkSent はトークンの送信回数を1増やし、最終送信日時を更新する。
func (r *PostgresTokenRepo) MarkSent(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE invitation_tokens SET sent_count = sent_count + 1, last_sent_at = $2 WHERE id = $1`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("トークン送信実績の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れトークンを削除し、削除件数を返す。
// クリーンアップワーカーが使用する。
func (r *PostgresTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM invitation_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("期限切れトークンの削除に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除行数の取得に失敗しました: %w", err)
	}
	return rows, nil
}
