package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/shomei/internal/model"
)

// PostgresReminderRepo はPostgreSQLを使用したリマインダー実績リポジトリ。
type PostgresReminderRepo struct {
	db *sql.DB
}

// NewPostgresReminderRepo はPostgresReminderRepoを生成する。
func NewPostgresReminderRepo(db *sql.DB) *PostgresReminderRepo {
	return &PostgresReminderRepo{db: db}
}

const reminderColumns = `signer_id, envelope_id, reminder_count, last_reminder_at, message, created_at, updated_at`

// scanReminderTracking は1行分の送信実績をスキャンする。
func scanReminderTracking(row interface{ Scan(...any) error }) (*model.ReminderTracking, error) {
	tracking := &model.ReminderTracking{}
	var lastReminderAt sql.NullTime

	err := row.Scan(
		&tracking.SignerID, &tracking.EnvelopeID, &tracking.ReminderCount,
		&lastReminderAt, &tracking.Message, &tracking.CreatedAt, &tracking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastReminderAt.Valid {
		tracking.LastReminderAt = &lastReminderAt.Time
	}
	return tracking, nil
}

// FindBySignerAndEnvelope は(署名者, エンベロープ)の送信実績を取得する。
// 見つからない場合はnilを返す。
func (r *PostgresReminderRepo) FindBySignerAndEnvelope(ctx context.Context, signerID, envelopeID string) (*model.ReminderTracking, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminder_trackings
		 WHERE signer_id = $1 AND envelope_id = $2`,
		signerID, envelopeID,
	)

	tracking, err := scanReminderTracking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リマインダー実績の取得に失敗しました: %w", err)
	}
	return tracking, nil
}

// IncrementAndStamp は送信実績を条件付きで加算する。
// expectedCountが0でレコード未作成の場合は遅延作成を試み、作成競合時は
// 条件付き更新にフォールバックする。永続化されている件数がexpectedCountと
// 異なる場合はCONCURRENCY_CONFLICTを返す。
func (r *PostgresReminderRepo) IncrementAndStamp(ctx context.Context, signerID, envelopeID string, expectedCount int, message string, now time.Time) (*model.ReminderTracking, error) {
	if expectedCount == 0 {
		result, err := r.db.ExecContext(ctx,
			`INSERT INTO reminder_trackings
			     (signer_id, envelope_id, reminder_count, last_reminder_at, message, created_at, updated_at)
			 VALUES ($1, $2, 1, $3, $4, $3, $3)
			 ON CONFLICT (signer_id, envelope_id) DO NOTHING`,
			signerID, envelopeID, now, message,
		)
		if err != nil {
			return nil, fmt.Errorf("リマインダー実績の作成に失敗しました: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("作成行数の取得に失敗しました: %w", err)
		}
		if rows == 1 {
			return &model.ReminderTracking{
				SignerID:       signerID,
				EnvelopeID:     envelopeID,
				ReminderCount:  1,
				LastReminderAt: &now,
				Message:        message,
				CreatedAt:      now,
				UpdatedAt:      now,
			}, nil
		}
		// レコードが既に存在する場合（reminder_count=0のまま残っている競合相手）は
		// 条件付き更新へフォールバックする
	}

	row := r.db.QueryRowContext(ctx,
		`UPDATE reminder_trackings
		 SET reminder_count = reminder_count + 1, last_reminder_at = $4, message = $5, updated_at = $4
		 WHERE signer_id = $1 AND envelope_id = $2 AND reminder_count = $3
		 RETURNING `+reminderColumns,
		signerID, envelopeID, expectedCount, now, message,
	)

	tracking, err := scanReminderTracking(row)
	if err == sql.ErrNoRows {
		// 条件不一致 = 並行するリマインダーが先に加算した
		return nil, model.NewConcurrencyConflictError()
	}
	if err != nil {
		return nil, fmt.Errorf("リマインダー実績の更新に失敗しました: %w", err)
	}
	return tracking, nil
}
