// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/shomei/internal/model"
)

// UserRepository はユーザーデータの参照インターフェース。
// ユーザーの作成・削除は認証基盤側の責務のため、本サービスは参照のみ行う。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れ・未存在の場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// EnvelopeRepository はエンベロープデータの永続化インターフェース。
// 状態遷移の書き込みはすべて条件付き更新であり、競合時には
// CONCURRENCY_CONFLICTエラーを返す（上書きは行わない）。
type EnvelopeRepository interface {
	// FindByID は指定IDのエンベロープを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Envelope, error)

	// FindByIDWithSigners はエンベロープと全署名者を取得する。
	// エンベロープが見つからない場合は(nil, nil, nil)を返す。
	FindByIDWithSigners(ctx context.Context, id string) (*model.Envelope, []*model.Signer, error)

	// Create はエンベロープを作成する。
	Create(ctx context.Context, envelope *model.Envelope) error

	// UpdateStatus はエンベロープの状態をfromからtoへ条件付きで更新する。
	// 現在の状態がfromでない場合（競合）はCONCURRENCY_CONFLICTを返す。
	// toがsentの場合はsent_at、completedの場合はcompleted_atも記録する。
	UpdateStatus(ctx context.Context, id string, from, to model.EnvelopeStatus, now time.Time) error

	// ListAwaitingSignature は署名待ちの署名者が存在するsent/ready_for_signature
	// 状態のエンベロープをFOR UPDATE SKIP LOCKEDで排他的に取得する。
	// 自動リマインダーワーカーが使用する。
	ListAwaitingSignature(ctx context.Context) ([]*model.Envelope, error)
}

// SignerRepository は署名者データの永続化インターフェース。
type SignerRepository interface {
	// FindByID は指定IDの署名者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Signer, error)

	// ListByEnvelopeID はエンベロープの全署名者をOrder昇順で取得する。
	ListByEnvelopeID(ctx context.Context, envelopeID string) ([]*model.Signer, error)

	// Create は署名者を作成する。
	Create(ctx context.Context, signer *model.Signer) error

	// MarkSigned は署名者の状態をpendingからsignedへ条件付きで更新する。
	// すでにpendingでない場合（競合）はCONCURRENCY_CONFLICTを返す。
	MarkSigned(ctx context.Context, id string, now time.Time) error

	// MarkDeclined は署名者の状態をpendingからdeclinedへ条件付きで更新する。
	// すでにpendingでない場合（競合）はCONCURRENCY_CONFLICTを返す。
	MarkDeclined(ctx context.Context, id, reason string, now time.Time) error
}

// ReminderTrackingRepository はリマインダー送信実績の永続化インターフェース。
type ReminderTrackingRepository interface {
	// FindBySignerAndEnvelope は(署名者, エンベロープ)の送信実績を取得する。
	// 見つからない場合はnilを返す（実績は初回送信時に遅延作成される）。
	FindBySignerAndEnvelope(ctx context.Context, signerID, envelopeID string) (*model.ReminderTracking, error)

	// IncrementAndStamp はreminder_countを1増やし、last_reminder_atとmessageを更新する。
	// expectedCountには呼び出し側が直前に読み取ったreminder_countを渡す。
	// 永続化されている値がexpectedCountと異なる場合（並行するリマインダーとの競合）は
	// 加算せずCONCURRENCY_CONFLICTを返す。expectedCountが0でレコード未作成の場合は
	// 遅延作成する。
	IncrementAndStamp(ctx context.Context, signerID, envelopeID string, expectedCount int, message string, now time.Time) (*model.ReminderTracking, error)
}

// InvitationTokenRepository は招待トークンの永続化インターフェース。
type InvitationTokenRepository interface {
	// Create は招待トークンを作成する。
	Create(ctx context.Context, token *model.InvitationToken) error

	// ListBySignerID は署名者の全トークンを作成日時降順で取得する。
	ListBySignerID(ctx context.Context, signerID string) ([]*model.InvitationToken, error)

	// MarkSent はトークンのsent_countを1増やし、last_sent_atを更新する。
	MarkSent(ctx context.Context, id string, now time.Time) error
}

// AuditEventRepository は監査証跡の永続化インターフェース。追記専用。
type AuditEventRepository interface {
	// Create は監査イベントを追記する。
	Create(ctx context.Context, event *model.AuditEvent) error

	// ListByEnvelopeID はエンベロープの監査イベントを作成日時昇順で取得する。
	ListByEnvelopeID(ctx context.Context, envelopeID string, limit int) ([]*model.AuditEvent, error)
}
