// Package model はドメインモデルを定義する。
package model

import "time"

// AuditEvent はエンベロープ操作の監査証跡レコードを表す。
// 追記専用であり、作成後の更新・削除は行わない。
type AuditEvent struct {
	ID          string
	EnvelopeID  string
	SignerID    string // 署名者に紐付かないイベントは空文字列
	EventType   AuditEventType
	Description string
	Actor       Actor
	Metadata    map[string]any // JSONBとして永続化される付随情報
	CreatedAt   time.Time
}

// AuditEventType は監査イベントの種別を表す。
type AuditEventType string

const (
	// AuditEventEnvelopeSent はエンベロープ送付イベント。
	AuditEventEnvelopeSent AuditEventType = "envelope_sent"
	// AuditEventSignerSigned は署名完了イベント。
	AuditEventSignerSigned AuditEventType = "signer_signed"
	// AuditEventSignerDeclined は署名拒否イベント。
	AuditEventSignerDeclined AuditEventType = "signer_declined"
	// AuditEventEnvelopeCompleted は全署名完了イベント。
	AuditEventEnvelopeCompleted AuditEventType = "envelope_completed"
	// AuditEventEnvelopeCancelled はエンベロープ取消イベント。
	AuditEventEnvelopeCancelled AuditEventType = "envelope_cancelled"
	// AuditEventReminderSent はリマインダー送信イベント。
	AuditEventReminderSent AuditEventType = "reminder_sent"
)
