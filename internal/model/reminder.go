// Package model はドメインモデルを定義する。
package model

import "time"

// ReminderTracking は(署名者, エンベロープ)ごとのリマインダー送信実績を表す。
// 初回送信時に遅延作成され、エンベロープが有効な間は削除されない。
// ReminderCountは単調非減少、LastReminderAtは前進のみ。
type ReminderTracking struct {
	SignerID       string
	EnvelopeID     string
	ReminderCount  int
	LastReminderAt *time.Time
	Message        string // 最後に送信したリマインダーメッセージ
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
