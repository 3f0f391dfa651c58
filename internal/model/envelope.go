// Package model はドメインモデルを定義する。
package model

import "time"

// Envelope は署名対象のドキュメント一式と署名者の集合をまとめた単位を表す。
type Envelope struct {
	ID               string
	Title            string
	Status           EnvelopeStatus
	SigningOrderType SigningOrderType
	CreatedBy        string // オーナーのユーザーID
	DocumentCount    int
	SentAt           *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EnvelopeStatus はエンベロープのライフサイクル状態を表す。
type EnvelopeStatus string

const (
	// EnvelopeStatusDraft は作成直後の下書き状態。
	EnvelopeStatusDraft EnvelopeStatus = "draft"
	// EnvelopeStatusSent は署名者への送付が完了した状態。
	EnvelopeStatusSent EnvelopeStatus = "sent"
	// EnvelopeStatusReadyForSignature は送付済みかつ少なくとも1人の署名者が
	// 今すぐ署名可能な状態。
	EnvelopeStatusReadyForSignature EnvelopeStatus = "ready_for_signature"
	// EnvelopeStatusCompleted は全署名者の署名が完了した終端状態。
	EnvelopeStatusCompleted EnvelopeStatus = "completed"
	// EnvelopeStatusCancelled はオーナー操作により取り消された終端状態。
	EnvelopeStatusCancelled EnvelopeStatus = "cancelled"
	// EnvelopeStatusDeclined はいずれかの署名者が拒否した終端状態。
	EnvelopeStatusDeclined EnvelopeStatus = "declined"
)

// SigningOrderType は署名者間の順序ポリシーを表す。
type SigningOrderType string

const (
	// SigningOrderOwnerFirst はオーナーが全招待者より先に署名するポリシー。
	SigningOrderOwnerFirst SigningOrderType = "owner_first"
	// SigningOrderInviteesFirst は全招待者がオーナーより先に署名するポリシー。
	SigningOrderInviteesFirst SigningOrderType = "invitees_first"
)
