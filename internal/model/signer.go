// Package model はドメインモデルを定義する。
package model

import "time"

// Signer はエンベロープの署名者（オーナーまたは招待者）を表す。
// Orderはエンベロープ作成時に確定し、署名後も再採番されない。
type Signer struct {
	ID            string
	EnvelopeID    string
	UserID        string // 内部ユーザーの場合のみ。外部招待者は空文字列
	IsExternal    bool
	Email         string
	FullName      string
	Order         int // 署名順。エンベロープ内で一意な正整数
	Status        SignerStatus
	DeclineReason string
	SignedAt      *time.Time
	DeclinedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SignerStatus は署名者ごとの状態を表す。
// pending → signed または declined へ1回だけ遷移する。
type SignerStatus string

const (
	// SignerStatusPending は署名待ち状態。
	SignerStatusPending SignerStatus = "pending"
	// SignerStatusSigned は署名完了の終端状態。
	SignerStatusSigned SignerStatus = "signed"
	// SignerStatusDeclined は署名拒否の終端状態。
	SignerStatusDeclined SignerStatus = "declined"
)

// IsTerminal は署名者が終端状態（signed/declined）に達しているかを返す。
func (s *Signer) IsTerminal() bool {
	return s.Status == SignerStatusSigned || s.Status == SignerStatusDeclined
}

// IsOwner は署名者がエンベロープのオーナー本人かを返す。
// 外部招待者はオーナーのユーザーIDを持っていてもオーナーとは見なさない。
func (s *Signer) IsOwner(ownerID string) bool {
	return !s.IsExternal && s.UserID != "" && s.UserID == ownerID
}
