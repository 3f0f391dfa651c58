// Package model はドメインモデルを定義する。
package model

import "time"

// InvitationToken は外部署名者が認証なしでエンベロープにアクセスするための
// 期限付きトークンを表す。Token文字列の発行・検証はtokenパッケージが担う。
type InvitationToken struct {
	ID         string
	SignerID   string
	EnvelopeID string
	Token      string // 署名済みトークン文字列
	ExpiresAt  time.Time
	SentCount  int
	LastSentAt *time.Time
	CreatedAt  time.Time
}

// IsExpiredAt は指定時刻においてトークンが期限切れかを返す。
func (t *InvitationToken) IsExpiredAt(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
