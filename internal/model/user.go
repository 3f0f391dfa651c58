// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// ユーザーの作成・認証はプラットフォームの認証基盤が担い、
// 本サービスはセッション検証と権限判定のために参照のみ行う。
type User struct {
	ID        string
	Email     string
	Name      string
	Role      ActorRole
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// セッションの発行は認証基盤が行い、本サービスは検証と失効のみ行う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
