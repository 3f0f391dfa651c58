// Package model はドメインモデルを定義する。
package model

// Actor は操作の実行主体を表す閉じた構造体。
// リクエストコンテキストや監査証跡で利用され、動的な属性追加は行わない。
type Actor struct {
	UserID    string
	Email     string
	IP        string
	UserAgent string
	Role      ActorRole
}

// ActorRole は実行主体の役割を表す。
type ActorRole string

const (
	// RoleUser は通常の利用ユーザー。
	RoleUser ActorRole = "user"
	// RoleAdmin は全エンベロープへの変更権限を持つ管理者。
	RoleAdmin ActorRole = "admin"
	// RoleSystem はバックグラウンドジョブ等のシステム実行主体。
	RoleSystem ActorRole = "system"
)

// SystemActor は自動リマインダーワーカー等が使用するシステム実行主体を返す。
func SystemActor() Actor {
	return Actor{UserID: "system", Role: RoleSystem}
}
