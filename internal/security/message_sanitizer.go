// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MessageSanitizerService はリマインダーメッセージ等のユーザー入力テキストを
// サニタイズし、通知経由のXSS攻撃からユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 限定された整形タグのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MessageSanitizerService はメッセージサニタイズ機能のインターフェースを定義する。
// リマインダーメッセージの送信前および監査証跡への保存前に使用される。
type MessageSanitizerService interface {
	// Sanitize はメッセージをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, strong, em）のみを通過させ、
	// script, iframe, style, a, imgタグおよびon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// messageSanitizer はMessageSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type messageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はMessageSanitizerServiceの新しいインスタンスを生成する。
// リマインダーメッセージは通知本文にそのまま埋め込まれるため、
// 最小限のタグのみを許可する厳しいポリシーを使用する。
// ポリシーの内容:
//   - 許可タグ: p, br, strong, em
//   - 禁止タグ: script, iframe, style, a, img および全てのon*イベント属性
//   - リンクと画像は通知本文には不要のため一切許可しない
func NewMessageSanitizer() *messageSanitizer {
	p := bluemonday.NewPolicy()

	// 許可するのは基本的な整形タグのみ
	// script, iframe, style等は許可リストに含めないことで自動的に除去される
	// on*イベント属性はbluemondayのデフォルトで許可されない
	p.AllowElements("p", "br", "strong", "em")

	return &messageSanitizer{
		policy: p,
	}
}

// Sanitize はメッセージをサニタイズして安全なHTMLを返す。
// 前後の空白も除去する。
func (s *messageSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
