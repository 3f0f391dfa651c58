// Package access はエンベロープ操作の権限判定を提供する。
package access

import (
	"github.com/hitoshi/shomei/internal/model"
)

// ValidateEnvelopeModificationAccess は実行主体がエンベロープを変更できるかを検証する。
// 許可されるのはオーナー本人、管理者、およびシステム実行主体のみ。
// 権限がない場合はACCESS_DENIEDエラーを返す。
func ValidateEnvelopeModificationAccess(envelope *model.Envelope, actor model.Actor) error {
	if actor.Role == model.RoleAdmin || actor.Role == model.RoleSystem {
		return nil
	}
	if actor.UserID != "" && actor.UserID == envelope.CreatedBy {
		return nil
	}
	return model.NewAccessDeniedError()
}
