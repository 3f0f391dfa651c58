package signing

import (
	"github.com/hitoshi/shomei/internal/model"
)

// ValidateSigningOrder は署名・拒否の実行前に、候補の署名者が署名順序に
// 違反していないかを検証する。候補が存在しない場合はSIGNER_NOT_FOUND、
// 順番が回ってきていない場合はSIGNING_ORDER_VIOLATIONを返す。
// 検証は状態を変更しない。永続化前に新しく読み込んだ署名者一覧に対して
// 必ず再実行すること。
func ValidateSigningOrder(envelope *model.Envelope, candidateSignerID, ownerID string, signers []*model.Signer) error {
	allowed, err := CanActNow(signers, envelope.SigningOrderType, candidateSignerID, ownerID)
	if err != nil {
		return err
	}
	if !allowed {
		return model.NewSigningOrderViolationError(candidateSignerID)
	}
	return nil
}

// ValidateSigningOrderConsistency はエンベロープ構成時の構造検証を行う。
// 宣言されたOrder値が選択された順序ポリシーと矛盾していないかを確認する:
// OWNER_FIRSTではオーナーのOrderが全署名者の最小値、
// INVITEES_FIRSTでは最大値でなければならない。
// 違反は実行時の順序違反と区別するためINVALID_ENVELOPE_STATE（設定エラー）を返す。
func ValidateSigningOrderConsistency(orderType model.SigningOrderType, signers []*model.Signer, ownerID string) error {
	var owner *model.Signer
	for _, s := range signers {
		if s.IsOwner(ownerID) {
			owner = s
			break
		}
	}
	if owner == nil {
		return model.NewInvalidEnvelopeStateError("オーナー署名者が存在しません")
	}

	switch orderType {
	case model.SigningOrderOwnerFirst:
		for _, s := range signers {
			if s.ID != owner.ID && s.Order <= owner.Order {
				return model.NewInvalidEnvelopeStateError(
					"owner_firstではオーナーのOrderが最小でなければなりません")
			}
		}
	case model.SigningOrderInviteesFirst:
		for _, s := range signers {
			if s.ID != owner.ID && s.Order >= owner.Order {
				return model.NewInvalidEnvelopeStateError(
					"invitees_firstではオーナーのOrderが最大でなければなりません")
			}
		}
	default:
		return model.NewInvalidEnvelopeStateError("未知の署名順序タイプです: " + string(orderType))
	}
	return nil
}
