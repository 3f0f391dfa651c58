// Package signing は署名順序ポリシーとエンベロープ状態機械のドメインロジックを提供する。
// 永続化や外部I/Oには依存せず、メモリ上のモデルに対する純粋な判定のみを行う。
package signing

import (
	"github.com/hitoshi/shomei/internal/model"
)

// CanActNow は候補の署名者が今すぐ行動（署名または拒否）してよいかを判定する。
// signersにはエンベロープの全署名者を渡す。候補が見つからない場合は
// falseの判定ではなくSIGNER_NOT_FOUNDエラーを返す。
//
// Order値の一意性はエンベロープ作成時に保証される前提であり、ここでは再検証しない。
func CanActNow(signers []*model.Signer, orderType model.SigningOrderType, candidateSignerID, ownerID string) (bool, error) {
	var candidate *model.Signer
	for _, s := range signers {
		if s.ID == candidateSignerID {
			candidate = s
			break
		}
	}
	if candidate == nil {
		return false, model.NewSignerNotFoundError(candidateSignerID)
	}

	switch orderType {
	case model.SigningOrderOwnerFirst:
		return canActOwnerFirst(signers, candidate, ownerID), nil
	case model.SigningOrderInviteesFirst:
		return canActInviteesFirst(signers, candidate, ownerID), nil
	default:
		return false, model.NewInvalidEnvelopeStateError("未知の署名順序タイプです: " + string(orderType))
	}
}

// canActOwnerFirst はOWNER_FIRSTポリシーの判定を行う。
// オーナーは常に行動可能。オーナー以外は、オーナーが終端状態に達しており、
// かつ自分よりOrderが小さい全署名者が終端状態である場合にのみ行動できる。
func canActOwnerFirst(signers []*model.Signer, candidate *model.Signer, ownerID string) bool {
	if candidate.IsOwner(ownerID) {
		return true
	}
	for _, s := range signers {
		if s.ID == candidate.ID {
			continue
		}
		// オーナーはOrderの位置に関係なく候補より先行する
		if s.IsOwner(ownerID) && !s.IsTerminal() {
			return false
		}
		if s.Order < candidate.Order && !s.IsTerminal() {
			return false
		}
	}
	return true
}

// canActInviteesFirst はINVITEES_FIRSTポリシーの判定を行う。
// オーナーは全招待者が終端状態に達した後にのみ行動できる。
// 招待者同士はOrder昇順に従うが、オーナーのOrderは先行判定から除外される。
func canActInviteesFirst(signers []*model.Signer, candidate *model.Signer, ownerID string) bool {
	if candidate.IsOwner(ownerID) {
		for _, s := range signers {
			if !s.IsOwner(ownerID) && !s.IsTerminal() {
				return false
			}
		}
		return true
	}
	for _, s := range signers {
		if s.ID == candidate.ID || s.IsOwner(ownerID) {
			continue
		}
		if s.Order < candidate.Order && !s.IsTerminal() {
			return false
		}
	}
	return true
}
