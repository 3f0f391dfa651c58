package signing

import (
	"fmt"

	"github.com/hitoshi/shomei/internal/model"
)

// envelopeTransitions はエンベロープ状態機械の許可遷移テーブル。
// completed / cancelled / declined は終端状態であり、遷移先を持たない。
var envelopeTransitions = map[model.EnvelopeStatus][]model.EnvelopeStatus{
	model.EnvelopeStatusDraft: {
		model.EnvelopeStatusSent,
		model.EnvelopeStatusCancelled,
	},
	model.EnvelopeStatusSent: {
		model.EnvelopeStatusReadyForSignature,
		model.EnvelopeStatusCompleted,
		model.EnvelopeStatusCancelled,
		model.EnvelopeStatusDeclined,
	},
	model.EnvelopeStatusReadyForSignature: {
		model.EnvelopeStatusCompleted,
		model.EnvelopeStatusCancelled,
		model.EnvelopeStatusDeclined,
	},
	model.EnvelopeStatusCompleted: {},
	model.EnvelopeStatusCancelled: {},
	model.EnvelopeStatusDeclined:  {},
}

// CanTransition はfromからtoへの遷移が状態機械で許可されているかを返す。
func CanTransition(from, to model.EnvelopeStatus) bool {
	for _, allowed := range envelopeTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition はfromからtoへの遷移を検証し、
// 許可されない遷移の場合はINVALID_ENVELOPE_STATEエラーを返す。
// 永続化前に必ず呼び出すこと（fail closed）。
func ValidateTransition(from, to model.EnvelopeStatus) error {
	if !CanTransition(from, to) {
		return model.NewInvalidEnvelopeStateError(
			fmt.Sprintf("%s から %s への遷移は許可されていません", from, to))
	}
	return nil
}

// IsTerminalStatus はエンベロープ状態が終端（completed/cancelled/declined）かを返す。
func IsTerminalStatus(status model.EnvelopeStatus) bool {
	return status == model.EnvelopeStatusCompleted ||
		status == model.EnvelopeStatusCancelled ||
		status == model.EnvelopeStatusDeclined
}

// IsSignable はエンベロープが署名・拒否を受け付ける状態（sent/ready_for_signature）かを返す。
func IsSignable(status model.EnvelopeStatus) bool {
	return status == model.EnvelopeStatusSent ||
		status == model.EnvelopeStatusReadyForSignature
}
