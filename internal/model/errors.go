// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, envelope, signing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEnvelopeNotFound      = "ENVELOPE_NOT_FOUND"
	ErrCodeSignerNotFound        = "SIGNER_NOT_FOUND"
	ErrCodeAccessDenied          = "ACCESS_DENIED"
	ErrCodeSigningOrderViolation = "SIGNING_ORDER_VIOLATION"
	ErrCodeInvalidEnvelopeState  = "INVALID_ENVELOPE_STATE"
	ErrCodeConcurrencyConflict   = "CONCURRENCY_CONFLICT"
	ErrCodeTokenNotFound         = "TOKEN_NOT_FOUND"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
)

// NewEnvelopeNotFoundError はエンベロープ未検出エラーを生成する。
func NewEnvelopeNotFoundError(envelopeID string) *APIError {
	return &APIError{
		Code:     ErrCodeEnvelopeNotFound,
		Message:  fmt.Sprintf("指定されたエンベロープが見つかりません: %s", envelopeID),
		Category: "envelope",
		Action:   "エンベロープIDを確認してください。",
	}
}

// NewSignerNotFoundError は署名者未検出エラーを生成する。
func NewSignerNotFoundError(signerID string) *APIError {
	return &APIError{
		Code:     ErrCodeSignerNotFound,
		Message:  fmt.Sprintf("指定された署名者が見つかりません: %s", signerID),
		Category: "envelope",
		Action:   "署名者IDを確認してください。",
	}
}

// NewAccessDeniedError はエンベロープ変更権限がない場合のエラーを生成する。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "このエンベロープを変更する権限がありません。",
		Category: "auth",
		Action:   "エンベロープのオーナーに操作を依頼してください。",
	}
}

// NewSigningOrderViolationError は署名順序違反エラーを生成する。
// まだ順番が回ってきていない署名者による署名・拒否の試行を表す。
func NewSigningOrderViolationError(signerID string) *APIError {
	return &APIError{
		Code:     ErrCodeSigningOrderViolation,
		Message:  fmt.Sprintf("署名順序に違反しています。まだこの署名者の番ではありません: %s", signerID),
		Category: "signing",
		Action:   "前の署名者の署名完了を待ってから再度お試しください。",
	}
}

// NewInvalidEnvelopeStateError は不正なエンベロープ状態のエラーを生成する。
// 状態機械で許可されない遷移、または宣言された署名順序の構造的な矛盾を表す。
func NewInvalidEnvelopeStateError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEnvelopeState,
		Message:  fmt.Sprintf("エンベロープの状態が不正です: %s", reason),
		Category: "signing",
		Action:   "エンベロープの現在の状態を確認してください。",
	}
}

// NewConcurrencyConflictError は条件付き書き込みが競合に敗れた場合のエラーを生成する。
// 再試行可能なエラーとして他の4種と区別される。
func NewConcurrencyConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeConcurrencyConflict,
		Message:  "他の操作と競合したため更新できませんでした。",
		Category: "system",
		Action:   "最新の状態を取得してから再度お試しください。",
	}
}

// NewTokenNotFoundError は招待トークン未検出エラーを生成する。
func NewTokenNotFoundError(signerID string) *APIError {
	return &APIError{
		Code:     ErrCodeTokenNotFound,
		Message:  fmt.Sprintf("署名者の有効な招待トークンが見つかりません: %s", signerID),
		Category: "envelope",
		Action:   "エンベロープを再送付して新しいトークンを発行してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
