package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shomei/internal/model"
)

// TokenVerifierInterface は招待トークンの検証に必要なインターフェース。
type TokenVerifierInterface interface {
	// Verify はトークン文字列を検証し、署名者IDとエンベロープIDを返す。
	Verify(tokenString string) (string, string, error)
}

// SignerFinderInterface は署名者の検索に必要なインターフェース。
// repository.SignerRepositoryの部分集合として定義する。
type SignerFinderInterface interface {
	FindByID(ctx context.Context, id string) (*model.Signer, error)
}

// SigningHandler は外部署名者が招待トークンでアクセスするHTTPハンドラー。
// セッション認証の外側に配置され、トークン自体が認証手段となる。
type SigningHandler struct {
	verifier TokenVerifierInterface
	signers  SignerFinderInterface
	service  EnvelopeServiceInterface
}

// NewSigningHandler はSigningHandlerを生成する。
func NewSigningHandler(verifier TokenVerifierInterface, signers SignerFinderInterface, service EnvelopeServiceInterface) *SigningHandler {
	return &SigningHandler{
		verifier: verifier,
		signers:  signers,
		service:  service,
	}
}

// GetSigningSession は招待トークンからエンベロープの署名セッション情報を返す。
// GET /signing/{token}
func (h *SigningHandler) GetSigningSession(w http.ResponseWriter, r *http.Request) {
	signer, actor, ok := h.resolveToken(w, r)
	if !ok {
		return
	}

	envelope, signers, err := h.service.Get(r.Context(), signer.EnvelopeID, actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"signer_id": signer.ID,
		"envelope":  toEnvelopeResponse(envelope, signers),
	})
}

// SignWithToken は招待トークンによる外部署名者の署名を処理する。
// POST /signing/{token}/sign
func (h *SigningHandler) SignWithToken(w http.ResponseWriter, r *http.Request) {
	signer, actor, ok := h.resolveToken(w, r)
	if !ok {
		return
	}

	envelope, err := h.service.Sign(r.Context(), signer.EnvelopeID, signer.ID, actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEnvelopeResponse(envelope, nil))
}

// DeclineWithToken は招待トークンによる外部署名者の署名拒否を処理する。
// POST /signing/{token}/decline
func (h *SigningHandler) DeclineWithToken(w http.ResponseWriter, r *http.Request) {
	signer, actor, ok := h.resolveToken(w, r)
	if !ok {
		return
	}

	var req declineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの形式が不正です。",
			Category: "validation",
			Action:   "リクエスト形式を確認してください。",
		})
		return
	}

	envelope, err := h.service.Decline(r.Context(), signer.EnvelopeID, signer.ID, req.Reason, actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEnvelopeResponse(envelope, nil))
}

// resolveToken はURLパスのトークンを検証し、対応する署名者と実行主体を返す。
// 検証に失敗した場合はエラーレスポンスを書き出しfalseを返す。
func (h *SigningHandler) resolveToken(w http.ResponseWriter, r *http.Request) (*model.Signer, model.Actor, bool) {
	tokenString := chi.URLParam(r, "token")

	signerID, envelopeID, err := h.verifier.Verify(tokenString)
	if err != nil {
		writeInvalidToken(w)
		return nil, model.Actor{}, false
	}

	signer, err := h.signers.FindByID(r.Context(), signerID)
	if err != nil {
		handleServiceError(w, err)
		return nil, model.Actor{}, false
	}
	// トークンのクレームと署名者レコードの不整合は不正トークンとして扱う
	if signer == nil || signer.EnvelopeID != envelopeID {
		writeInvalidToken(w)
		return nil, model.Actor{}, false
	}

	actor := model.Actor{
		UserID:    signer.UserID,
		Email:     signer.Email,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Role:      model.RoleUser,
	}
	return signer, actor, true
}

// writeInvalidToken は招待トークンが無効な場合の401レスポンスを書き出す。
func writeInvalidToken(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "INVALID_TOKEN",
		Message:  "招待トークンが無効または期限切れです。",
		Category: "auth",
		Action:   "エンベロープのオーナーにリマインダーの再送を依頼してください。",
	})
}
