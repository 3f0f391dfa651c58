// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shomei/internal/middleware"
	"github.com/hitoshi/shomei/internal/model"
)

// EnvelopeServiceInterface はエンベロープハンドラーが必要とするサービスインターフェース。
type EnvelopeServiceInterface interface {
	// Get はエンベロープと署名者一覧を取得する。
	Get(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, []*model.Signer, error)
	// Send はドラフトのエンベロープを署名者へ送付する。
	Send(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error)
	// Sign は署名者の署名を記録する。
	Sign(ctx context.Context, envelopeID, signerID string, actor model.Actor) (*model.Envelope, error)
	// Decline は署名者の拒否を記録しエンベロープを終端させる。
	Decline(ctx context.Context, envelopeID, signerID, reason string, actor model.Actor) (*model.Envelope, error)
	// Cancel はオーナー操作によりエンベロープを取り消す。
	Cancel(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error)
}

// AuditListerInterface は監査証跡の参照に必要なインターフェース。
// audit.Serviceを直接参照せず、ハンドラーが使う操作だけを切り出す。
type AuditListerInterface interface {
	ListForEnvelope(ctx context.Context, envelopeID string, actor model.Actor) ([]*model.AuditEvent, error)
}

// EnvelopeHandler はエンベロープ管理のHTTPハンドラー。
type EnvelopeHandler struct {
	service EnvelopeServiceInterface
	audits  AuditListerInterface
}

// NewEnvelopeHandler はEnvelopeHandlerを生成する。
func NewEnvelopeHandler(service EnvelopeServiceInterface, audits AuditListerInterface) *EnvelopeHandler {
	return &EnvelopeHandler{
		service: service,
		audits:  audits,
	}
}

// declineRequest は署名拒否リクエストのボディ。
type declineRequest struct {
	Reason string `json:"reason"`
}

// signerResponse は署名者情報のAPIレスポンス。
type signerResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name"`
	IsExternal    bool       `json:"is_external"`
	Order         int        `json:"order"`
	Status        string     `json:"status"`
	DeclineReason string     `json:"decline_reason,omitempty"`
	SignedAt      *time.Time `json:"signed_at,omitempty"`
	DeclinedAt    *time.Time `json:"declined_at,omitempty"`
}

// envelopeResponse はエンベロープ情報のAPIレスポンス。
type envelopeResponse struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Status           string           `json:"status"`
	SigningOrderType string           `json:"signing_order_type"`
	DocumentCount    int              `json:"document_count"`
	SentAt           *time.Time       `json:"sent_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Signers          []signerResponse `json:"signers,omitempty"`
}

// auditEventResponse は監査イベントのAPIレスポンス。
type auditEventResponse struct {
	ID          string         `json:"id"`
	SignerID    string         `json:"signer_id,omitempty"`
	EventType   string         `json:"event_type"`
	Description string         `json:"description"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	ActorEmail  string         `json:"actor_email,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// GetEnvelope はエンベロープの詳細を返す。
// GET /api/envelopes/{id}
func (h *EnvelopeHandler) GetEnvelope(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	envelopeID := chi.URLParam(r, "id")
	envelope, signers, err := h.service.Get(r.Context(), envelopeID, actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEnvelopeResponse(envelope, signers))
}

// SendEnvelope はドラフトのエンベロープを送付する。
// POST /api/envelopes/{id}/send
func (h *EnvelopeHandler) SendEnvelope(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	envelopeID := chi.URLParam(r, "id")
	envelope, err := h.service.Send(r.Context(), envelopeID, actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEnvelopeResponse(envelope, nil))
}

// SignEnvelope は内部ユーザーの署名を処理する。
// POST /api/envelopes/{id}/signers/{signerID}/sign
func (h *EnvelopeHandler) SignEnvelope(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	envelopeID := chi.URLParam(r, "id")
	signerID := chi.URLParam(r, "signerID")
	envelope, err := h.service.Sign(r.Context(), envelopeID, signerID, actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEnvelopeResponse(envelope, nil))
}

// DeclineEnvelope は内部ユーザーの署名拒否を処理する。
// POST /api/envelopes/{id}/signers/{signerID}/decline
func (h *EnvelopeHandler) DeclineEnvelope(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
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

	envelopeID := chi.URLParam(r, "id")
	signerID := chi.URLParam(r, "signerID")
	envelope, err := h.service.Decline(r.Context(), envelopeID, signerID, req.Reason, actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEnvelopeResponse(envelope, nil))
}

// CancelEnvelope はエンベロープの取消を処理する。
// POST /api/envelopes/{id}/cancel
func (h *EnvelopeHandler) CancelEnvelope(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	envelopeID := chi.URLParam(r, "id")
	envelope, err := h.service.Cancel(r.Context(), envelopeID, actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEnvelopeResponse(envelope, nil))
}

// ListAuditEvents はエンベロープの監査証跡を返す。
// GET /api/envelopes/{id}/audit
func (h *EnvelopeHandler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	envelopeID := chi.URLParam(r, "id")
	events, err := h.audits.ListForEnvelope(r.Context(), envelopeID, actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		responses = append(responses, auditEventResponse{
			ID:          e.ID,
			SignerID:    e.SignerID,
			EventType:   string(e.EventType),
			Description: e.Description,
			ActorUserID: e.Actor.UserID,
			ActorEmail:  e.Actor.Email,
			Metadata:    e.Metadata,
			CreatedAt:   e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": responses})
}

// toEnvelopeResponse はドメインモデルからAPIレスポンスを構築する。
// signersがnilの場合はSignersフィールドを省略する。
func toEnvelopeResponse(envelope *model.Envelope, signers []*model.Signer) envelopeResponse {
	resp := envelopeResponse{
		ID:               envelope.ID,
		Title:            envelope.Title,
		Status:           string(envelope.Status),
		SigningOrderType: string(envelope.SigningOrderType),
		DocumentCount:    envelope.DocumentCount,
		SentAt:           envelope.SentAt,
		CompletedAt:      envelope.CompletedAt,
	}
	for _, s := range signers {
		resp.Signers = append(resp.Signers, signerResponse{
			ID:            s.ID,
			Email:         s.Email,
			FullName:      s.FullName,
			IsExternal:    s.IsExternal,
			Order:         s.Order,
			Status:        string(s.Status),
			DeclineReason: s.DeclineReason,
			SignedAt:      s.SignedAt,
			DeclinedAt:    s.DeclinedAt,
		})
	}
	return resp
}

// writeJSON はJSONレスポンスを書き出す。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeUnauthorized は実行主体が取得できないリクエストへの401レスポンスを書き出す。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	})
}

func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeEnvelopeNotFound, model.ErrCodeSignerNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeAccessDenied:
		return http.StatusForbidden
	case model.ErrCodeSigningOrderViolation:
		return http.StatusConflict
	case model.ErrCodeInvalidEnvelopeState:
		return http.StatusConflict
	case model.ErrCodeConcurrencyConflict:
		return http.StatusConflict
	case model.ErrCodeTokenNotFound:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
