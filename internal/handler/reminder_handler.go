package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shomei/internal/middleware"
	"github.com/hitoshi/shomei/internal/model"
	"github.com/hitoshi/shomei/internal/reminder"
)

// ReminderServiceInterface はリマインダーハンドラーが必要とするサービスインターフェース。
type ReminderServiceInterface interface {
	SendReminders(ctx context.Context, input reminder.SendRemindersInput) (*reminder.SendRemindersResult, error)
}

// ReminderHandler はリマインダー送信のHTTPハンドラー。
type ReminderHandler struct {
	service ReminderServiceInterface
}

// NewReminderHandler はReminderHandlerを生成する。
func NewReminderHandler(service ReminderServiceInterface) *ReminderHandler {
	return &ReminderHandler{service: service}
}

// sendRemindersRequest はリマインダー送信リクエストのボディ。
// signer_idsが空の場合は署名待ちの全署名者が対象になる。
type sendRemindersRequest struct {
	SignerIDs []string `json:"signer_ids"`
	Message   string   `json:"message"`
}

// SendReminders は署名待ちの署名者へのリマインダー送信を処理する。
// POST /api/envelopes/{id}/reminders
func (h *ReminderHandler) SendReminders(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req sendRemindersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの形式が不正です。",
			Category: "validation",
			Action:   "リクエスト形式を確認してください。",
		})
		return
	}

	result, err := h.service.SendReminders(r.Context(), reminder.SendRemindersInput{
		EnvelopeID: chi.URLParam(r, "id"),
		SignerIDs:  req.SignerIDs,
		Message:    req.Message,
		Actor:      actor,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
