package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/shomei/internal/middleware"
)

// SessionDeleterInterface はセッションの破棄に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionDeleterInterface interface {
	DeleteByID(ctx context.Context, id string) error
}

// AuthHandler はセッション管理のHTTPハンドラー。
// セッションの発行は外部のID基盤が担うため、ここでは破棄と現在ユーザーの参照のみ扱う。
type AuthHandler struct {
	sessions SessionDeleterInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions SessionDeleterInterface) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// Logout はBearerトークンに対応するセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := bearerSessionID(r)
	if sessionID != "" {
		if err := h.sessions.DeleteByID(r.Context(), sessionID); err != nil {
			slog.Error("セッションの破棄に失敗しました", slog.String("error", err.Error()))
			// 破棄に失敗してもクライアントにはログアウト完了として応答する
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在の実行主体の情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": actor.UserID,
		"email":   actor.Email,
		"role":    string(actor.Role),
	})
}

// bearerSessionID はAuthorizationヘッダーからBearerトークンを抽出する。
func bearerSessionID(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
