package notification

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/shomei/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WebhookNotifierはNotifierインターフェースを満たすことを検証
func TestWebhookNotifier_ImplementsInterface(t *testing.T) {
	var _ Notifier = (*WebhookNotifier)(nil)
}

// リマインダー通知が正しいペイロードで配信されることを検証
func TestWebhookNotifier_PublishReminder(t *testing.T) {
	var received reminderPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.Client(), testLogger(), server.URL)
	envelope := &model.Envelope{ID: "env-1", Title: "秘密保持契約書"}
	signer := &model.Signer{ID: "signer-1", Email: "guest@example.com", FullName: "外部 太郎"}
	token := &model.InvitationToken{Token: "signed-token"}

	err := notifier.PublishReminder(context.Background(), envelope, signer, token, "ご署名をお願いします", 2)
	if err != nil {
		t.Fatalf("PublishReminder failed: %v", err)
	}

	if received.Event != "reminder" {
		t.Errorf("event = %q, want reminder", received.Event)
	}
	if received.EnvelopeID != "env-1" || received.SignerID != "signer-1" {
		t.Errorf("payload ids = (%q, %q)", received.EnvelopeID, received.SignerID)
	}
	if received.SigningToken != "signed-token" {
		t.Errorf("signing_token = %q, want signed-token", received.SigningToken)
	}
	if received.Message != "ご署名をお願いします" {
		t.Errorf("message = %q", received.Message)
	}
	if received.ReminderCount != 2 {
		t.Errorf("reminder_count = %d, want 2", received.ReminderCount)
	}
}

// 内部署名者（トークンなし）へのリマインダーにsigning_tokenが含まれないことを検証
func TestWebhookNotifier_PublishReminder_NoToken(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.Client(), testLogger(), server.URL)
	envelope := &model.Envelope{ID: "env-1", Title: "契約書"}
	signer := &model.Signer{ID: "signer-1", Email: "member@example.com"}

	if err := notifier.PublishReminder(context.Background(), envelope, signer, nil, "確認してください", 1); err != nil {
		t.Fatalf("PublishReminder failed: %v", err)
	}
	if _, ok := raw["signing_token"]; ok {
		t.Error("signing_token should be omitted for internal signers")
	}
}

// 状態変更通知が配信されることを検証
func TestWebhookNotifier_PublishEnvelopeStatus(t *testing.T) {
	var received statusPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.Client(), testLogger(), server.URL)
	envelope := &model.Envelope{ID: "env-1", Title: "契約書", Status: model.EnvelopeStatusCompleted}

	err := notifier.PublishEnvelopeStatus(context.Background(), envelope, model.AuditEventEnvelopeCompleted)
	if err != nil {
		t.Fatalf("PublishEnvelopeStatus failed: %v", err)
	}
	if received.Event != string(model.AuditEventEnvelopeCompleted) {
		t.Errorf("event = %q, want %q", received.Event, model.AuditEventEnvelopeCompleted)
	}
	if received.Status != "completed" {
		t.Errorf("status = %q, want completed", received.Status)
	}
}

// エラーステータス応答がエラーとして扱われることを検証
func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.Client(), testLogger(), server.URL)
	envelope := &model.Envelope{ID: "env-1", Status: model.EnvelopeStatusSent}

	err := notifier.PublishEnvelopeStatus(context.Background(), envelope, model.AuditEventEnvelopeSent)
	if err == nil {
		t.Error("5xx response should be an error")
	}
}
