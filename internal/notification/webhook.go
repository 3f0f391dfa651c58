// Package notification は署名ワークフローのイベント通知を提供する。
// 設定されたWebhookエンドポイントへのリマインダー・状態変更通知を含む。
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/shomei/internal/model"
)

// Notifier はイベント通知のインターフェースを定義する。
type Notifier interface {
	// PublishReminder は署名者へのリマインダー通知を配信する。
	// reminderCountには今回の送信を含む累計送信回数を渡す。
	PublishReminder(ctx context.Context, envelope *model.Envelope, signer *model.Signer, token *model.InvitationToken, message string, reminderCount int) error

	// PublishEnvelopeStatus はエンベロープの状態変更通知を配信する。
	PublishEnvelopeStatus(ctx context.Context, envelope *model.Envelope, eventType model.AuditEventType) error
}

// reminderPayload はリマインダー通知のWebhookペイロード。
type reminderPayload struct {
	Event         string `json:"event"`
	EnvelopeID    string `json:"envelope_id"`
	EnvelopeTitle string `json:"envelope_title"`
	SignerID      string `json:"signer_id"`
	SignerEmail   string `json:"signer_email"`
	SignerName    string `json:"signer_name"`
	Message       string `json:"message"`
	ReminderCount int    `json:"reminder_count"`
	SigningToken  string `json:"signing_token,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// statusPayload は状態変更通知のWebhookペイロード。
type statusPayload struct {
	Event         string `json:"event"`
	EnvelopeID    string `json:"envelope_id"`
	EnvelopeTitle string `json:"envelope_title"`
	Status        string `json:"status"`
	OccurredAt    string `json:"occurred_at"`
}

// MetricsRecorder はWebhook配信のメトリクス記録インターフェース。
// metrics.Collectorがこれを満たす。
type MetricsRecorder interface {
	RecordWebhookLatency(duration time.Duration)
	RecordWebhookFailure()
}

// WebhookNotifier は設定されたエンドポイントへJSONをPOSTするNotifier実装。
// SSRF防止機能付きのHTTPクライアントを使用する。
type WebhookNotifier struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	metrics    MetricsRecorder
	now        func() time.Time
}

// NewWebhookNotifier はWebhookNotifierの新しいインスタンスを生成する。
func NewWebhookNotifier(httpClient *http.Client, logger *slog.Logger, endpoint string) *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		now:        time.Now,
	}
}

// SetMetrics はWebhook配信のメトリクス記録を有効にする。
func (n *WebhookNotifier) SetMetrics(m MetricsRecorder) {
	n.metrics = m
}

// PublishReminder は署名者へのリマインダー通知を配信する。
// 外部署名者の場合はペイロードに招待トークンを含める。
func (n *WebhookNotifier) PublishReminder(ctx context.Context, envelope *model.Envelope, signer *model.Signer, token *model.InvitationToken, message string, reminderCount int) error {
	payload := reminderPayload{
		Event:         "reminder",
		EnvelopeID:    envelope.ID,
		EnvelopeTitle: envelope.Title,
		SignerID:      signer.ID,
		SignerEmail:   signer.Email,
		SignerName:    signer.FullName,
		Message:       message,
		ReminderCount: reminderCount,
		OccurredAt:    n.now().UTC().Format(time.RFC3339),
	}
	if token != nil {
		payload.SigningToken = token.Token
	}
	return n.post(ctx, payload)
}

// PublishEnvelopeStatus はエンベロープの状態変更通知を配信する。
func (n *WebhookNotifier) PublishEnvelopeStatus(ctx context.Context, envelope *model.Envelope, eventType model.AuditEventType) error {
	payload := statusPayload{
		Event:         string(eventType),
		EnvelopeID:    envelope.ID,
		EnvelopeTitle: envelope.Title,
		Status:        string(envelope.Status),
		OccurredAt:    n.now().UTC().Format(time.RFC3339),
	}
	return n.post(ctx, payload)
}

// post はペイロードをJSONエンコードしてWebhookエンドポイントへPOSTする。
func (n *WebhookNotifier) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("Webhookペイロードのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Shomei/1.0 Signing Service")

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	if n.metrics != nil {
		n.metrics.RecordWebhookLatency(time.Since(start))
	}
	if err != nil {
		if n.metrics != nil {
			n.metrics.RecordWebhookFailure()
		}
		n.logger.Error("Webhookの配信に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("Webhookの配信に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	// レスポンスボディは読み捨ててコネクションを再利用する
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if n.metrics != nil {
			n.metrics.RecordWebhookFailure()
		}
		n.logger.Error("Webhookエンドポイントがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("Webhookエンドポイントがステータス %d を返しました", resp.StatusCode)
	}
	return nil
}
