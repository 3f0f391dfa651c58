package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/shomei/internal/model"
)

// PostgresReminderRepoはReminderTrackingRepositoryインターフェースを満たすことを検証
func TestPostgresReminderRepo_ImplementsInterface(t *testing.T) {
	var _ ReminderTrackingRepository = (*PostgresReminderRepo)(nil)
}

// PostgresTokenRepoはInvitationTokenRepositoryインターフェースを満たすことを検証
func TestPostgresTokenRepo_ImplementsInterface(t *testing.T) {
	var _ InvitationTokenRepository = (*PostgresTokenRepo)(nil)
}

// PostgresAuditRepoはAuditEventRepositoryインターフェースを満たすことを検証
func TestPostgresAuditRepo_ImplementsInterface(t *testing.T) {
	var _ AuditEventRepository = (*PostgresAuditRepo)(nil)
}

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

// NewPostgresReminderRepoが正しく初期化されることを検証
func TestNewPostgresReminderRepo_Initializes(t *testing.T) {
	repo := NewPostgresReminderRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// ReminderTrackingモデルの未送信状態を検証
func TestReminderTrackingModel_ZeroState(t *testing.T) {
	tracking := &model.ReminderTracking{
		SignerID:   "signer-id-1",
		EnvelopeID: "env-id-1",
	}

	if tracking.ReminderCount != 0 {
		t.Errorf("tracking.ReminderCount = %d, want 0", tracking.ReminderCount)
	}
	if tracking.LastReminderAt != nil {
		t.Error("last_reminder_at should be nil before first send")
	}
}

// InvitationTokenの期限判定を検証
func TestInvitationToken_IsExpiredAt(t *testing.T) {
	now := time.Now()
	token := &model.InvitationToken{
		ID:        "token-id-1",
		ExpiresAt: now.Add(time.Hour),
	}

	if token.IsExpiredAt(now) {
		t.Error("token expiring in 1h should not be expired now")
	}
	if !token.IsExpiredAt(now.Add(2 * time.Hour)) {
		t.Error("token should be expired after its expires_at")
	}
	// 境界: expires_atちょうどは期限切れ扱い
	if !token.IsExpiredAt(token.ExpiresAt) {
		t.Error("token should be expired exactly at expires_at")
	}
}
