package signing

import (
	"errors"
	"testing"

	"github.com/hitoshi/shomei/internal/model"
)

func newTestEnvelope(orderType model.SigningOrderType) *model.Envelope {
	return &model.Envelope{
		ID:               "env-1",
		Status:           model.EnvelopeStatusSent,
		SigningOrderType: orderType,
		CreatedBy:        ownerID,
	}
}

// オーナー未署名のowner_firstエンベロープで招待者の署名試行が順序違反になることを検証
func TestValidateSigningOrder_InviteeBeforeOwner_Violation(t *testing.T) {
	env := newTestEnvelope(model.SigningOrderOwnerFirst)
	signers := []*model.Signer{
		newOwner("s-owner", 1, model.SignerStatusPending),
		newInvitee("s-inv1", 2, model.SignerStatusPending),
	}

	err := ValidateSigningOrder(env, "s-inv1", ownerID, signers)
	if err == nil {
		t.Fatal("expected SIGNING_ORDER_VIOLATION, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeSigningOrderViolation {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeSigningOrderViolation)
	}
}

// オーナー署名後の招待者署名試行が成功することを検証
func TestValidateSigningOrder_InviteeAfterOwnerSigned_Allowed(t *testing.T) {
	env := newTestEnvelope(model.SigningOrderOwnerFirst)
	signers := []*model.Signer{
		newOwner("s-owner", 1, model.SignerStatusSigned),
		newInvitee("s-inv1", 2, model.SignerStatusPending),
	}

	if err := ValidateSigningOrder(env, "s-inv1", ownerID, signers); err != nil {
		t.Errorf("ValidateSigningOrder = %v, want nil", err)
	}
}

// 存在しない署名者のIDでSIGNER_NOT_FOUNDが返ることを検証
func TestValidateSigningOrder_UnknownSigner_NotFound(t *testing.T) {
	env := newTestEnvelope(model.SigningOrderOwnerFirst)
	signers := []*model.Signer{
		newOwner("s-owner", 1, model.SignerStatusPending),
	}

	err := ValidateSigningOrder(env, "s-missing", ownerID, signers)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeSignerNotFound {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeSignerNotFound)
	}
}

// owner_firstでオーナーのOrderが最小なら構造検証が通ることを検証
func TestValidateSigningOrderConsistency_OwnerFirst_Valid(t *testing.T) {
	signers := []*model.Signer{
		newOwner("s-owner", 1, model.SignerStatusPending),
		newInvitee("s-inv1", 2, model.SignerStatusPending),
		newInvitee("s-inv2", 3, model.SignerStatusPending),
	}

	if err := ValidateSigningOrderConsistency(model.SigningOrderOwnerFirst, signers, ownerID); err != nil {
		t.Errorf("ValidateSigningOrderConsistency = %v, want nil", err)
	}
}

// owner_firstでオーナーのOrderが最小でない場合にINVALID_ENVELOPE_STATEになることを検証
func TestValidateSigningOrderConsistency_OwnerFirst_OwnerNotFirst(t *testing.T) {
	signers := []*model.Signer{
		newInvitee("s-inv1", 1, model.SignerStatusPending),
		newOwner("s-owner", 2, model.SignerStatusPending),
	}

	err := ValidateSigningOrderConsistency(model.SigningOrderOwnerFirst, signers, ownerID)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidEnvelopeState {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeInvalidEnvelopeState)
	}
}

// invitees_firstでオーナーのOrderが最大でない場合にINVALID_ENVELOPE_STATEになることを検証
func TestValidateSigningOrderConsistency_InviteesFirst_OwnerNotLast(t *testing.T) {
	signers := []*model.Signer{
		newOwner("s-owner", 1, model.SignerStatusPending),
		newInvitee("s-inv1", 2, model.SignerStatusPending),
	}

	err := ValidateSigningOrderConsistency(model.SigningOrderInviteesFirst, signers, ownerID)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidEnvelopeState {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeInvalidEnvelopeState)
	}
}

// オーナー署名者が存在しない場合にINVALID_ENVELOPE_STATEになることを検証
func TestValidateSigningOrderConsistency_MissingOwner(t *testing.T) {
	signers := []*model.Signer{
		newInvitee("s-inv1", 1, model.SignerStatusPending),
	}

	err := ValidateSigningOrderConsistency(model.SigningOrderOwnerFirst, signers, ownerID)
	if err == nil {
		t.Fatal("expected error when owner signer is missing")
	}
}
