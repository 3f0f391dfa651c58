package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/shomei/internal/model"
)

// --- モック定義 ---

// mockTokenVerifier はTokenVerifierInterfaceのモック実装。
type mockTokenVerifier struct {
	verifyFn func(tokenString string) (string, string, error)
}

func (m *mockTokenVerifier) Verify(tokenString string) (string, string, error) {
	if m.verifyFn != nil {
		return m.verifyFn(tokenString)
	}
	return "", "", errors.New("not configured")
}

// mockSignerFinder はSignerFinderInterfaceのモック実装。
type mockSignerFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Signer, error)
}

func (m *mockSignerFinder) FindByID(ctx context.Context, id string) (*model.Signer, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// jsonBody はJSON文字列からリクエストボディを作るヘルパー。
func jsonBody(s string) *bytes.Reader {
	return bytes.NewReader([]byte(s))
}

func externalSigner() *model.Signer {
	return &model.Signer{
		ID:         "signer-ext",
		EnvelopeID: "env-1",
		IsExternal: true,
		Email:      "partner@example.com",
		Order:      2,
		Status:     model.SignerStatusPending,
	}
}

// --- POST /signing/{token}/sign テスト ---

func TestSigningHandler_SignWithToken_Success(t *testing.T) {
	verifier := &mockTokenVerifier{
		verifyFn: func(tokenString string) (string, string, error) {
			if tokenString != "token-abc" {
				t.Errorf("token = %q, want token-abc", tokenString)
			}
			return "signer-ext", "env-1", nil
		},
	}
	finder := &mockSignerFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Signer, error) {
			return externalSigner(), nil
		},
	}
	var gotActor model.Actor
	svc := &mockEnvelopeService{
		signFn: func(ctx context.Context, envelopeID, signerID string, actor model.Actor) (*model.Envelope, error) {
			gotActor = actor
			if envelopeID != "env-1" || signerID != "signer-ext" {
				t.Errorf("envelopeID = %q, signerID = %q", envelopeID, signerID)
			}
			return testEnvelope(model.EnvelopeStatusCompleted), nil
		},
	}
	h := NewSigningHandler(verifier, finder, svc)

	req := httptest.NewRequest(http.MethodPost, "/signing/token-abc/sign", nil)
	req = withChiURLParam(req, "token", "token-abc")
	w := httptest.NewRecorder()

	h.SignWithToken(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	// 外部署名者の実行主体はメールアドレスで同定される
	if gotActor.Email != "partner@example.com" {
		t.Errorf("actor email = %q, want partner@example.com", gotActor.Email)
	}
	if gotActor.Role != model.RoleUser {
		t.Errorf("actor role = %q, want user", gotActor.Role)
	}
}

func TestSigningHandler_SignWithToken_InvalidToken(t *testing.T) {
	verifier := &mockTokenVerifier{
		verifyFn: func(tokenString string) (string, string, error) {
			return "", "", errors.New("token is expired")
		},
	}
	h := NewSigningHandler(verifier, &mockSignerFinder{}, &mockEnvelopeService{})

	req := httptest.NewRequest(http.MethodPost, "/signing/token-old/sign", nil)
	req = withChiURLParam(req, "token", "token-old")
	w := httptest.NewRecorder()

	h.SignWithToken(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != "INVALID_TOKEN" {
		t.Errorf("code = %q, want INVALID_TOKEN", resp["code"])
	}
}

func TestSigningHandler_SignWithToken_EnvelopeMismatch(t *testing.T) {
	verifier := &mockTokenVerifier{
		verifyFn: func(tokenString string) (string, string, error) {
			// トークンのクレームは別エンベロープを指す
			return "signer-ext", "env-other", nil
		},
	}
	finder := &mockSignerFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Signer, error) {
			return externalSigner(), nil
		},
	}
	h := NewSigningHandler(verifier, finder, &mockEnvelopeService{})

	req := httptest.NewRequest(http.MethodPost, "/signing/token-abc/sign", nil)
	req = withChiURLParam(req, "token", "token-abc")
	w := httptest.NewRecorder()

	h.SignWithToken(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestSigningHandler_SignWithToken_SignerGone(t *testing.T) {
	verifier := &mockTokenVerifier{
		verifyFn: func(tokenString string) (string, string, error) {
			return "signer-ext", "env-1", nil
		},
	}
	finder := &mockSignerFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Signer, error) {
			return nil, nil
		},
	}
	h := NewSigningHandler(verifier, finder, &mockEnvelopeService{})

	req := httptest.NewRequest(http.MethodPost, "/signing/token-abc/sign", nil)
	req = withChiURLParam(req, "token", "token-abc")
	w := httptest.NewRecorder()

	h.SignWithToken(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- POST /signing/{token}/decline テスト ---

func TestSigningHandler_DeclineWithToken_Success(t *testing.T) {
	verifier := &mockTokenVerifier{
		verifyFn: func(tokenString string) (string, string, error) {
			return "signer-ext", "env-1", nil
		},
	}
	finder := &mockSignerFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Signer, error) {
			return externalSigner(), nil
		},
	}
	var gotReason string
	svc := &mockEnvelopeService{
		declineFn: func(ctx context.Context, envelopeID, signerID, reason string, actor model.Actor) (*model.Envelope, error) {
			gotReason = reason
			return testEnvelope(model.EnvelopeStatusDeclined), nil
		},
	}
	h := NewSigningHandler(verifier, finder, svc)

	req := httptest.NewRequest(http.MethodPost, "/signing/token-abc/decline",
		jsonBody(`{"reason":"条件を再検討してください"}`))
	req = withChiURLParam(req, "token", "token-abc")
	w := httptest.NewRecorder()

	h.DeclineWithToken(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotReason != "条件を再検討してください" {
		t.Errorf("reason = %q", gotReason)
	}
}

// --- GET /signing/{token} テスト ---

func TestSigningHandler_GetSigningSession_Success(t *testing.T) {
	verifier := &mockTokenVerifier{
		verifyFn: func(tokenString string) (string, string, error) {
			return "signer-ext", "env-1", nil
		},
	}
	finder := &mockSignerFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Signer, error) {
			return externalSigner(), nil
		},
	}
	svc := &mockEnvelopeService{
		getFn: func(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, []*model.Signer, error) {
			return testEnvelope(model.EnvelopeStatusReadyForSignature), []*model.Signer{externalSigner()}, nil
		},
	}
	h := NewSigningHandler(verifier, finder, svc)

	req := httptest.NewRequest(http.MethodGet, "/signing/token-abc", nil)
	req = withChiURLParam(req, "token", "token-abc")
	w := httptest.NewRecorder()

	h.GetSigningSession(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
