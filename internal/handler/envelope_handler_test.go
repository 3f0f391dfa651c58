package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shomei/internal/middleware"
	"github.com/hitoshi/shomei/internal/model"
)

// --- モック定義 ---

// mockEnvelopeService はEnvelopeServiceInterfaceのモック実装。
type mockEnvelopeService struct {
	getFn     func(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, []*model.Signer, error)
	sendFn    func(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error)
	signFn    func(ctx context.Context, envelopeID, signerID string, actor model.Actor) (*model.Envelope, error)
	declineFn func(ctx context.Context, envelopeID, signerID, reason string, actor model.Actor) (*model.Envelope, error)
	cancelFn  func(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error)
}

func (m *mockEnvelopeService) Get(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, []*model.Signer, error) {
	if m.getFn != nil {
		return m.getFn(ctx, envelopeID, actor)
	}
	return nil, nil, nil
}

func (m *mockEnvelopeService) Send(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, envelopeID, actor)
	}
	return nil, nil
}

func (m *mockEnvelopeService) Sign(ctx context.Context, envelopeID, signerID string, actor model.Actor) (*model.Envelope, error) {
	if m.signFn != nil {
		return m.signFn(ctx, envelopeID, signerID, actor)
	}
	return nil, nil
}

func (m *mockEnvelopeService) Decline(ctx context.Context, envelopeID, signerID, reason string, actor model.Actor) (*model.Envelope, error) {
	if m.declineFn != nil {
		return m.declineFn(ctx, envelopeID, signerID, reason, actor)
	}
	return nil, nil
}

func (m *mockEnvelopeService) Cancel(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, envelopeID, actor)
	}
	return nil, nil
}

// mockAuditLister はAuditListerInterfaceのモック実装。
type mockAuditLister struct {
	listFn func(ctx context.Context, envelopeID string, actor model.Actor) ([]*model.AuditEvent, error)
}

func (m *mockAuditLister) ListForEnvelope(ctx context.Context, envelopeID string, actor model.Actor) ([]*model.AuditEvent, error) {
	if m.listFn != nil {
		return m.listFn(ctx, envelopeID, actor)
	}
	return nil, nil
}

// --- テストヘルパー ---

// withActor はテスト用にリクエストコンテキストに実行主体を注入するヘルパー。
func withActor(r *http.Request, actor model.Actor) *http.Request {
	ctx := middleware.ContextWithActor(r.Context(), actor)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func testActor() model.Actor {
	return model.Actor{UserID: "user-owner", Email: "owner@example.com", Role: model.RoleUser}
}

func testEnvelope(status model.EnvelopeStatus) *model.Envelope {
	return &model.Envelope{
		ID:               "env-1",
		Title:            "業務委託契約書",
		Status:           status,
		SigningOrderType: model.SigningOrderOwnerFirst,
		CreatedBy:        "user-owner",
		DocumentCount:    1,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
}

// --- GET /api/envelopes/{id} テスト ---

func TestEnvelopeHandler_GetEnvelope_Success(t *testing.T) {
	svc := &mockEnvelopeService{
		getFn: func(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, []*model.Signer, error) {
			if envelopeID != "env-1" {
				t.Errorf("envelopeID = %q, want env-1", envelopeID)
			}
			signers := []*model.Signer{
				{ID: "signer-a", EnvelopeID: "env-1", Email: "owner@example.com", Order: 1, Status: model.SignerStatusPending},
			}
			return testEnvelope(model.EnvelopeStatusReadyForSignature), signers, nil
		},
	}
	h := NewEnvelopeHandler(svc, &mockAuditLister{})

	req := httptest.NewRequest(http.MethodGet, "/api/envelopes/env-1", nil)
	req = withActor(req, testActor())
	req = withChiURLParam(req, "id", "env-1")
	w := httptest.NewRecorder()

	h.GetEnvelope(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp envelopeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "env-1" {
		t.Errorf("id = %q, want env-1", resp.ID)
	}
	if resp.Status != "ready_for_signature" {
		t.Errorf("status = %q, want ready_for_signature", resp.Status)
	}
	if len(resp.Signers) != 1 {
		t.Fatalf("signers = %d, want 1", len(resp.Signers))
	}
	if resp.Signers[0].Order != 1 {
		t.Errorf("signer order = %d, want 1", resp.Signers[0].Order)
	}
}

func TestEnvelopeHandler_GetEnvelope_NoActor(t *testing.T) {
	h := NewEnvelopeHandler(&mockEnvelopeService{}, &mockAuditLister{})

	req := httptest.NewRequest(http.MethodGet, "/api/envelopes/env-1", nil)
	req = withChiURLParam(req, "id", "env-1")
	w := httptest.NewRecorder()

	h.GetEnvelope(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestEnvelopeHandler_GetEnvelope_NotFound(t *testing.T) {
	svc := &mockEnvelopeService{
		getFn: func(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, []*model.Signer, error) {
			return nil, nil, model.NewEnvelopeNotFoundError(envelopeID)
		},
	}
	h := NewEnvelopeHandler(svc, &mockAuditLister{})

	req := httptest.NewRequest(http.MethodGet, "/api/envelopes/env-x", nil)
	req = withActor(req, testActor())
	req = withChiURLParam(req, "id", "env-x")
	w := httptest.NewRecorder()

	h.GetEnvelope(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeEnvelopeNotFound {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeEnvelopeNotFound)
	}
}

// --- POST /api/envelopes/{id}/send テスト ---

func TestEnvelopeHandler_SendEnvelope_Success(t *testing.T) {
	svc := &mockEnvelopeService{
		sendFn: func(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error) {
			return testEnvelope(model.EnvelopeStatusReadyForSignature), nil
		},
	}
	h := NewEnvelopeHandler(svc, &mockAuditLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/envelopes/env-1/send", nil)
	req = withActor(req, testActor())
	req = withChiURLParam(req, "id", "env-1")
	w := httptest.NewRecorder()

	h.SendEnvelope(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestEnvelopeHandler_SendEnvelope_InvalidState(t *testing.T) {
	svc := &mockEnvelopeService{
		sendFn: func(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error) {
			return nil, model.NewInvalidEnvelopeStateError("既に送付済みです")
		},
	}
	h := NewEnvelopeHandler(svc, &mockAuditLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/envelopes/env-1/send", nil)
	req = withActor(req, testActor())
	req = withChiURLParam(req, "id", "env-1")
	w := httptest.NewRecorder()

	h.SendEnvelope(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

// --- POST /api/envelopes/{id}/signers/{signerID}/sign テスト ---

func TestEnvelopeHandler_SignEnvelope_Success(t *testing.T) {
	svc := &mockEnvelopeService{
		signFn: func(ctx context.Context, envelopeID, signerID string, actor model.Actor) (*model.Envelope, error) {
			if signerID != "signer-a" {
				t.Errorf("signerID = %q, want signer-a", signerID)
			}
			return testEnvelope(model.EnvelopeStatusCompleted), nil
		},
	}
	h := NewEnvelopeHandler(svc, &mockAuditLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/envelopes/env-1/signers/signer-a/sign", nil)
	req = withActor(req, testActor())
	req = withChiURLParam(req, "id", "env-1")
	req = withChiURLParam(req, "signerID", "signer-a")
	w := httptest.NewRecorder()

	h.SignEnvelope(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp envelopeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "completed" {
		t.Errorf("status = %q, want completed", resp.Status)
	}
}

func TestEnvelopeHandler_SignEnvelope_OrderViolation(t *testing.T) {
	svc := &mockEnvelopeService{
		signFn: func(ctx context.Context, envelopeID, signerID string, actor model.Actor) (*model.Envelope, error) {
			return nil, model.NewSigningOrderViolationError(signerID)
		},
	}
	h := NewEnvelopeHandler(svc, &mockAuditLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/envelopes/env-1/signers/signer-b/sign", nil)
	req = withActor(req, testActor())
	req = withChiURLParam(req, "id", "env-1")
	req = withChiURLParam(req, "signerID", "signer-b")
	w := httptest.NewRecorder()

	h.SignEnvelope(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeSigningOrderViolation {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeSigningOrderViolation)
	}
}

func TestEnvelopeHandler_SignEnvelope_ConcurrencyConflict(t *testing.T) {
	svc := &mockEnvelopeService{
		signFn: func(ctx context.Context, envelopeID, signerID string, actor model.Actor) (*model.Envelope, error) {
			return nil, model.NewConcurrencyConflictError()
		},
	}
	h := NewEnvelopeHandler(svc, &mockAuditLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/envelopes/env-1/signers/signer-a/sign", nil)
	req = withActor(req, testActor())
	req = withChiURLParam(req, "id", "env-1")
	req = withChiURLParam(req, "signerID", "signer-a")
	w := httptest.NewRecorder()

	h.SignEnvelope(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeConcurrencyConflict {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeConcurrencyConflict)
	}
}

// --- POST /api/envelopes/{id}/signers/{signerID}/decline テスト ---

func TestEnvelopeHandler_DeclineEnvelope_Success(t *testing.T) {
	var gotReason string
	svc := &mockEnvelopeService{
		declineFn: func(ctx context.Context, envelopeID, signerID, reason string, actor model.Actor) (*model.Envelope, error) {
			gotReason = reason
			return testEnvelope(model.EnvelopeStatusDeclined), nil
		},
	}
	h := NewEnvelopeHandler(svc, &mockAuditLister{})

	body := bytes.NewBufferString(`{"reason":"内容に同意できません"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/envelopes/env-1/signers/signer-a/decline", body)
	req = withActor(req, testActor())
	req = withChiURLParam(req, "id", "env-1")
	req = withChiURLParam(req, "signerID", "signer-a")
	w := httptest.NewRecorder()

	h.DeclineEnvelope(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotReason != "内容に同意できません" {
		t.Errorf("reason = %q", gotReason)
	}
}

func TestEnvelopeHandler_DeclineEnvelope_InvalidBody(t *testing.T) {
	h := NewEnvelopeHandler(&mockEnvelopeService{}, &mockAuditLister{})

	body := bytes.NewBufferString(`{invalid`)
	req := httptest.NewRequest(http.MethodPost, "/api/envelopes/env-1/signers/signer-a/decline", body)
	req = withActor(req, testActor())
	req = withChiURLParam(req, "id", "env-1")
	req = withChiURLParam(req, "signerID", "signer-a")
	w := httptest.NewRecorder()

	h.DeclineEnvelope(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- POST /api/envelopes/{id}/cancel テスト ---

func TestEnvelopeHandler_CancelEnvelope_AccessDenied(t *testing.T) {
	svc := &mockEnvelopeService{
		cancelFn: func(ctx context.Context, envelopeID string, actor model.Actor) (*model.Envelope, error) {
			return nil, model.NewAccessDeniedError()
		},
	}
	h := NewEnvelopeHandler(svc, &mockAuditLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/envelopes/env-1/cancel", nil)
	req = withActor(req, model.Actor{UserID: "user-other", Role: model.RoleUser})
	req = withChiURLParam(req, "id", "env-1")
	w := httptest.NewRecorder()

	h.CancelEnvelope(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// --- GET /api/envelopes/{id}/audit テスト ---

func TestEnvelopeHandler_ListAuditEvents_Success(t *testing.T) {
	lister := &mockAuditLister{
		listFn: func(ctx context.Context, envelopeID string, actor model.Actor) ([]*model.AuditEvent, error) {
			return []*model.AuditEvent{
				{
					ID:         "audit-1",
					EnvelopeID: envelopeID,
					EventType:  model.AuditEventEnvelopeSent,
					Actor:      model.Actor{UserID: "user-owner"},
					CreatedAt:  time.Now(),
				},
			}, nil
		},
	}
	h := NewEnvelopeHandler(&mockEnvelopeService{}, lister)

	req := httptest.NewRequest(http.MethodGet, "/api/envelopes/env-1/audit", nil)
	req = withActor(req, testActor())
	req = withChiURLParam(req, "id", "env-1")
	w := httptest.NewRecorder()

	h.ListAuditEvents(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Events []auditEventResponse `json:"events"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(resp.Events))
	}
	if resp.Events[0].EventType != "envelope_sent" {
		t.Errorf("event_type = %q, want envelope_sent", resp.Events[0].EventType)
	}
}

// --- エラーマッピングテスト ---

func TestHandleServiceError_UnknownError(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, errors.New("db connection lost"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", resp["code"])
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeEnvelopeNotFound, http.StatusNotFound},
		{model.ErrCodeSignerNotFound, http.StatusNotFound},
		{model.ErrCodeAccessDenied, http.StatusForbidden},
		{model.ErrCodeSigningOrderViolation, http.StatusConflict},
		{model.ErrCodeInvalidEnvelopeState, http.StatusConflict},
		{model.ErrCodeConcurrencyConflict, http.StatusConflict},
		{model.ErrCodeTokenNotFound, http.StatusUnprocessableEntity},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code})
		if got != tt.want {
			t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
