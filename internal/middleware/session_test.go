package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/shomei/internal/model"
)

// --- モック ---

type mockSessionFinder struct {
	sessions map[string]*model.Session
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.sessions[id], nil
}

type mockUserFinder struct {
	users map[string]*model.User
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

func validFinders() (*mockSessionFinder, *mockUserFinder) {
	sessions := &mockSessionFinder{sessions: map[string]*model.Session{
		"session-1": {ID: "session-1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	users := &mockUserFinder{users: map[string]*model.User{
		"user-1": {ID: "user-1", Email: "owner@example.com", Role: model.RoleUser},
	}}
	return sessions, users
}

// 有効なBearerトークンで実行主体がコンテキストに注入されることを検証
func TestSessionMiddleware_ValidToken(t *testing.T) {
	sessions, users := validFinders()

	var gotActor model.Actor
	handler := NewSessionMiddleware(sessions, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := ActorFromContext(r.Context())
		if err != nil {
			t.Errorf("ActorFromContext failed: %v", err)
		}
		gotActor = actor
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/envelopes/env-1", nil)
	req.Header.Set("Authorization", "Bearer session-1")
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "203.0.113.9:51234"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotActor.UserID != "user-1" || gotActor.Email != "owner@example.com" {
		t.Errorf("actor = %+v", gotActor)
	}
	if gotActor.IP != "203.0.113.9" {
		t.Errorf("actor.IP = %q, want 203.0.113.9", gotActor.IP)
	}
	if gotActor.UserAgent != "test-agent" {
		t.Errorf("actor.UserAgent = %q", gotActor.UserAgent)
	}
}

// Authorizationヘッダーのないリクエストが401になることを検証
func TestSessionMiddleware_MissingHeader(t *testing.T) {
	sessions, users := validFinders()
	handler := NewSessionMiddleware(sessions, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/envelopes/env-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// 不明なセッションIDが401になることを検証
func TestSessionMiddleware_UnknownSession(t *testing.T) {
	sessions, users := validFinders()
	handler := NewSessionMiddleware(sessions, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/envelopes/env-1", nil)
	req.Header.Set("Authorization", "Bearer session-unknown")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// Bearer以外のスキームが401になることを検証
func TestSessionMiddleware_WrongScheme(t *testing.T) {
	sessions, users := validFinders()
	handler := NewSessionMiddleware(sessions, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/envelopes/env-1", nil)
	req.Header.Set("Authorization", "Basic c2Vzc2lvbi0x")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// ContextWithActorとActorFromContextの往復を検証
func TestActorContext_RoundTrip(t *testing.T) {
	actor := model.Actor{UserID: "user-1", Role: model.RoleAdmin}
	ctx := ContextWithActor(context.Background(), actor)

	got, err := ActorFromContext(ctx)
	if err != nil {
		t.Fatalf("ActorFromContext failed: %v", err)
	}
	if got != actor {
		t.Errorf("actor = %+v, want %+v", got, actor)
	}

	if _, err := ActorFromContext(context.Background()); err == nil {
		t.Error("empty context should not contain an actor")
	}
}
