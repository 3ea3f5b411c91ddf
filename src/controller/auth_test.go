package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dialog-processor/src/models"
	"dialog-processor/src/rabbitmq"
	"dialog-processor/src/schemas"

	"github.com/gin-gonic/gin"
)

type fakeSessions struct {
	created    *models.Session
	createErr  error
	refreshed  *models.Session
	refreshErr error
	attached   *models.Session
	attachErr  error
	invalidErr error

	invalidated []string
}

func (f *fakeSessions) Create(ctx context.Context, ownerID string, ttl time.Duration, metadata map[string]string) (*models.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeSessions) Refresh(ctx context.Context, rawRefresh string) (*models.Session, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}

func (f *fakeSessions) Attach(ctx context.Context, raw, ownerID string) (*models.Session, error) {
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	return f.attached, nil
}

func (f *fakeSessions) Invalidate(ctx context.Context, raw string) error {
	f.invalidated = append(f.invalidated, raw)
	return f.invalidErr
}

func newAuthRouter(sessions SessionManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	ac := NewAuthController(sessions, rabbitmq.NoopPublisher{})
	r := gin.New()
	r.POST("/auth/sessions", ac.CreateSession)
	r.POST("/auth/refresh", ac.Refresh)
	return r
}

func TestCreateSessionReturnsTokenPair(t *testing.T) {
	now := time.Now()
	sessions := &fakeSessions{created: &models.Session{
		ID:           "sess-1",
		Token:        "access",
		RefreshToken: "refresh",
		Status:       models.SessionPending,
		ExpiresAt:    now.Add(time.Hour),
	}}
	r := newAuthRouter(sessions)

	req := httptest.NewRequest(http.MethodPost, "/auth/sessions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp schemas.CreateSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Token != "access" || resp.RefreshToken != "refresh" || resp.Status != "PENDING" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateSessionRejectsBadJSON(t *testing.T) {
	r := newAuthRouter(&fakeSessions{})

	req := httptest.NewRequest(http.MethodPost, "/auth/sessions", strings.NewReader("{broken"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRefreshMapsSessionErrorTo401(t *testing.T) {
	sessions := &fakeSessions{refreshErr: models.NewSessionError("invalid or expired session", nil)}
	r := newAuthRouter(sessions)

	body := strings.NewReader(`{"refresh_token":"stale"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	var resp schemas.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if resp.Title != "Unauthorized" {
		t.Fatalf("unexpected error response: %+v", resp)
	}
}

func TestRefreshRequiresToken(t *testing.T) {
	r := newAuthRouter(&fakeSessions{})

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing refresh_token, got %d", w.Code)
	}
}
