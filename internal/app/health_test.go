package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"prioritylist/api/internal/store"
)

type fakeUsers struct {
	pingFn func(context.Context) error
}

func (f *fakeUsers) EnsureUserByName(context.Context, string) (store.User, error) {
	return store.User{}, errors.New("not implemented")
}

func (f *fakeUsers) GetUserByID(context.Context, string) (store.User, error) {
	return store.User{}, store.ErrNotFound
}

func (f *fakeUsers) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func newHealthServer(pingFn func(context.Context) error) http.Handler {
	svc := New("secret", time.Hour, time.Hour, Deps{Users: &fakeUsers{pingFn: pingFn}})
	return NewHTTPServer(svc, "*", nil).Handler()
}

func TestHealthEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newHealthServer(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	rr := httptest.NewRecorder()
	newHealthServer(func(context.Context) error { return nil }).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["status"] != "ready" {
		t.Errorf("expected status=ready, got %v", response["status"])
	}
}

func TestReadyEndpoint_DatabaseDown(t *testing.T) {
	rr := httptest.NewRecorder()
	newHealthServer(func(context.Context) error { return errors.New("connection refused") }).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	checks, _ := response["checks"].(map[string]any)
	db, _ := checks["database"].(map[string]any)
	if db["status"] != "error" || db["error"] != "connection refused" {
		t.Errorf("unexpected database check: %v", db)
	}
}

func TestPreflightAndCORS(t *testing.T) {
	svc := New("secret", time.Hour, time.Hour, Deps{Users: &fakeUsers{}})
	handler := NewHTTPServer(svc, "https://app.example.com", nil).Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/nodes", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}
