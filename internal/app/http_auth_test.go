package app

import (
	"net/http"
	"testing"
)

func TestSessionLoginReturnsContract(t *testing.T) {
	env := newTestEnv(t)

	rr := env.request(t, http.MethodPost, "/api/session/login", "", map[string]string{"name": "  Avery  "})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decode(t, rr)
	if token, _ := payload["token"].(string); token == "" {
		t.Fatal("expected token")
	}
	if refresh, _ := payload["refreshToken"].(string); refresh == "" {
		t.Fatal("expected refreshToken")
	}
	if payload["userName"] != "Avery" {
		t.Fatalf("expected userName Avery, got %v", payload["userName"])
	}

	again := decode(t, env.request(t, http.MethodPost, "/api/session/login", "", map[string]string{"name": "Avery"}))
	if again["userId"] != payload["userId"] {
		t.Fatalf("logging in twice by name should reuse the user: %v vs %v", again["userId"], payload["userId"])
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"", "garbage.token"} {
		rr := env.request(t, http.MethodGet, "/api/root", token, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %d", token, rr.Code)
		}
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	login := decode(t, env.request(t, http.MethodPost, "/api/session/login", "", map[string]string{"name": "Avery"}))
	refresh := login["refreshToken"].(string)

	rr := env.request(t, http.MethodPost, "/api/session/refresh", "", map[string]string{"refreshToken": refresh})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rotated := decode(t, rr)
	if rotated["refreshToken"] == refresh || rotated["userName"] != "Avery" {
		t.Fatalf("unexpected refresh payload: %v", rotated)
	}

	rr = env.request(t, http.MethodPost, "/api/session/refresh", "", map[string]string{"refreshToken": refresh})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("reusing a rotated refresh token should fail, got %d", rr.Code)
	}
}

func TestLogoutRevokesAccessAndRefresh(t *testing.T) {
	env := newTestEnv(t)
	login := decode(t, env.request(t, http.MethodPost, "/api/session/login", "", map[string]string{"name": "Avery"}))
	token := login["token"].(string)
	refresh := login["refreshToken"].(string)

	if rr := env.request(t, http.MethodGet, "/api/root", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 before logout, got %d", rr.Code)
	}
	if rr := env.request(t, http.MethodPost, "/api/session/logout", token, map[string]string{"refreshToken": refresh}); rr.Code != http.StatusOK {
		t.Fatalf("logout failed: %d", rr.Code)
	}
	if rr := env.request(t, http.MethodGet, "/api/root", token, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rr.Code)
	}
	if rr := env.request(t, http.MethodPost, "/api/session/refresh", "", map[string]string{"refreshToken": refresh}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected refresh to fail after logout, got %d", rr.Code)
	}

	status := decode(t, env.request(t, http.MethodGet, "/api/session", token, nil))
	if status["authenticated"] != false {
		t.Fatalf("expected unauthenticated session status, got %v", status)
	}
}

func TestPasswordSignUpAndSignIn(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"email": "sam@example.com", "password": "correct-horse", "displayName": "Sam"}

	rr := env.request(t, http.MethodPost, "/api/auth/signup", "", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	signup := decode(t, rr)

	if rr := env.request(t, http.MethodPost, "/api/auth/signup", "", body); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", rr.Code)
	}

	rr = env.request(t, http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "SAM@example.com", "password": "correct-horse"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	signin := decode(t, rr)
	if signin["userId"] != signup["userId"] || signin["userName"] != "Sam" {
		t.Fatalf("unexpected sign-in payload: %v", signin)
	}

	status := decode(t, env.request(t, http.MethodGet, "/api/session", signin["token"].(string), nil))
	if status["authenticated"] != true || status["userName"] != "Sam" {
		t.Fatalf("unexpected session status: %v", status)
	}

	rr = env.request(t, http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "sam@example.com", "password": "wrong-password"})
	if rr.Code != http.StatusUnauthorized || decode(t, rr)["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("expected 401 INVALID_CREDENTIALS, got %d", rr.Code)
	}

	rr = env.request(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "x@example.com", "password": "short", "displayName": "X"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for short password, got %d", rr.Code)
	}
}
