package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSignerIssueAndVerify(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, issued, err := signer.Issue("owner-1", "Avery")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if issued.JTI == "" {
		t.Fatal("expected a jti")
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Sub != "owner-1" || claims.Name != "Avery" || claims.JTI != issued.JTI {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt().Before(time.Now()) {
		t.Fatalf("expiry should be in the future: %v", claims.ExpiresAt())
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer := NewSigner("secret", time.Minute)
	signer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := signer.Issue("owner-1", "Avery")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	signer.now = time.Now
	if _, err := signer.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, _, err := signer.Issue("owner-1", "Avery")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	cases := map[string]string{
		"other secret": token,
		"no signature": strings.Split(token, ".")[0],
		"extra part":   token + ".x",
		"garbage":      "not-a-token",
	}
	for name, candidate := range cases {
		t.Run(name, func(t *testing.T) {
			verifier := signer
			if name == "other secret" {
				verifier = NewSigner("different", time.Hour)
			}
			if _, err := verifier.Verify(candidate); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestParseTokenRequiresSubject(t *testing.T) {
	secret := []byte("secret")
	token, err := IssueToken(secret, Claims{JTI: "j", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") || HashToken("abc") == HashToken("abd") {
		t.Fatal("HashToken should be deterministic and distinct")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatalf("expected hex sha256, got %q", HashToken("abc"))
	}
}
