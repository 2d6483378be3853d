package auth

import (
	"testing"
	"time"
)

func TestJWTManagerRoundTrip(t *testing.T) {
	manager := NewJWTManager("test-secret", 10*time.Minute)

	token, expiresAt, err := manager.GenerateAccessToken("3f1c9e2a-aaaa-bbbb-cccc-000000000001", "reader@example.com", RoleUser)
	if err != nil {
		t.Fatalf("generate access token: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %s", expiresAt)
	}

	claims, err := manager.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != "3f1c9e2a-aaaa-bbbb-cccc-000000000001" {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
	if claims.Email != "reader@example.com" {
		t.Fatalf("unexpected email: %s", claims.Email)
	}
	if claims.Role != RoleUser {
		t.Fatalf("unexpected role: %s", claims.Role)
	}
}

func TestJWTManagerRejectsForeignSecret(t *testing.T) {
	issuer := NewJWTManager("issuer-secret", time.Minute)
	verifier := NewJWTManager("other-secret", time.Minute)

	token, _, err := issuer.GenerateAccessToken("3f1c9e2a-aaaa-bbbb-cccc-000000000002", "", RoleAdmin)
	if err != nil {
		t.Fatalf("generate access token: %v", err)
	}

	if _, err := verifier.ParseAccessToken(token); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestJWTManagerRejectsExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Minute)
	manager.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }

	token, _, err := manager.GenerateAccessToken("3f1c9e2a-aaaa-bbbb-cccc-000000000003", "", RoleUser)
	if err != nil {
		t.Fatalf("generate access token: %v", err)
	}

	manager.now = time.Now
	if _, err := manager.ParseAccessToken(token); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestJWTManagerDefaultsRole(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Minute)

	token, _, err := manager.GenerateAccessToken("3f1c9e2a-aaaa-bbbb-cccc-000000000004", "", "")
	if err != nil {
		t.Fatalf("generate access token: %v", err)
	}

	claims, err := manager.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != RoleUser {
		t.Fatalf("expected default role user, got %s", claims.Role)
	}
}
