package security

import (
	"testing"
	"time"
)

func TestSignAndParseAdminToken(t *testing.T) {
	token, err := SignAdminToken("test-secret", time.Hour, 42, "root")
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	claims, err := ParseAdminToken("test-secret", token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.AdminID != 42 || claims.Username != "root" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseAdminTokenRejectsWrongSecret(t *testing.T) {
	token, err := SignAdminToken("secret-a", time.Hour, 1, "root")
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := ParseAdminToken("secret-b", token); err == nil {
		t.Fatal("expected validation failure for wrong secret")
	}
}

func TestParseAdminTokenRejectsExpired(t *testing.T) {
	token, err := SignAdminToken("test-secret", -time.Minute, 1, "root")
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := ParseAdminToken("test-secret", token); err == nil {
		t.Fatal("expected validation failure for expired token")
	}
}

func TestSignAdminTokenRequiresSecret(t *testing.T) {
	if _, err := SignAdminToken("  ", time.Hour, 1, "root"); err == nil {
		t.Fatal("expected an error for blank secret")
	}
}
