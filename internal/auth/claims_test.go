package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken("dashboard", RoleAdmin, testSecret, "grayhub", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret, "grayhub")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "dashboard" {
		t.Errorf("Subject = %q, want dashboard", claims.Subject)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Role = %q, want admin", claims.Role)
	}
	if claims.ID == "" {
		t.Error("JTI should not be empty")
	}
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := IssueToken("ops", RoleViewer, testSecret, "grayhub", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Role: RoleAdmin,
	})
	expiredToken, _ := expired.SignedString([]byte(testSecret)) //nolint:errcheck

	noRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"},
	})
	noRoleToken, _ := noRole.SignedString([]byte(testSecret)) //nolint:errcheck

	tests := []struct {
		name   string
		token  string
		secret string
		issuer string
	}{
		{"garbage", "not-a-valid-jwt", testSecret, ""},
		{"wrong secret", valid, "wrong-secret", ""},
		{"wrong issuer", valid, testSecret, "someone-else"},
		{"expired", expiredToken, testSecret, ""},
		{"missing role", noRoleToken, testSecret, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret, tt.issuer); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestIssueToken_Validation(t *testing.T) {
	if _, err := IssueToken("a", RoleAdmin, "", "", 0); !errors.Is(err, ErrNoSecret) {
		t.Errorf("empty secret error = %v, want ErrNoSecret", err)
	}
	if _, err := IssueToken("", RoleAdmin, testSecret, "", 0); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty subject error = %v", err)
	}
	if _, err := IssueToken("a", Role("root"), testSecret, "", 0); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("bad role error = %v", err)
	}

	token, err := IssueToken("a", RoleViewer, testSecret, "", 0)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret, "")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != DefaultTTL {
		t.Errorf("default ttl = %v, want %v", got, DefaultTTL)
	}
}

func TestRole(t *testing.T) {
	if !RoleAdmin.CanMutate() || RoleViewer.CanMutate() {
		t.Error("only admin may mutate")
	}
	if Role("").Valid() {
		t.Error("empty role should be invalid")
	}
}
