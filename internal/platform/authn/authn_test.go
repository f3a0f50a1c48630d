package authn

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIssueAndParseAccessToken_RoundTrips(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Minute, time.Hour)
	userID := uuid.New()
	tenantID := uuid.New()

	token, expiresAt, err := issuer.IssueAccessToken(userID, &tenantID, "MANAGER")
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	if delta := time.Until(expiresAt) - time.Minute; delta > 2*time.Second || delta < -2*time.Second {
		t.Errorf("expiresAt is not ~1 minute out: delta = %v", delta)
	}

	claims, err := issuer.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("claims.UserID = %s, want %s", claims.UserID, userID)
	}
	if claims.TenantID == nil || *claims.TenantID != tenantID {
		t.Errorf("claims.TenantID = %v, want %s", claims.TenantID, tenantID)
	}
	if claims.Role != "MANAGER" {
		t.Errorf("claims.Role = %s, want MANAGER", claims.Role)
	}
}

func TestParseAccessToken_SuperAdminHasNilTenant(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Minute, time.Hour)
	token, _, err := issuer.IssueAccessToken(uuid.New(), nil, "SUPER_ADMIN")
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	claims, err := issuer.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.TenantID != nil {
		t.Errorf("claims.TenantID = %v, want nil for a super-admin token", claims.TenantID)
	}
}

func TestParseAccessToken_RejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer("correct-secret", time.Minute, time.Hour)
	token, _, err := issuer.IssueAccessToken(uuid.New(), nil, "WAITER")
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	other := NewIssuer("wrong-secret", time.Minute, time.Hour)
	if _, err := other.ParseAccessToken(token); err == nil {
		t.Error("expected an error parsing a token signed with a different secret")
	}
}

func TestParseAccessToken_RejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("test-secret", -time.Minute, time.Hour)
	token, _, err := issuer.IssueAccessToken(uuid.New(), nil, "WAITER")
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	if _, err := issuer.ParseAccessToken(token); err == nil {
		t.Error("expected an error parsing an already-expired token")
	}
}

func TestNewRefreshToken_HashIsDeterministicFromToken(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Minute, time.Hour)
	pair, err := issuer.NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken() error = %v", err)
	}
	if got := HashRefreshToken(pair.Token); got != pair.Hash {
		t.Errorf("HashRefreshToken(pair.Token) = %s, want %s", got, pair.Hash)
	}
	if pair.Token == "" {
		t.Error("pair.Token should not be empty")
	}
}

func TestNewRefreshToken_TwoCallsProduceDistinctTokens(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Minute, time.Hour)
	a, err := issuer.NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken() error = %v", err)
	}
	b, err := issuer.NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken() error = %v", err)
	}
	if a.Token == b.Token {
		t.Error("two calls to NewRefreshToken must not produce the same token")
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple", 4)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !VerifyPassword(hash, "correct horse battery staple") {
		t.Error("VerifyPassword should accept the correct password")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Error("VerifyPassword should reject an incorrect password")
	}
}
