package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// newTestTokenService creates a TokenService with a fixed secret and the
// default lifetimes.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", 0, 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", 0, 0)
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTLs(t *testing.T) {
	ts := newTestTokenService(t)

	if ts.AccessTTL() != DefaultAccessTTL {
		t.Errorf("AccessTTL() = %v, want %v", ts.AccessTTL(), DefaultAccessTTL)
	}
	if ts.refreshTTL != DefaultRefreshTTL {
		t.Errorf("refreshTTL = %v, want %v", ts.refreshTTL, DefaultRefreshTTL)
	}
}

// =========================================================================
// ISSUE TESTS
// =========================================================================

func TestIssue_ReturnsDistinctPair(t *testing.T) {
	ts := newTestTokenService(t)

	pair, err := ts.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("Issue() returned an empty token")
	}
	if pair.Access == pair.Refresh {
		t.Error("access and refresh tokens must differ")
	}
	if strings.Count(pair.Access, ".") != 2 {
		t.Errorf("access token doesn't look like a JWT: %q", pair.Access)
	}
}

func TestIssue_TokensAreUniquePerCall(t *testing.T) {
	ts := newTestTokenService(t)

	// same subject and same second: only the jti tells them apart
	p1, _ := ts.Issue("user-123")
	p2, _ := ts.Issue("user-123")

	if p1.Access == p2.Access {
		t.Error("two Issue() calls produced identical access tokens")
	}
}

// =========================================================================
// VALIDATE TESTS
// =========================================================================

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	pair, err := ts.Issue("user-abc-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := ts.ValidateAccess(pair.Access)
	if err != nil {
		t.Fatalf("ValidateAccess() error = %v", err)
	}
	if got != "user-abc-123" {
		t.Errorf("ValidateAccess() userID = %q, want %q", got, "user-abc-123")
	}

	got, err = ts.ValidateRefresh(pair.Refresh)
	if err != nil {
		t.Fatalf("ValidateRefresh() error = %v", err)
	}
	if got != "user-abc-123" {
		t.Errorf("ValidateRefresh() userID = %q, want %q", got, "user-abc-123")
	}
}

func TestValidate_WrongTokenType(t *testing.T) {
	ts := newTestTokenService(t)
	pair, _ := ts.Issue("user-123")

	if _, err := ts.ValidateAccess(pair.Refresh); !errors.Is(err, ErrTokenWrongType) {
		t.Errorf("ValidateAccess(refresh) error = %v, want ErrTokenWrongType", err)
	}
	if _, err := ts.ValidateRefresh(pair.Access); !errors.Is(err, ErrTokenWrongType) {
		t.Errorf("ValidateRefresh(access) error = %v, want ErrTokenWrongType", err)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.sign("user-123", TokenTypeAccess, -1*time.Second)
	if err != nil {
		t.Fatalf("sign() error = %v", err)
	}

	_, err = ts.ValidateAccess(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("ValidateAccess() error = %v, want ErrTokenExpired", err)
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)
	pair, _ := ts.Issue("user-123")

	tampered := pair.Access[:len(pair.Access)-3] + "xxx"

	_, err := ts.ValidateAccess(tampered)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("ValidateAccess() error = %v, want ErrTokenInvalid", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", 0, 0)
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", 0, 0)

	pair, _ := ts1.Issue("user-123")

	if _, err := ts2.ValidateAccess(pair.Access); err == nil {
		t.Fatal("ValidateAccess() should fail when using a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, in := range []string{"", "not.a.jwt.token", "abc"} {
		if _, err := ts.ValidateAccess(in); err == nil {
			t.Errorf("ValidateAccess(%q) should fail", in)
		}
	}
}
