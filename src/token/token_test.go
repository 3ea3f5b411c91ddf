package token

import (
	"errors"
	"testing"
	"time"

	"dialog-processor/src/models"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	codec := NewCodec("secret")

	raw, err := codec.Issue(Access, "sess-1", "owner-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := codec.Verify(raw, Access)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.SessionID != "sess-1" || claims.OwnerID != "owner-1" || claims.Kind != Access {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt.Before(time.Now().Add(50 * time.Minute)) {
		t.Fatalf("expiry too early: %v", claims.ExpiresAt)
	}
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	codec := NewCodec("secret")

	raw, err := codec.Issue(Refresh, "sess-1", "", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	var authErr *models.AuthenticationError
	if _, err := codec.Verify(raw, Access); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	if _, err := codec.Verify(raw, Refresh); err != nil {
		t.Fatalf("matching kind should verify: %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	raw, err := NewCodec("secret-a").Issue(Access, "sess-1", "", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	var authErr *models.AuthenticationError
	if _, err := NewCodec("secret-b").Verify(raw, Access); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
}

func TestVerifyExpiredTokenReturnsClaims(t *testing.T) {
	codec := NewCodec("secret")

	raw, err := codec.Issue(Access, "sess-1", "owner-1", -time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// A signed-but-expired token keeps its claims readable so the caller
	// can evict the session it names.
	claims, err := codec.Verify(raw, Access)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if claims == nil || claims.SessionID != "sess-1" || claims.OwnerID != "owner-1" {
		t.Fatalf("expected claims alongside expiry, got %+v", claims)
	}
}

func TestVerifyExpiredTokenOfWrongKindIsRejected(t *testing.T) {
	codec := NewCodec("secret")

	raw, err := codec.Issue(Refresh, "sess-1", "", -time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	var authErr *models.AuthenticationError
	if _, err := codec.Verify(raw, Access); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
}

func TestVerifyExpiredTokenWithWrongSecretIsRejected(t *testing.T) {
	raw, err := NewCodec("secret-a").Issue(Access, "sess-1", "", -time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	var authErr *models.AuthenticationError
	if _, err := NewCodec("secret-b").Verify(raw, Access); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	codec := NewCodec("secret")

	var authErr *models.AuthenticationError
	for _, raw := range []string{"", "garbage", "a.b.c"} {
		if _, err := codec.Verify(raw, Access); !errors.As(err, &authErr) {
			t.Fatalf("expected AuthenticationError for %q, got %v", raw, err)
		}
	}
}
