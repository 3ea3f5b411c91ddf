// Package token issues and verifies the signed, time-bound token pairs that
// identify sessions. It is a pure codec: no shared state, no storage access.
package token

import (
	"errors"
	"fmt"
	"time"

	"dialog-processor/src/models"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired reports a token whose signature checked out but whose
// expiry has passed. Verify returns the decoded claims alongside it so the
// caller can evict the session the token names.
var ErrTokenExpired = errors.New("token expired")

// Kind distinguishes the two token roles in a session pair.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

// Claims is the decoded payload of a verified token.
type Claims struct {
	SessionID string
	Kind      Kind
	OwnerID   string
	ExpiresAt time.Time
}

type jwtClaims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens with a shared HMAC secret.
type Codec struct {
	secret []byte
}

// NewCodec creates a codec for the given shared secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Issue creates a signed token of the given kind carrying the session ID and
// optional owner identity.
func (c *Codec) Issue(kind Kind, sessionID, ownerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		Kind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and kind of a token before any storage
// lookup happens. A signed-but-expired token returns its claims together with
// ErrTokenExpired; every other failure is an AuthenticationError.
func (c *Codec) Verify(raw string, kind Kind) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		// Expiry is validated only after the signature held, so the
		// decoded claims are trustworthy.
		if errors.Is(err, jwt.ErrTokenExpired) && parsed != nil {
			if claims, ok := parsed.Claims.(*jwtClaims); ok &&
				claims.Kind == string(kind) && claims.ID != "" {
				return claimsFrom(claims), ErrTokenExpired
			}
		}
		return nil, models.NewAuthenticationError("invalid token", err)
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return nil, models.NewAuthenticationError("invalid token claims", nil)
	}
	if claims.Kind != string(kind) {
		return nil, models.NewAuthenticationError(
			fmt.Sprintf("invalid token type: expected %s", kind), nil)
	}
	if claims.ID == "" {
		return nil, models.NewAuthenticationError("token carries no session id", nil)
	}
	return claimsFrom(claims), nil
}

func claimsFrom(claims *jwtClaims) *Claims {
	out := &Claims{
		SessionID: claims.ID,
		Kind:      Kind(claims.Kind),
		OwnerID:   claims.Subject,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out
}
