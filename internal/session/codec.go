// Package session implements the stateless bearer-token scheme that
// carries an already-authenticated Principal across requests. Tokens are
// HS256 JWTs with a fixed 24 hour lifetime, enveloped as
// "Bearer <token>"; there is no server-side session storage.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edubridge/ltibridge/internal/principal"
)

// Lifetime is the fixed validity window of every issued token.
const Lifetime = 24 * time.Hour

const bearerPrefix = "Bearer "

// The closed set of decode failures. Callers branch with errors.Is,
// never on message text.
var (
	// ErrMissingSessionToken: no authorization value present in any
	// transport location.
	ErrMissingSessionToken = errors.New("session: missing token")
	// ErrExpiredSessionToken: the signature checks out but the expiry
	// claim is in the past.
	ErrExpiredSessionToken = errors.New("session: token expired")
	// ErrInvalidSessionToken: bad signature, malformed envelope, or a
	// required claim is absent.
	ErrInvalidSessionToken = errors.New("session: invalid token")
)

type sessionClaims struct {
	UserID                   string `json:"user_id"`
	TenantID                 string `json:"tenant_id"`
	Roles                    string `json:"roles"`
	ToolConsumerInstanceGUID string `json:"tool_consumer_instance_guid"`
	DisplayName              string `json:"display_name"`
	Email                    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs Principals into bearer authorization values and verifies
// them back. The secret is process-wide immutable configuration, safe
// for unsynchronized concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret, now: time.Now}
}

// NewCodecWithClock is NewCodec with an explicit clock, so expiry can be
// tested without wall-clock coupling.
func NewCodecWithClock(secret []byte, now func() time.Time) *Codec {
	return &Codec{secret: secret, now: now}
}

// Encode returns p serialized as a "Bearer <token>" authorization value
// expiring Lifetime from now.
func (c *Codec) Encode(p principal.Principal) (string, error) {
	now := c.now()
	claims := sessionClaims{
		UserID:                   p.UserID,
		TenantID:                 p.TenantID,
		Roles:                    p.Roles,
		ToolConsumerInstanceGUID: p.ToolConsumerInstanceGUID,
		DisplayName:              p.DisplayName,
		Email:                    p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(Lifetime)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("session: signing token: %w", err)
	}
	return bearerPrefix + token, nil
}

// Decode verifies authorization (a "Bearer <token>" value) and returns
// the Principal it carries. Failures are ErrExpiredSessionToken or
// ErrInvalidSessionToken; use DecodeRequest for the missing case.
func (c *Codec) Decode(authorization string) (principal.Principal, error) {
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return principal.Principal{}, fmt.Errorf("%w: no bearer prefix", ErrInvalidSessionToken)
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(
		strings.TrimPrefix(authorization, bearerPrefix),
		&claims,
		func(*jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return principal.Principal{}, fmt.Errorf("%w: %w", ErrExpiredSessionToken, err)
		}
		return principal.Principal{}, fmt.Errorf("%w: %w", ErrInvalidSessionToken, err)
	}

	// DisplayName can never be empty on a legitimately issued token
	// ("Anonymous" at worst), so empty means the claim is absent.
	for field, v := range map[string]string{
		"user_id":                     claims.UserID,
		"tenant_id":                   claims.TenantID,
		"tool_consumer_instance_guid": claims.ToolConsumerInstanceGUID,
		"display_name":                claims.DisplayName,
	} {
		if v == "" {
			return principal.Principal{}, fmt.Errorf("%w: missing claim %q", ErrInvalidSessionToken, field)
		}
	}

	return principal.Principal{
		UserID:                   claims.UserID,
		TenantID:                 claims.TenantID,
		Roles:                    claims.Roles,
		ToolConsumerInstanceGUID: claims.ToolConsumerInstanceGUID,
		DisplayName:              claims.DisplayName,
		Email:                    claims.Email,
	}, nil
}
