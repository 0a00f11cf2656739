// Package expiry answers whether an access token is expired without asking the server.
//
// Claims are decoded locally and never verified. The decoded expiry is only
// used to schedule renewals; the server decides whether a token is valid.
package expiry

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/jonboulle/clockwork"
)

var (
	ErrMissingExpiry = errors.New("token has no exp claim")
	ErrMalformed     = errors.New("token is not a three segment compact JWS")
)

// Claims are the unverified access token claims used for scheduling.
type Claims struct {
	Subject string
	Expiry  time.Time
}

type Oracle struct {
	clock clockwork.Clock
}

// NewOracle creates an oracle reading time from clock, or the real clock when nil.
func NewOracle(clock clockwork.Clock) *Oracle {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Oracle{clock: clock}
}

// Decode extracts the claims of a compact JWS without verifying it. Only the
// payload segment is read, so the header and signature may hold anything.
func (o *Oracle) Decode(token string) (Claims, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return Claims{}, ErrMalformed
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(segments[1], "="))
	if err != nil {
		return Claims{}, fmt.Errorf("decoding payload: %w", err)
	}

	var claims jwt.Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("decoding claims: %w", err)
	}

	if claims.Expiry == nil {
		return Claims{}, ErrMissingExpiry
	}

	return Claims{
		Subject: claims.Subject,
		Expiry:  claims.Expiry.Time(),
	}, nil
}

// IsExpired reports whether token is expired. Tokens that cannot be decoded
// are always expired.
func (o *Oracle) IsExpired(token string) bool {
	expMs, ok := o.expiryMillis(token)
	if !ok {
		return true
	}

	return o.clock.Now().UnixMilli() >= expMs
}

// Remaining returns how long token stays valid, clamped at zero. It is meant
// for diagnostics and refresh scheduling, never for deciding validity.
func (o *Oracle) Remaining(token string) (time.Duration, bool) {
	expMs, ok := o.expiryMillis(token)
	if !ok {
		return 0, false
	}

	remaining := expMs - o.clock.Now().UnixMilli()

	return time.Duration(max(0, remaining)) * time.Millisecond, true
}

func (o *Oracle) expiryMillis(token string) (int64, bool) {
	claims, err := o.Decode(token)
	if err != nil {
		return 0, false
	}

	return claims.Expiry.Unix() * 1000, true
}
