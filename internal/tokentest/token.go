// Package tokentest mints access tokens for tests.
package tokentest

import (
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

var signingKey = []byte("01234567890123456789012345678901") // NOSONAR

// Issue returns an HS256 token for subject expiring at exp.
func Issue(t *testing.T, subject string, exp time.Time) string {
	t.Helper()

	return IssueClaims(t, jwt.Claims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(exp.Add(-time.Hour)),
		Expiry:   jwt.NewNumericDate(exp),
	})
}

// IssueClaims signs arbitrary claims.
func IssueClaims(t *testing.T, claims any) string {
	t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)

	return token
}

// Valid returns a token valid for another hour.
func Valid(t *testing.T, subject string) string {
	t.Helper()
	return Issue(t, subject, time.Now().Add(time.Hour))
}

// Expired returns a token that expired a minute ago.
func Expired(t *testing.T, subject string) string {
	t.Helper()
	return Issue(t, subject, time.Now().Add(-time.Minute))
}
