package credential

import "context"

// Backend is a key/value persistence scope.
// Get returns serviceerr.ErrNotFound for missing keys; Delete ignores them.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

const (
	keyAccessToken  = "accessToken"
	keyRenewalToken = "renewalToken"
	keyDisplayName  = "displayName"

	// Legacy keys, mirrored into the durable scope for older readers. Never read back.
	keyLegacyToken = "token"
	keyLegacyName  = "nombre"
)

var (
	scopeKeys  = []string{keyAccessToken, keyRenewalToken, keyDisplayName}
	legacyKeys = []string{keyLegacyToken, keyLegacyName}
)
