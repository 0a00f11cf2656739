// Package credentialmemory is the transient credential scope: an in-process
// cache whose entries vanish with the process or after the configured lifetime.
package credentialmemory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/portal-session/internal/serviceerr"
	"github.com/openkcm/portal-session/pkg/credential"
)

type Backend struct {
	cache *cache.Cache
}

var _ = credential.Backend(&Backend{})

// NewBackend creates a transient backend. A zero lifetime keeps entries until
// the process exits.
func NewBackend(lifetime time.Duration) *Backend {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if lifetime > 0 {
		expiration = lifetime
		cleanup = lifetime
	}

	return &Backend{
		cache: cache.New(expiration, cleanup),
	}
}

func (b *Backend) Get(_ context.Context, key string) (string, error) {
	v, ok := b.cache.Get(key)
	if !ok {
		return "", serviceerr.ErrNotFound
	}

	//nolint:forcetypeassert
	return v.(string), nil
}

func (b *Backend) Set(_ context.Context, key, value string) error {
	b.cache.Set(key, value, cache.DefaultExpiration)
	return nil
}

func (b *Backend) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		b.cache.Delete(key)
	}
	return nil
}
