package credentialmock

import (
	"context"
	"maps"
	"sync"

	"github.com/openkcm/portal-session/internal/serviceerr"
	"github.com/openkcm/portal-session/pkg/credential"
)

type BackendOption func(*Backend)

// Backend is an in-memory credential.Backend with injectable errors.
type Backend struct {
	mu     sync.Mutex
	values map[string]string

	getErr, setErr, deleteErr error
}

func WithValue(key, value string) BackendOption {
	return func(b *Backend) { b.values[key] = value }
}
func WithGetError(err error) BackendOption {
	return func(b *Backend) { b.getErr = err }
}
func WithSetError(err error) BackendOption {
	return func(b *Backend) { b.setErr = err }
}
func WithDeleteError(err error) BackendOption {
	return func(b *Backend) { b.deleteErr = err }
}

var _ = credential.Backend(&Backend{})

func NewBackend(opts ...BackendOption) *Backend {
	b := &Backend{
		values: make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *Backend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.getErr != nil {
		return "", b.getErr
	}
	if v, ok := b.values[key]; ok {
		return v, nil
	}
	return "", serviceerr.ErrNotFound
}

func (b *Backend) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.setErr != nil {
		return b.setErr
	}
	b.values[key] = value
	return nil
}

func (b *Backend) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.deleteErr != nil {
		return b.deleteErr
	}
	for _, key := range keys {
		delete(b.values, key)
	}
	return nil
}

// Values returns a copy of everything stored.
func (b *Backend) Values() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return maps.Clone(b.values)
}
