// Package credentialvalkey is a durable credential scope kept in ValKey.
package credentialvalkey

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/portal-session/internal/serviceerr"
	"github.com/openkcm/portal-session/pkg/credential"
)

var (
	ErrGetKey    = errors.New("getting credential key from valkey")
	ErrSetKey    = errors.New("setting credential key into valkey")
	ErrDeleteKey = errors.New("deleting credential keys from valkey")
)

type Backend struct {
	valkey valkey.Client
	prefix string
}

var _ = credential.Backend(&Backend{})

func NewBackend(valkeyClient valkey.Client, prefix string) *Backend {
	prefix = strings.TrimSuffix(prefix, ":")
	return &Backend{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	value, err := b.valkey.Do(ctx, b.valkey.B().Get().Key(b.key(key)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", serviceerr.ErrNotFound
		}

		return "", errors.Join(ErrGetKey, err)
	}

	return value, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	if err := b.valkey.Do(ctx, b.valkey.B().Set().Key(b.key(key)).Value(value).Build()).Error(); err != nil {
		return errors.Join(ErrSetKey, err)
	}

	return nil
}

func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	fullKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		fullKeys = append(fullKeys, b.key(key))
	}

	if err := b.valkey.Do(ctx, b.valkey.B().Del().Key(fullKeys...).Build()).Error(); err != nil {
		return errors.Join(ErrDeleteKey, err)
	}

	return nil
}

func (b *Backend) key(name string) string {
	if b.prefix == "" {
		return name
	}

	return fmt.Sprintf("%s:%s", b.prefix, name)
}
