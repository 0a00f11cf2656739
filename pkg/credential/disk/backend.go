// Package credentialdisk is a durable credential scope kept as flat files in a directory.
package credentialdisk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/peterbourgon/diskv/v3"

	"github.com/openkcm/portal-session/internal/serviceerr"
	"github.com/openkcm/portal-session/pkg/credential"
)

const (
	// cacheSizeMaxBytes bounds the diskv read cache
	cacheSizeMaxBytes = 4096

	filePerm = 0o600
	pathPerm = 0o700
)

type Backend struct {
	dv *diskv.Diskv
}

var _ = credential.Backend(&Backend{})

func NewBackend(dir string) *Backend {
	// All keys live directly in the base directory.
	flatTransform := func(string) []string { return []string{} }

	return &Backend{
		dv: diskv.New(diskv.Options{
			BasePath:     dir,
			Transform:    flatTransform,
			CacheSizeMax: cacheSizeMaxBytes,
			FilePerm:     filePerm,
			PathPerm:     pathPerm,
		}),
	}
}

func (b *Backend) Get(_ context.Context, key string) (string, error) {
	v, err := b.dv.Read(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", serviceerr.ErrNotFound
		}

		return "", fmt.Errorf("reading %s: %w", key, err)
	}

	return string(v), nil
}

func (b *Backend) Set(_ context.Context, key, value string) error {
	if err := b.dv.Write(key, []byte(value)); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}

	return nil
}

func (b *Backend) Delete(_ context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := b.dv.Erase(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("erasing %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}
