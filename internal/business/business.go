package business

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/portal-session/internal/authapi"
	"github.com/openkcm/portal-session/internal/config"
	"github.com/openkcm/portal-session/pkg/credential"
	credentialdisk "github.com/openkcm/portal-session/pkg/credential/disk"
	credentialmemory "github.com/openkcm/portal-session/pkg/credential/memory"
	credentialvalkey "github.com/openkcm/portal-session/pkg/credential/valkey"
	"github.com/openkcm/portal-session/pkg/expiry"
	"github.com/openkcm/portal-session/pkg/session"
)

var ErrUnknownStorageType = errors.New("unknown storage type")

func initSessionManager(ctx context.Context, cfg *config.Config) (_ *session.Manager, closeFn func(), _ error) {
	durable, closeFn, err := durableBackendFromConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating durable storage: %w", err)
	}

	transient, err := transientBackendFromConfig(cfg)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("creating transient storage: %w", err)
	}

	httpClient, err := loadHTTPClient(cfg)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("loading http client: %w", err)
	}

	portal, err := authapi.NewClient(cfg.Portal.BaseURL, httpClient)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("creating portal client: %w", err)
	}

	store := credential.NewStore(durable, transient)

	sessManager, err := session.NewManager(store, expiry.NewOracle(nil), portal, httpClient)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("creating session manager: %w", err)
	}

	return sessManager, closeFn, nil
}

// durableBackendFromConfig returns a nil backend for the none type.
func durableBackendFromConfig(ctx context.Context, cfg *config.Config) (credential.Backend, func(), error) {
	noop := func() {}

	switch cfg.Storage.Durable.Type {
	case config.StorageDisk:
		dir := os.ExpandEnv(cfg.Storage.Durable.Disk.Path)
		slogctx.Debug(ctx, "Using disk storage", "path", dir)

		return credentialdisk.NewBackend(dir), noop, nil
	case config.StorageValKey:
		valkeyClient, err := valkeyClientFromConfig(cfg)
		if err != nil {
			return nil, nil, err
		}

		return credentialvalkey.NewBackend(valkeyClient, cfg.Storage.Durable.ValKey.Prefix), valkeyClient.Close, nil
	case config.StorageNone:
		slogctx.Warn(ctx, "No durable storage configured, remembered sessions end with the process")
		return nil, noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStorageType, cfg.Storage.Durable.Type)
	}
}

func transientBackendFromConfig(cfg *config.Config) (credential.Backend, error) {
	switch cfg.Storage.Transient.Type {
	case config.StorageMemory:
		return credentialmemory.NewBackend(cfg.Storage.Transient.Lifetime), nil
	case config.StorageNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStorageType, cfg.Storage.Transient.Type)
	}
}

func valkeyClientFromConfig(cfg *config.Config) (valkey.Client, error) {
	valkeyOpts, err := config.MakeValKeyOptions(cfg.Storage.Durable.ValKey)
	if err != nil {
		return nil, err
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return valkeyClient, nil
}

func loadHTTPClient(cfg *config.Config) (*http.Client, error) {
	switch cfg.Portal.ClientAuth.Type {
	case config.ClientAuthMTLS:
		if cfg.Portal.ClientAuth.MTLS == nil {
			return nil, errors.New("mTLS client auth without mtls settings")
		}

		tlsConfig, err := commoncfg.LoadMTLSConfig(cfg.Portal.ClientAuth.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading mTLS config: %w", err)
		}

		return &http.Client{
			Timeout: cfg.Portal.RequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}, nil
	case config.ClientAuthInsecure, "":
		return &http.Client{
			Timeout: cfg.Portal.RequestTimeout,
		}, nil
	default:
		return nil, errors.New("unknown Client Auth type")
	}
}
