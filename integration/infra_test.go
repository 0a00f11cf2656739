//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/goccy/go-yaml"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/portal-session/internal/authapi"
	"github.com/openkcm/portal-session/internal/config"
	"github.com/openkcm/portal-session/internal/dbtest/valkeytest"
	"github.com/openkcm/portal-session/internal/tokentest"
)

type closeFunc func(ctx context.Context)

type infraStat struct {
	ConfigFilePath string
	Procdir        string
	Cfg            config.Config
	ValKey         valkey.Client

	closeFuncs []closeFunc
}

func initInfra(t *testing.T, exeName string) (istat infraStat) {
	t.Helper()

	// The config is read from $PWD/config.yaml, so every process runs in its own directory.
	wd, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")
	istat.Procdir = filepath.Join(wd, exeName+"-test")
	istat.ConfigFilePath = filepath.Join(istat.Procdir, "config.yaml")

	err = os.MkdirAll(istat.Procdir, fs.ModePerm)
	require.NoError(t, err, "failed to create a dir for the process")

	err = os.WriteFile(istat.ConfigFilePath, []byte(validConfig), fs.ModePerm)
	require.NoError(t, err, "failed to write config file")

	err = commoncfg.LoadConfig(&istat.Cfg, nil, istat.Procdir)
	require.NoError(t, err, "failed to load config")

	istat.Cfg.Storage.Durable.Type = config.StorageDisk
	istat.Cfg.Storage.Durable.Disk.Path = filepath.Join(istat.Procdir, "credentials")

	return istat
}

func (istat *infraStat) PrepareValKey(t *testing.T) {
	t.Helper()

	vkClient, vkPort, vkTerminate := valkeytest.Start(t.Context())

	istat.ValKey = vkClient
	istat.closeFuncs = append(istat.closeFuncs, vkTerminate)

	istat.Cfg.Storage.Durable.Type = config.StorageValKey
	istat.Cfg.Storage.Durable.ValKey.Host = commoncfg.SourceRef{Source: "embedded", Value: net.JoinHostPort("localhost", vkPort.Port())}
	istat.Cfg.Storage.Durable.ValKey.User = commoncfg.SourceRef{Source: "embedded", Value: ""}
	istat.Cfg.Storage.Durable.ValKey.Password = commoncfg.SourceRef{Source: "embedded", Value: ""}
	istat.Cfg.Storage.Durable.ValKey.Prefix = "integration"
}

func (istat *infraStat) PreparePortal(t *testing.T, p *portalStub) {
	t.Helper()

	istat.Cfg.Portal.BaseURL = p.server.URL + "/api"
	istat.Cfg.Portal.RequestTimeout = 5 * time.Second
}

// PrepareConfig writes a config file for running the test into the ConfigFilePath.
func (istat *infraStat) PrepareConfig(t *testing.T) {
	t.Helper()

	data, err := yaml.Marshal(istat.Cfg)
	require.NoError(t, err, "failed to encode config")

	err = os.WriteFile(istat.ConfigFilePath, data, fs.ModePerm)
	require.NoError(t, err, "failed to write config")
}

func (istat *infraStat) Close(ctx context.Context) {
	os.Remove(istat.ConfigFilePath)
	os.RemoveAll(istat.Procdir)

	for _, close := range istat.closeFuncs {
		close(ctx)
	}
}

// run executes the binary in the process directory and returns its stdout.
func (istat *infraStat) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	currdir, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, filepath.Join(currdir, binary), args...)
	cmd.Dir = istat.Procdir
	cmd.Env = append(os.Environ(), "HOME="+istat.Procdir)

	stdout, err := cmd.Output()
	if exitErr, ok := err.(*exec.ExitError); ok {
		t.Logf("%v stderr: %s", args, exitErr.Stderr)
	}

	return string(stdout), err
}

// portalStub is an in-process portal backend with a protected /api/reports.
type portalStub struct {
	server *httptest.Server

	accessToken  atomic.Value
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
}

func startPortalStub(t *testing.T, accessExpiry time.Duration) *portalStub {
	t.Helper()

	p := &portalStub{}
	p.accessToken.Store(tokentest.IssueClaims(t, jwt.Claims{
		Subject: "ana",
		Expiry:  jwt.NewNumericDate(time.Now().Add(accessExpiry)),
	}))

	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/auth/login":
			_ = json.NewEncoder(w).Encode(map[string]any{"data": authapi.Tokens{
				Token:        p.accessToken.Load().(string),
				RefreshToken: "renewal-1",
				Name:         "Ana",
			}})
		case "/api/auth/refresh":
			p.refreshCalls.Add(1)
			renewed := tokentest.Valid(t, "ana")
			p.accessToken.Store(renewed)
			_ = json.NewEncoder(w).Encode(map[string]any{"data": authapi.Tokens{Token: renewed}})
		case "/api/auth/logout":
			p.logoutCalls.Add(1)
			w.WriteHeader(http.StatusNoContent)
		case "/api/reports":
			if r.Header.Get("Authorization") != "Bearer "+p.accessToken.Load().(string) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"reports":["q3"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(p.server.Close)

	return p
}
