package cmdutils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/portal-session/internal/config"
)

// inConfigDir runs the test from a directory holding config.yaml.
func inConfigDir(t *testing.T, content string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))

	t.Setenv("HOME", t.TempDir())
	t.Chdir(dir)
}

func restoreDefaultLogger(t *testing.T) {
	t.Helper()

	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func jobConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Application.Name = "portal-session-test"
	cfg.Logger.Format = commoncfg.JSONLoggerFormat
	cfg.Logger.Level = "error"
	cfg.Logger.Formatter.Time.Type = commoncfg.UnixTimeLogger
	cfg.Logger.Formatter.Time.Precision = "1us"

	return cfg
}

func TestCobraCommand(t *testing.T) {
	passThrough := func(ctx context.Context, fn func(context.Context, *config.Config) error, cfg *config.Config) error {
		return fn(ctx, cfg)
	}

	t.Run("Passes the loaded config and build info to the business function", func(t *testing.T) {
		inConfigDir(t, "application:\n  name: portal-session-test\nportal:\n  baseURL: https://portal.example.com/api\n")

		var got *config.Config
		cmd := CobraCommand("status", "short", "long", `{"version":"v1.2.3"}`, passThrough,
			func(_ context.Context, cfg *config.Config) error {
				got = cfg
				return nil
			})
		cmd.SetArgs([]string{})

		require.NoError(t, cmd.Execute())
		require.NotNil(t, got)
		assert.Equal(t, "portal-session-test", got.Application.Name)
		assert.Equal(t, "v1.2.3", got.Application.BuildInfo.Version)
		assert.Equal(t, "https://portal.example.com/api", got.Portal.BaseURL)
		assert.Equal(t, config.StorageDisk, got.Storage.Durable.Type)
	})

	t.Run("Wraps business errors with the command name", func(t *testing.T) {
		inConfigDir(t, "application:\n  name: portal-session-test\n")

		errFetch := errors.New("portal unreachable")
		cmd := CobraCommand("fetch", "short", "long", "{}", passThrough,
			func(context.Context, *config.Config) error { return errFetch })
		cmd.SetArgs([]string{})
		cmd.SilenceUsage = true

		err := cmd.Execute()
		require.ErrorIs(t, err, errFetch)
		assert.True(t, strings.HasPrefix(err.Error(), "running fetch: "))
	})

	t.Run("Fails before running when the config is invalid", func(t *testing.T) {
		inConfigDir(t, "portal:\n  unknownKey: true\n")

		called := false
		cmd := CobraCommand("login", "short", "long", "{}", passThrough,
			func(context.Context, *config.Config) error {
				called = true
				return nil
			})
		cmd.SetArgs([]string{})
		cmd.SilenceUsage = true

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loading config")
		assert.False(t, called)
	})

	t.Run("Fails on malformed build info", func(t *testing.T) {
		inConfigDir(t, "application:\n  name: portal-session-test\n")

		cmd := CobraCommand("logout", "short", "long", "not-json", passThrough,
			func(context.Context, *config.Config) error { return nil })
		cmd.SetArgs([]string{})
		cmd.SilenceUsage = true

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "updating the version configuration")
	})
}

func TestRunAsJob(t *testing.T) {
	t.Run("Runs fn with the configured logger as default", func(t *testing.T) {
		restoreDefaultLogger(t)

		calls := 0
		err := RunAsJob(t.Context(), func(_ context.Context, cfg *config.Config) error {
			calls++
			assert.Equal(t, "portal-session-test", cfg.Application.Name)

			_, ok := slog.Default().Handler().(*slogctx.Handler)
			assert.True(t, ok, "default logger was not initialised")

			return nil
		}, jobConfig())

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("Keeps the business error reachable", func(t *testing.T) {
		restoreDefaultLogger(t)

		errLogin := errors.New("wrong password")
		err := RunAsJob(t.Context(), func(context.Context, *config.Config) error {
			return errLogin
		}, jobConfig())

		require.ErrorIs(t, err, errLogin)
		assert.Contains(t, err.Error(), "Failed to start the main business application")
	})

	t.Run("Does not run fn when the logger cannot be initialised", func(t *testing.T) {
		restoreDefaultLogger(t)

		cfg := jobConfig()
		cfg.Logger.Formatter.Time.Precision = "every now and then"

		called := false
		err := RunAsJob(t.Context(), func(context.Context, *config.Config) error {
			called = true
			return nil
		}, cfg)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "Failed to initialise the logger")
		assert.False(t, called)
	})
}

func TestStatusListener(t *testing.T) {
	var buf bytes.Buffer
	ctx := slogctx.NewCtx(t.Context(), slog.New(slog.NewJSONHandler(&buf, nil)))

	statusListener(ctx, health.State{
		Status: health.StatusDown,
		CheckState: map[string]health.CheckState{
			"portal": {Status: health.StatusUp},
			"valkey": {Status: health.StatusDown, Result: errors.New("connection refused")},
		},
	})

	var records []map[string]any
	for line := range strings.Lines(buf.String()) {
		record := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		records = append(records, record)
	}
	require.Len(t, records, 2)

	assert.Equal(t, "WARN", records[0]["level"])
	assert.Equal(t, "Readiness check failing", records[0]["msg"])
	assert.Equal(t, "valkey", records[0]["check"])
	assert.Equal(t, "connection refused", records[0]["error"])

	assert.Equal(t, "INFO", records[1]["level"])
	assert.Equal(t, "Readiness status changed", records[1]["msg"])
	assert.Equal(t, "down", records[1]["status"])
	assert.Equal(t, "up", records[1]["portal"])
	assert.Equal(t, "down", records[1]["valkey"])
}

func ExampleCobraCommand() {
	cmd := CobraCommand(
		"token-refresher",
		"Portal Session Token Refresh service",
		"Renews the stored access token before it expires",
		"{}",
		RunAsService,
		func(context.Context, *config.Config) error { return nil },
	)

	fmt.Printf("Command use: %s\n", cmd.Use)
	// Output: Command use: token-refresher
}
