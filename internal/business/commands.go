package business

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/portal-session/internal/config"
	"github.com/openkcm/portal-session/internal/serviceerr"
	"github.com/openkcm/portal-session/pkg/session"
)

type LoginOptions struct {
	Email    string
	Password string
	Remember bool
}

type FetchOptions struct {
	Method string
	URL    string
	Body   string
}

type statusOutput struct {
	Authenticated bool   `yaml:"authenticated"`
	DisplayName   string `yaml:"displayName,omitempty"`
	Scope         string `yaml:"scope,omitempty"`
	Expired       bool   `yaml:"expired"`
	ExpiresIn     string `yaml:"expiresIn,omitempty"`
}

// LoginMain logs in and stores the session.
func LoginMain(ctx context.Context, cfg *config.Config, opts LoginOptions, out io.Writer) error {
	sessionManager, closeFn, err := initSessionManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session manager: %w", err)
	}
	defer closeFn()

	creds, err := sessionManager.Login(ctx, opts.Email, opts.Password, opts.Remember)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "Logged in as %s (%s session)\n", creds.DisplayName, creds.Scope)

	return err
}

// LogoutMain ends the stored session.
func LogoutMain(ctx context.Context, cfg *config.Config) error {
	sessionManager, closeFn, err := initSessionManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session manager: %w", err)
	}
	defer closeFn()

	sessionManager.Logout(ctx)

	return nil
}

// RefreshMain forces a renewal of the stored session.
func RefreshMain(ctx context.Context, cfg *config.Config, out io.Writer) error {
	sessionManager, closeFn, err := initSessionManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session manager: %w", err)
	}
	defer closeFn()

	if _, ok := sessionManager.RefreshAccessToken(ctx); !ok {
		sessionManager.Logout(ctx)
		return fmt.Errorf("refreshing access token: %w", serviceerr.ErrSessionUnavailable)
	}

	return writeStatus(out, sessionManager.Status(ctx))
}

// StatusMain prints the stored session as YAML.
func StatusMain(ctx context.Context, cfg *config.Config, out io.Writer) error {
	sessionManager, closeFn, err := initSessionManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session manager: %w", err)
	}
	defer closeFn()

	return writeStatus(out, sessionManager.Status(ctx))
}

// FetchMain sends one authenticated request and copies the response body to out.
func FetchMain(ctx context.Context, cfg *config.Config, opts FetchOptions, out io.Writer) error {
	target, err := resolveURL(cfg.Portal.BaseURL, opts.URL)
	if err != nil {
		return err
	}

	sessionManager, closeFn, err := initSessionManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session manager: %w", err)
	}
	defer closeFn()

	var body io.Reader
	if opts.Body != "" {
		body = strings.NewReader(opts.Body)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	resp, err := sessionManager.FetchWithAuth(ctx, method, target, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	slogctx.Info(ctx, "Request finished", "status", resp.StatusCode, "url", target)

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("portal responded with status %d", resp.StatusCode)
	}

	return nil
}

// TokenRefresherMain keeps the stored session warm until ctx is done.
func TokenRefresherMain(ctx context.Context, cfg *config.Config) error {
	sessionManager, closeFn, err := initSessionManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session manager: %w", err)
	}
	defer closeFn()

	slogctx.Info(ctx, "Starting token refresh job")

	return startTokenRefresher(ctx, sessionManager, cfg.TokenRefresher)
}

func startTokenRefresher(ctx context.Context, sessionManager *session.Manager, cfg config.TokenRefresher) error {
	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("invalid refresh interval %s", cfg.RefreshInterval)
	}

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		slogctx.Debug(ctx, "Triggering token refresh")
		if err := sessionManager.RefreshExpiring(ctx, cfg.LeadTime); err != nil {
			slogctx.Error(ctx, "Failed to refresh token", "error", err)
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}

func writeStatus(out io.Writer, status session.Status) error {
	output := statusOutput{
		Authenticated: status.Authenticated,
		DisplayName:   status.DisplayName,
		Expired:       status.Expired,
	}
	if status.Authenticated {
		output.Scope = status.Scope.String()
		output.ExpiresIn = status.ExpiresIn.Round(time.Second).String()
	}

	data, err := yaml.Marshal(output)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	_, err = out.Write(data)

	return err
}

// resolveURL resolves a target relative to the portal base URL. Absolute
// targets are used unchanged.
func resolveURL(baseURL, target string) (string, error) {
	t, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	if t.IsAbs() {
		return target, nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing portal base URL: %w", err)
	}

	resolved := base.JoinPath(t.Path)
	resolved.RawQuery = t.RawQuery

	return resolved.String(), nil
}
