// Package session keeps a portal session usable: it hands out access tokens,
// renews them, authenticates outbound requests and tears the session down.
package session

import (
	"context"
	"io"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/portal-session/internal/authapi"
	"github.com/openkcm/portal-session/internal/serviceerr"
	"github.com/openkcm/portal-session/pkg/credential"
	"github.com/openkcm/portal-session/pkg/expiry"
	"github.com/openkcm/portal-session/pkg/renewal"
)

// Portal is the backend the manager authenticates against.
type Portal interface {
	renewal.Renewer
	Revoker
	Login(ctx context.Context, email, password string) (authapi.Tokens, error)
}

// Status is a snapshot of the local session.
type Status struct {
	Authenticated bool
	DisplayName   string
	Scope         credential.Scope
	Expired       bool
	// ExpiresIn is zero when the expiry is unknown or already passed
	ExpiresIn time.Duration
}

type Manager struct {
	store      *credential.Store
	oracle     *expiry.Oracle
	portal     Portal
	events     *Broadcaster
	renewals   *renewal.Coordinator
	terminator *Terminator
	executor   *Executor
}

// NewManager wires a manager on top of store. httpClient sends the
// authenticated requests issued through Do and FetchWithAuth.
func NewManager(store *credential.Store, oracle *expiry.Oracle, portal Portal, httpClient *http.Client) (*Manager, error) {
	renewals, err := renewal.NewCoordinator(store, portal)
	if err != nil {
		return nil, err
	}

	events := NewBroadcaster()
	terminator := NewTerminator(store, portal, events)

	executor, err := NewExecutor(store, oracle, renewals, terminator, httpClient)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:      store,
		oracle:     oracle,
		portal:     portal,
		events:     events,
		renewals:   renewals,
		terminator: terminator,
		executor:   executor,
	}, nil
}

// Login authenticates with the portal and stores the returned pair. With
// remember set the pair outlives the process when a durable backend exists.
// The returned scope is the one actually holding the pair.
func (m *Manager) Login(ctx context.Context, email, password string, remember bool) (credential.Credentials, error) {
	tokens, err := m.portal.Login(ctx, email, password)
	if err != nil {
		return credential.Credentials{}, err
	}

	creds := credential.Credentials{
		Pair: credential.Pair{
			AccessToken:  tokens.Token,
			RenewalToken: tokens.RefreshToken,
		},
		DisplayName: tokens.Name,
	}

	scope, ok := m.store.Write(ctx, creds, remember)
	if !ok {
		return credential.Credentials{}, serviceerr.ErrNotPersisted
	}
	creds.Scope = scope

	m.events.Publish(ctx, Event{Authenticated: true, DisplayName: creds.DisplayName})

	slogctx.Info(ctx, "Logged in", "scope", creds.Scope.String())

	return creds, nil
}

// GetAccessToken returns the cached access token, expired or not.
func (m *Manager) GetAccessToken(ctx context.Context) (string, bool) {
	creds, ok := m.store.Read(ctx)
	if !ok {
		return "", false
	}

	return creds.AccessToken, true
}

func (m *Manager) IsTokenExpired(token string) bool {
	return m.oracle.IsExpired(token)
}

// RefreshAccessToken forces a renewal. A failed renewal clears the session.
func (m *Manager) RefreshAccessToken(ctx context.Context) (string, bool) {
	return m.renewals.Renew(ctx)
}

// RefreshExpiring renews the access token when it expires within leadTime.
func (m *Manager) RefreshExpiring(ctx context.Context, leadTime time.Duration) error {
	creds, ok := m.store.Read(ctx)
	if !ok {
		return serviceerr.ErrSessionUnavailable
	}

	if remaining, ok := m.oracle.Remaining(creds.AccessToken); ok && remaining > leadTime {
		slogctx.Debug(ctx, "Access token still fresh", "expiresIn", remaining.String())
		return nil
	}

	if _, ok := m.renewals.Renew(ctx); !ok {
		m.terminator.Terminate(ctx)
		return serviceerr.ErrSessionUnavailable
	}

	return nil
}

func (m *Manager) Logout(ctx context.Context) {
	m.terminator.Terminate(ctx)
}

func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	return m.executor.Do(req)
}

func (m *Manager) FetchWithAuth(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	return m.executor.Fetch(ctx, method, url, body)
}

// Subscribe registers a listener for authentication changes.
func (m *Manager) Subscribe(listener Listener) func() {
	return m.events.Subscribe(listener)
}

func (m *Manager) Status(ctx context.Context) Status {
	creds, ok := m.store.Read(ctx)
	if !ok {
		return Status{}
	}

	remaining, _ := m.oracle.Remaining(creds.AccessToken)

	return Status{
		Authenticated: true,
		DisplayName:   creds.DisplayName,
		Scope:         creds.Scope,
		Expired:       m.oracle.IsExpired(creds.AccessToken),
		ExpiresIn:     remaining,
	}
}
