package session_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openkcm/portal-session/internal/authapi"
	"github.com/openkcm/portal-session/internal/tokentest"
	"github.com/openkcm/portal-session/pkg/credential"
	credentialmock "github.com/openkcm/portal-session/pkg/credential/mock"
	"github.com/openkcm/portal-session/pkg/expiry"
	"github.com/openkcm/portal-session/pkg/session"
)

// fakePortal serves the auth endpoints plus a protected /resource.
type fakePortal struct {
	server *httptest.Server

	renewedToken string
	refreshFails bool
	logoutStatus int
	resource     http.HandlerFunc

	refreshCalls  atomic.Int32
	logoutCalls   atomic.Int32
	resourceCalls atomic.Int32

	mu      sync.Mutex
	bearers []string
	bodies  []string
}

func startFakePortal(t *testing.T, resource http.HandlerFunc) *fakePortal {
	t.Helper()

	p := &fakePortal{
		renewedToken: tokentest.Valid(t, "renewed"),
		logoutStatus: http.StatusNoContent,
		resource:     resource,
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.serveHTTP))
	t.Cleanup(p.server.Close)

	return p
}

func (p *fakePortal) serveHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/auth/login":
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": authapi.Tokens{
			Token:        p.renewedToken,
			RefreshToken: "renewal-login",
			Name:         "Ana",
		}})
	case "/auth/refresh":
		p.refreshCalls.Add(1)
		if p.refreshFails {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"refresh token expired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": authapi.Tokens{
			Token:        p.renewedToken,
			RefreshToken: "renewal-2",
		}})
	case "/auth/logout":
		p.logoutCalls.Add(1)
		w.WriteHeader(p.logoutStatus)
	case "/resource":
		p.resourceCalls.Add(1)
		body, _ := io.ReadAll(r.Body)

		p.mu.Lock()
		p.bearers = append(p.bearers, r.Header.Get("Authorization"))
		p.bodies = append(p.bodies, string(body))
		p.mu.Unlock()

		p.resource(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *fakePortal) resourceURL() string {
	return p.server.URL + "/resource"
}

func (p *fakePortal) seenBearers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.bearers...)
}

func (p *fakePortal) seenBodies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.bodies...)
}

// newManager returns a manager whose store holds creds, if complete.
func newManager(t *testing.T, p *fakePortal, creds credential.Credentials) (*session.Manager, *credential.Store) {
	t.Helper()

	store := credential.NewStore(credentialmock.NewBackend(), credentialmock.NewBackend())
	if creds.Complete() {
		store.Write(t.Context(), creds, creds.Scope == credential.ScopeDurable)
	}

	client, err := authapi.NewClient(p.server.URL, p.server.Client())
	require.NoError(t, err)

	m, err := session.NewManager(store, expiry.NewOracle(nil), client, p.server.Client())
	require.NoError(t, err)

	return m, store
}

func durableSession(accessToken string) credential.Credentials {
	return credential.Credentials{
		Pair:        credential.Pair{AccessToken: accessToken, RenewalToken: "renewal-1"},
		DisplayName: "Ana",
		Scope:       credential.ScopeDurable,
	}
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// unauthorizedOnce rejects the first request and answers later ones with 200.
func unauthorizedOnce() http.HandlerFunc {
	var calls atomic.Int32
	return func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
}

type recordedEvents struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *recordedEvents) listener(_ context.Context, e session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordedEvents) all() []session.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Event(nil), r.events...)
}
