package credential

import (
	"context"
	"errors"
	"slices"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/portal-session/internal/serviceerr"
)

// Store owns the durable and transient scopes. It is the only component
// reading or writing them, so the pair invariants are enforced here.
//
// A nil backend is an always-empty scope. Durable writes fall back to the
// transient scope when no durable backend is configured. Backend errors are
// logged and degrade to "absent", no operation fails.
type Store struct {
	mu        sync.Mutex
	durable   Backend
	transient Backend
}

func NewStore(durable, transient Backend) *Store {
	return &Store{
		durable:   durable,
		transient: transient,
	}
}

// Read returns the stored credentials, durable scope first.
// A scope holding only one half of a pair is treated as empty.
func (s *Store) Read(ctx context.Context) (Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(ctx)
}

// Write stores the pair in the durable or transient scope and empties the other one.
// The access token and display name are mirrored into the legacy durable keys.
// It returns the scope now holding the pair, or false when nothing was stored.
func (s *Store) Write(ctx context.Context, creds Credentials, durable bool) (Scope, bool) {
	if !creds.Complete() {
		slogctx.Warn(ctx, "Refusing to store an incomplete credential pair")
		return ScopeNone, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(ctx, creds, durable)
}

// Clear empties both scopes and the legacy keys.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear(ctx)
}

// Rotate replaces the stored pair after a renewal. It only commits while the
// store still holds previousRenewalToken; the new pair goes to the scope that
// holds the current one. An empty next.RenewalToken keeps the previous one.
func (s *Store) Rotate(ctx context.Context, previousRenewalToken string, next Pair) (Credentials, bool) {
	if next.AccessToken == "" {
		return Credentials{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.read(ctx)
	if !ok || current.RenewalToken != previousRenewalToken {
		return Credentials{}, false
	}

	if next.RenewalToken == "" {
		next.RenewalToken = previousRenewalToken
	}

	updated := Credentials{
		Pair:        next,
		DisplayName: current.DisplayName,
	}
	updated.Scope, _ = s.write(ctx, updated, current.Scope == ScopeDurable)

	return updated, true
}

// Discard clears the store after a failed renewal of renewalToken. A session
// that was replaced in the meantime is left alone and false is returned.
func (s *Store) Discard(ctx context.Context, renewalToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.read(ctx)
	if ok && current.RenewalToken != renewalToken {
		return false
	}

	s.clear(ctx)

	return true
}

func (s *Store) read(ctx context.Context) (Credentials, bool) {
	for _, scope := range []Scope{ScopeDurable, ScopeTransient} {
		backend := s.backend(scope)
		if backend == nil {
			continue
		}

		if creds, ok := s.readScope(ctx, scope, backend); ok {
			return creds, true
		}
	}

	return Credentials{}, false
}

func (s *Store) readScope(ctx context.Context, scope Scope, backend Backend) (Credentials, bool) {
	pair := Pair{
		AccessToken:  s.get(ctx, backend, keyAccessToken),
		RenewalToken: s.get(ctx, backend, keyRenewalToken),
	}

	if !pair.Complete() {
		if pair.AccessToken != "" || pair.RenewalToken != "" {
			slogctx.Warn(ctx, "Ignoring an incomplete credential pair", "scope", scope.String())
		}

		return Credentials{}, false
	}

	return Credentials{
		Pair:        pair,
		DisplayName: s.get(ctx, backend, keyDisplayName),
		Scope:       scope,
	}, true
}

func (s *Store) write(ctx context.Context, creds Credentials, durable bool) (Scope, bool) {
	if durable && s.durable == nil && s.transient != nil {
		slogctx.Info(ctx, "No durable backend configured, keeping the session in the transient scope")
		durable = false
	}

	scope, other := ScopeTransient, ScopeDurable
	if durable {
		scope, other = ScopeDurable, ScopeTransient
	}

	s.delete(ctx, s.backend(other), scopeKeys...)

	stored := false
	target := s.backend(scope)
	if target == nil {
		slogctx.Warn(ctx, "No backend configured for the scope, credentials are not persisted", "scope", scope.String())
	} else if err := writePair(ctx, target, creds); err != nil {
		slogctx.Warn(ctx, "Failed to store credentials", "scope", scope.String(), "error", err)
		s.delete(ctx, target, scopeKeys...)
	} else {
		stored = true
	}

	if s.durable != nil {
		err := errors.Join(
			s.durable.Set(ctx, keyLegacyToken, creds.AccessToken),
			s.durable.Set(ctx, keyLegacyName, creds.DisplayName),
		)
		if err != nil {
			slogctx.Warn(ctx, "Failed to mirror credentials into the legacy keys", "error", err)
		}
	}

	if !stored {
		return ScopeNone, false
	}

	return scope, true
}

func writePair(ctx context.Context, backend Backend, creds Credentials) error {
	if err := backend.Set(ctx, keyAccessToken, creds.AccessToken); err != nil {
		return err
	}

	if err := backend.Set(ctx, keyRenewalToken, creds.RenewalToken); err != nil {
		return err
	}

	if creds.DisplayName == "" {
		return backend.Delete(ctx, keyDisplayName)
	}

	return backend.Set(ctx, keyDisplayName, creds.DisplayName)
}

func (s *Store) clear(ctx context.Context) {
	s.delete(ctx, s.durable, slices.Concat(scopeKeys, legacyKeys)...)
	s.delete(ctx, s.transient, scopeKeys...)
}

func (s *Store) get(ctx context.Context, backend Backend, key string) string {
	value, err := backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, serviceerr.ErrNotFound) {
			slogctx.Warn(ctx, "Failed to read a credential key", "key", key, "error", err)
		}

		return ""
	}

	return value
}

func (s *Store) delete(ctx context.Context, backend Backend, keys ...string) {
	if backend == nil {
		return
	}

	if err := backend.Delete(ctx, keys...); err != nil {
		slogctx.Warn(ctx, "Failed to delete credential keys", "error", err)
	}
}

func (s *Store) backend(scope Scope) Backend {
	switch scope {
	case ScopeDurable:
		return s.durable
	case ScopeTransient:
		return s.transient
	default:
		return nil
	}
}
