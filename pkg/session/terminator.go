package session

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/portal-session/pkg/credential"
)

const terminateKey = "terminate"

// Revoker asks the backend to invalidate an access token.
type Revoker interface {
	Logout(ctx context.Context, accessToken string) error
}

// Terminator ends the local session.
type Terminator struct {
	store   *credential.Store
	revoker Revoker
	events  *Broadcaster

	group      singleflight.Group
	publishing atomic.Bool
}

func NewTerminator(store *credential.Store, revoker Revoker, events *Broadcaster) *Terminator {
	return &Terminator{
		store:   store,
		revoker: revoker,
		events:  events,
	}
}

// Terminate revokes the stored access token on a best effort basis, clears
// the store and publishes an unauthenticated event. Concurrent calls share one
// teardown but each call publishes, unless an unauthenticated event is being
// delivered at that moment. Listeners may call back into Terminate.
func (t *Terminator) Terminate(ctx context.Context) {
	t.group.Do(terminateKey, func() (any, error) {
		t.teardown(context.WithoutCancel(ctx))
		return nil, nil
	})

	if t.events == nil || !t.publishing.CompareAndSwap(false, true) {
		return
	}
	defer t.publishing.Store(false)

	t.events.Publish(ctx, Event{Authenticated: false})
}

func (t *Terminator) teardown(ctx context.Context) {
	if creds, ok := t.store.Read(ctx); ok && t.revoker != nil {
		if err := t.revoker.Logout(ctx, creds.AccessToken); err != nil {
			slogctx.Warn(ctx, "Failed to revoke access token", "error", err)
		}
	}

	t.store.Clear(ctx)

	slogctx.Info(ctx, "Session terminated")
}
