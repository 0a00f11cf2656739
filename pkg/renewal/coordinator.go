// Package renewal exchanges renewal tokens for fresh access tokens, one
// exchange at a time per process.
package renewal

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/portal-session/internal/authapi"
	"github.com/openkcm/portal-session/pkg/credential"
)

const (
	// renewKey is the singleflight key shared by every renewal
	renewKey = "renew"

	outcomeSuccess    = "success"
	outcomeFailure    = "failure"
	outcomeAbsent     = "absent"
	outcomeSuperseded = "superseded"
)

// Renewer performs the renewal exchange with the backend.
type Renewer interface {
	Refresh(ctx context.Context, renewalToken string) (authapi.Tokens, error)
}

type Coordinator struct {
	store   *credential.Store
	renewer Renewer

	group   singleflight.Group
	waiting atomic.Int64

	counter metric.Int64Counter
	hist    metric.Int64Histogram
}

func NewCoordinator(store *credential.Store, renewer Renewer) (*Coordinator, error) {
	meter := otel.Meter(
		"portal-session/renewal",
		metric.WithInstrumentationVersion(otel.Version()),
	)

	counter, err := meter.Int64Counter(
		"session.renewal.count",
		metric.WithDescription("Renewal exchanges by outcome"),
		metric.WithUnit("renewal"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating renewal count meter: %w", err)
	}

	hist, err := meter.Int64Histogram(
		"session.renewal.duration",
		metric.WithDescription("Renewal exchange duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating renewal duration meter: %w", err)
	}

	return &Coordinator{
		store:   store,
		renewer: renewer,
		counter: counter,
		hist:    hist,
	}, nil
}

// Renew returns a fresh access token, or false when the session cannot be
// renewed. Concurrent callers share a single exchange and its result.
//
// A failed exchange clears the stored credentials. Once started, the exchange
// is not cancelled by ctx.
func (c *Coordinator) Renew(ctx context.Context) (string, bool) {
	// DoChan has joined the flight by the time it returns, so Waiting never
	// counts a caller that could still start a flight of its own.
	results := c.group.DoChan(renewKey, func() (any, error) {
		return c.renew(context.WithoutCancel(ctx)), nil
	})

	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	res := <-results
	if res.Shared {
		slogctx.Debug(ctx, "Joined in-flight renewal")
	}

	token, _ := res.Val.(string)

	return token, token != ""
}

// Waiting reports how many callers have joined a renewal and not yet returned.
func (c *Coordinator) Waiting() int {
	return int(c.waiting.Load())
}

func (c *Coordinator) renew(ctx context.Context) string {
	start := time.Now()
	outcome := outcomeSuccess

	defer func() {
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		c.counter.Add(ctx, 1, attrs)
		c.hist.Record(ctx, time.Since(start).Milliseconds(), attrs)
	}()

	current, ok := c.store.Read(ctx)
	if !ok {
		outcome = outcomeAbsent
		slogctx.Debug(ctx, "No renewal token to exchange")

		return ""
	}

	tokens, err := c.renewer.Refresh(ctx, current.RenewalToken)
	if err != nil {
		outcome = outcomeFailure
		slogctx.Warn(ctx, "Renewal failed, discarding session", "error", err)
		c.store.Discard(ctx, current.RenewalToken)

		return ""
	}

	updated, ok := c.store.Rotate(ctx, current.RenewalToken, credential.Pair{
		AccessToken:  tokens.Token,
		RenewalToken: tokens.RefreshToken,
	})
	if !ok {
		// The session was replaced or ended during the exchange; whatever the
		// store holds now wins.
		outcome = outcomeSuperseded
		slogctx.Info(ctx, "Session changed during renewal, dropping result")

		latest, ok := c.store.Read(ctx)
		if !ok {
			return ""
		}

		return latest.AccessToken
	}

	slogctx.Debug(ctx, "Renewed access token", "scope", updated.Scope.String())

	return updated.AccessToken
}
