package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/portal-session/internal/serviceerr"
	"github.com/openkcm/portal-session/pkg/credential"
	"github.com/openkcm/portal-session/pkg/expiry"
	"github.com/openkcm/portal-session/pkg/renewal"
)

// Executor sends requests with the session's access token attached.
type Executor struct {
	store      *credential.Store
	oracle     *expiry.Oracle
	renewals   *renewal.Coordinator
	terminator *Terminator
	client     *http.Client

	tracer  trace.Tracer
	retries metric.Int64Counter
}

func NewExecutor(
	store *credential.Store,
	oracle *expiry.Oracle,
	renewals *renewal.Coordinator,
	terminator *Terminator,
	client *http.Client,
) (*Executor, error) {
	if client == nil {
		client = http.DefaultClient
	}

	meter := otel.Meter(
		"portal-session/session",
		metric.WithInstrumentationVersion(otel.Version()),
	)

	retries, err := meter.Int64Counter(
		"session.request.retry.count",
		metric.WithDescription("Requests retried after a rejected access token"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating retry count meter: %w", err)
	}

	return &Executor{
		store:      store,
		oracle:     oracle,
		renewals:   renewals,
		terminator: terminator,
		client:     client,
		tracer:     otel.Tracer("portal-session/session"),
		retries:    retries,
	}, nil
}

// Fetch builds a request for url and sends it through Do.
func (e *Executor) Fetch(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	return e.Do(req)
}

// Do sends req with a valid access token, renewing it first when the cached
// one is missing or expired. A request rejected with 401 is retried once
// after a forced renewal. When the session cannot be restored it is
// terminated and ErrSessionUnavailable or ErrUnauthorized is returned.
//
// Any other response or transport error is returned as is.
func (e *Executor) Do(req *http.Request) (*http.Response, error) {
	ctx := slogctx.With(req.Context(), commoncfg.AttrRequestID, uuid.NewString())

	ctx, span := e.tracer.Start(ctx, "session.request", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	))
	defer span.End()

	resp, err := e.do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	return resp, nil
}

func (e *Executor) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req, err := replayable(ctx, req)
	if err != nil {
		return nil, err
	}

	token, renewed, err := e.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := e.send(ctx, req, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	drain(resp)

	if renewed {
		slogctx.Warn(ctx, "Renewed access token was rejected")
		e.terminator.Terminate(ctx)

		return nil, serviceerr.ErrUnauthorized
	}

	e.retries.Add(ctx, 1)
	slogctx.Debug(ctx, "Access token rejected, renewing and retrying")

	token, ok := e.renewals.Renew(ctx)
	if !ok {
		e.terminator.Terminate(ctx)
		return nil, serviceerr.ErrSessionUnavailable
	}

	resp, err = e.send(ctx, req, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	drain(resp)

	slogctx.Warn(ctx, "Access token rejected after renewal")
	e.terminator.Terminate(ctx)

	return nil, serviceerr.ErrUnauthorized
}

// accessToken returns a usable token and whether it was renewed for this request.
func (e *Executor) accessToken(ctx context.Context) (string, bool, error) {
	if creds, ok := e.store.Read(ctx); ok && !e.oracle.IsExpired(creds.AccessToken) {
		return creds.AccessToken, false, nil
	}

	token, ok := e.renewals.Renew(ctx)
	if !ok {
		e.terminator.Terminate(ctx)
		return "", false, serviceerr.ErrSessionUnavailable
	}

	return token, true, nil
}

func (e *Executor) send(ctx context.Context, req *http.Request, token string) (*http.Response, error) {
	r := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		r.Body = body
	}

	r.Header.Set("Authorization", "Bearer "+token)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(r.Header))

	return e.client.Do(r)
}

// replayable returns a copy of req whose body can be sent twice.
func replayable(ctx context.Context, req *http.Request) (*http.Request, error) {
	r := req.Clone(ctx)
	if r.Body == nil || r.Body == http.NoBody || r.GetBody != nil {
		return r, nil
	}

	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffering request body: %w", err)
	}

	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	r.Body, _ = r.GetBody()

	return r, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
