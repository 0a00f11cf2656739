// Package authapi talks to the portal authentication endpoints.
//
// Successful responses carry their payload either bare or wrapped in a
// {"data": {...}} envelope. Failed responses carry {"error": "..."} or
// {"message": "..."}.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/openkcm/portal-session/internal/serviceerr"
)

const (
	loginPath   = "/auth/login"
	refreshPath = "/auth/refresh"
	logoutPath  = "/auth/logout"

	// maxBodyBytes caps how much of a response body is decoded
	maxBodyBytes = 1 << 20
)

// Tokens is the credential material returned by login and refresh.
// RefreshToken is empty when the server did not rotate it.
type Tokens struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Name         string `json:"nombre,omitempty"`
}

// APIError is a non-successful response of the portal backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("portal responded with status %d", e.StatusCode)
	}

	return fmt.Sprintf("portal responded with status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL *url.URL
	client  *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing portal base URL: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("portal base URL %q must be absolute", baseURL)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL: u,
		client:  httpClient,
	}, nil
}

// Login exchanges user credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (Tokens, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	var tokens Tokens
	if err := c.post(ctx, loginPath, body, &tokens); err != nil {
		return Tokens{}, fmt.Errorf("logging in: %w", err)
	}

	if tokens.Token == "" || tokens.RefreshToken == "" {
		return Tokens{}, fmt.Errorf("logging in: %w", serviceerr.ErrMalformedResponse)
	}

	return tokens, nil
}

// Refresh exchanges a renewal token for a fresh access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	body := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: refreshToken}

	var tokens Tokens
	if err := c.post(ctx, refreshPath, body, &tokens); err != nil {
		return Tokens{}, fmt.Errorf("refreshing token: %w", err)
	}

	if tokens.Token == "" {
		return Tokens{}, fmt.Errorf("refreshing token: %w", serviceerr.ErrMalformedResponse)
	}

	return tokens, nil
}

// Logout revokes accessToken. Any HTTP response counts as done; only
// transport failures are returned.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	req, err := c.newRequest(ctx, logoutPath, accessToken, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := c.newRequest(ctx, path, "", payload)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	return decodeData(data, out)
}

func (c *Client) newRequest(ctx context.Context, path, bearer string, payload []byte) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return req, nil
}

// decodeData decodes the payload, unwrapping the data envelope when present.
func decodeData(data []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return errors.Join(serviceerr.ErrMalformedResponse, err)
	}

	payload := data
	if len(envelope.Data) > 0 && !bytes.Equal(envelope.Data, []byte("null")) {
		payload = envelope.Data
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Join(serviceerr.ErrMalformedResponse, err)
	}

	return nil
}

func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}

	if body.Error != "" {
		return body.Error
	}

	return body.Message
}
