// Package api implements the HTTP client for the mock-interview service.
//
// Every request carries the current access token from the credential
// store. A 401 on any non-auth endpoint triggers a single-flight token
// refresh: concurrent failures queue behind the one in-flight refresh and
// are replayed with the new token once it settles. An unrecoverable auth
// failure clears the stored credentials and fires OnSessionInvalidated
// instead of navigating anywhere itself.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mockmate/mockmate/pkg/creds"
)

// Client is the authenticated HTTP pipeline to the service.
type Client struct {
	base  *url.URL
	http  *http.Client
	creds creds.Store
	gate  refreshGate
	invMu sync.Mutex

	// OnSessionInvalidated is called once whenever credentials are cleared
	// because the session cannot be recovered. The hosting application
	// decides what to do (show the login screen, exit, ...).
	OnSessionInvalidated func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying transport, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, store creds.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api: base url %q missing scheme or host", baseURL)
	}
	c := &Client{
		base:  u,
		http:  &http.Client{Timeout: 30 * time.Second},
		creds: store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ResolveURL resolves a possibly-relative server path (such as a question
// audio_url) against the API base.
func (c *Client) ResolveURL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(u).String()
}

// request is a replayable outbound call. The body is held as bytes so the
// refresh interceptor can re-issue it after rotating tokens.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	noAuth      bool
	retried     bool
}

// GetJSON issues a GET and decodes the JSON response into out (if non-nil).
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, &request{method: http.MethodGet, path: path})
	if err != nil {
		return err
	}
	return decodeInto(body, out)
}

// PostJSON issues a POST with an optional JSON body and decodes the
// response into out (if non-nil).
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	req := &request{method: http.MethodPost, path: path}
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		req.body = raw
		req.contentType = "application/json"
	}
	body, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	return decodeInto(body, out)
}

// FilePart is one file attached to a multipart POST.
type FilePart struct {
	Field    string
	Filename string
	Data     []byte
}

// PostMultipart issues a multipart/form-data POST with the given text
// fields and files, decoding the response into out (if non-nil).
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, files []FilePart, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("api: multipart field: %w", err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return fmt.Errorf("api: multipart file: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return fmt.Errorf("api: multipart file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("api: multipart close: %w", err)
	}

	body, err := c.do(ctx, &request{
		method:      http.MethodPost,
		path:        path,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	})
	if err != nil {
		return err
	}
	return decodeInto(body, out)
}

// do sends the request, running the refresh interceptor on a 401 from any
// non-auth endpoint. Transport errors are returned unchanged.
func (c *Client) do(ctx context.Context, req *request) ([]byte, error) {
	body, status, err := c.send(ctx, req, "")
	if err != nil {
		return nil, err
	}
	if status >= 200 && status < 300 {
		return body, nil
	}

	apiErr := parseAPIError(status, body)
	if apiErr.IsAuth() && !isAuthPath(req.path) && !req.retried {
		return c.recover(ctx, req, apiErr)
	}
	return nil, apiErr
}

// send performs one HTTP round trip. overrideToken, when non-empty, is
// used instead of the stored access token (a just-refreshed token may not
// have hit the store-visible state the request was built from).
func (c *Client) send(ctx context.Context, req *request, overrideToken string) ([]byte, int, error) {
	var rd io.Reader
	if req.body != nil {
		rd = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.base.String()+req.path, rd)
	if err != nil {
		return nil, 0, fmt.Errorf("api: build request: %w", err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if !req.noAuth {
		token := overrideToken
		if token == "" {
			token = c.creds.AccessToken()
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("api: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// recover handles a 401: refresh once (single-flight across the client)
// and replay the original request with the new token.
func (c *Client) recover(ctx context.Context, req *request, cause *APIError) ([]byte, error) {
	req.retried = true

	refreshToken := c.creds.RefreshToken()
	if refreshToken == "" {
		c.invalidate()
		return nil, cause
	}

	token, err := c.gate.run(ctx, func() (string, error) {
		pair, err := c.refreshOnce(ctx, refreshToken)
		if err != nil {
			return "", err
		}
		return pair.AccessToken, nil
	})
	if err != nil {
		// The shared refresh failed, whoever led it: the session is gone.
		// A waiter cancelled while queued keeps the session intact.
		if ctxErr := ctx.Err(); ctxErr == nil || !errors.Is(err, ctxErr) {
			c.invalidate()
		}
		return nil, err
	}

	body, status, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if status >= 200 && status < 300 {
		return body, nil
	}
	return nil, parseAPIError(status, body)
}

// Refresh rotates the token pair using the stored refresh token. It shares
// the single-flight gate with the interceptor but leaves teardown policy
// to the caller on failure.
func (c *Client) Refresh(ctx context.Context) (creds.TokenPair, error) {
	refreshToken := c.creds.RefreshToken()
	if refreshToken == "" {
		return creds.TokenPair{}, &APIError{Status: http.StatusUnauthorized, Message: "no refresh token"}
	}
	token, err := c.gate.run(ctx, func() (string, error) {
		pair, err := c.refreshOnce(ctx, refreshToken)
		if err != nil {
			return "", err
		}
		return pair.AccessToken, nil
	})
	if err != nil {
		return creds.TokenPair{}, err
	}
	return creds.TokenPair{AccessToken: token, RefreshToken: c.creds.RefreshToken()}, nil
}

// refreshOnce calls the refresh endpoint with the refresh token in the
// body and no Authorization header, then persists the rotated pair.
func (c *Client) refreshOnce(ctx context.Context, refreshToken string) (creds.TokenPair, error) {
	raw, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	body, status, err := c.send(ctx, &request{
		method:      http.MethodPost,
		path:        "/auth/refresh",
		body:        raw,
		contentType: "application/json",
		noAuth:      true,
	}, "")
	if err != nil {
		return creds.TokenPair{}, err
	}
	if status < 200 || status >= 300 {
		return creds.TokenPair{}, parseAPIError(status, body)
	}

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return creds.TokenPair{}, fmt.Errorf("api: decode refresh response: %w", err)
	}
	if resp.AccessToken == "" {
		return creds.TokenPair{}, fmt.Errorf("api: refresh response missing access_token")
	}
	pair := creds.TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	c.creds.SaveTokens(pair)
	slog.Debug("access token refreshed")
	return pair, nil
}

// invalidate clears all credentials and notifies the host exactly like a
// forced logout. Concurrent callers collapse into one notification: once
// the store is empty there is nothing left to tear down.
func (c *Client) invalidate() {
	c.invMu.Lock()
	defer c.invMu.Unlock()
	if c.creds.User() == nil && c.creds.AccessToken() == "" && c.creds.RefreshToken() == "" {
		return
	}
	c.creds.Clear()
	slog.Info("session invalidated")
	if c.OnSessionInvalidated != nil {
		c.OnSessionInvalidated()
	}
}

// isAuthPath reports whether the path is one of the authentication
// endpoints, which must never trigger a refresh of their own.
func isAuthPath(path string) bool {
	return strings.Contains(path, "/auth/login") ||
		strings.Contains(path, "/auth/register") ||
		strings.Contains(path, "/auth/refresh") ||
		strings.Contains(path, "/auth/logout")
}

func decodeInto(body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
