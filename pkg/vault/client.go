// Package vault implements the minimal secret-store HTTP client the broker
// needs: authenticated reads and writes against one endpoint, optional
// namespace scoping, and per-call response wrapping.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	brokererrors "github.com/forgeci/vaultbroker/pkg/errors"
	"github.com/forgeci/vaultbroker/pkg/httpclient"
)

// Request headers understood by the store.
const (
	headerToken     = "X-Vault-Token"
	headerNamespace = "X-Vault-Namespace"
	headerWrapTTL   = "X-Vault-Wrap-TTL"
)

// apiVersion is the store's REST API version prefix.
const apiVersion = "v1"

// Config describes one secret-store endpoint.
type Config struct {
	// Endpoint is the store's base URL, e.g. "https://vault.example.com:8200".
	Endpoint string

	// Namespace scopes every request when non-empty.
	Namespace string

	// VerifyTLS controls certificate verification. Default true.
	VerifyTLS bool

	// Timeout is the per-request timeout. Zero uses the HTTP client default.
	Timeout time.Duration
}

// Client is a store client bound to one endpoint and namespace. A Client is
// immutable; WithToken and WithWrapTTL return derived clients sharing the
// same pooled transport, mirroring the plain/session template split of the
// store's conventional client libraries.
type Client struct {
	base      *url.URL
	namespace string
	token     string
	wrapTTL   string
	http      *http.Client
	tracer    trace.Tracer
}

// New creates a client for the given endpoint. The returned client carries
// no session token; use WithToken after a login to get a session client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid store endpoint %q: %w", cfg.Endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("store endpoint %q must be http or https", cfg.Endpoint)
	}

	hcfg := httpclient.DefaultConfig()
	hcfg.InsecureSkipVerify = !cfg.VerifyTLS
	if cfg.Timeout > 0 {
		hcfg.Timeout = cfg.Timeout
	}

	httpClient, err := httpclient.New(hcfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		base:      base,
		namespace: cfg.Namespace,
		http:      httpClient,
		tracer:    otel.Tracer("vaultbroker/vault"),
	}, nil
}

// WithToken returns a derived client that authenticates with the given
// session token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// WithWrapTTL returns a derived client whose calls request response
// wrapping with the given TTL. Use the derived client for exactly the call
// whose response should be wrapped.
func (c *Client) WithWrapTTL(ttl time.Duration) *Client {
	clone := *c
	clone.wrapTTL = fmt.Sprintf("%ds", int(ttl.Seconds()))
	return &clone
}

// Namespace returns the namespace this client is scoped to.
func (c *Client) Namespace() string {
	return c.namespace
}

// Write POSTs a JSON body to an API path and decodes the response envelope.
// A non-2xx status is returned as *APIError.
func (c *Client) Write(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, false)
}

// Read GETs an API path. A missing path (404) returns (nil, nil) so callers
// can distinguish absence from failure.
func (c *Client) Read(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, true)
}

// LookupSelf returns the metadata of the client's own session token,
// including its accessor.
func (c *Client) LookupSelf(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, "auth/token/lookup-self", nil, false)
}

// RevokeAccessor revokes the token identified by the given accessor. A
// store that no longer knows the accessor yields ErrAlreadyRevoked, which
// callers treat as success.
func (c *Client) RevokeAccessor(ctx context.Context, accessor string) error {
	_, err := c.Write(ctx, "auth/token/revoke-accessor", map[string]string{
		"accessor": accessor,
	})

	var apiErr *APIError
	if errors.As(err, &apiErr) &&
		apiErr.StatusCode == http.StatusBadRequest &&
		apiErr.Contains("invalid accessor") {
		return fmt.Errorf("%w: %s", brokererrors.ErrAlreadyRevoked, apiErr.Detail())
	}
	return err
}

// RevokeSelf revokes the client's own session token.
func (c *Client) RevokeSelf(ctx context.Context) error {
	_, err := c.Write(ctx, "auth/token/revoke-self", nil)
	return err
}

// Unwrap exchanges a wrapping token for the wrapped response. Used by
// server-side callers holding a wrapped token; builds unwrap on their own.
func (c *Client) Unwrap(ctx context.Context, wrappingToken string) (*Response, error) {
	return c.WithToken(wrappingToken).Write(ctx, "sys/wrapping/unwrap", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, nilOn404 bool) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "vault."+method,
		trace.WithAttributes(attribute.String("vault.path", path)))
	defer span.End()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request for %s: %w", path, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + apiVersion + "/" + strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(headerToken, c.token)
	}
	if c.namespace != "" {
		req.Header.Set(headerNamespace, c.namespace)
	}
	if c.wrapTTL != "" {
		req.Header.Set(headerWrapTTL, c.wrapTTL)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusNotFound && nilOn404 {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, path, respBody)
		span.SetStatus(codes.Error, apiErr.Error())
		return nil, apiErr
	}

	if len(respBody) == 0 || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return &parsed, nil
}
