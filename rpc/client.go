// Package rpc is the typed call/query facade over the five remote services of
// the local test network. Updates are signed and never retried; queries are
// idempotent and safe to repeat inside a bounded poll loop.
package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"daoctl/crypto"
)

// Client speaks JSON-RPC 2.0 over HTTP to service endpoints of the form
// {endpoint}/v1/service/{principal}. A client is bound to at most one signing
// identity; queries work unauthenticated.
type Client struct {
	endpoint   string
	authToken  string
	signer     crypto.Signer
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithSigner binds the client to a signing identity. Updates require one.
func WithSigner(signer crypto.Signer) Option {
	return func(c *Client) { c.signer = signer }
}

// WithAuthToken attaches a bearer token to every request.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// WithHTTPClient overrides the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Signer returns the identity the client signs updates with, if any.
func (c *Client) Signer() crypto.Signer { return c.signer }

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RemoteError    `json:"error"`
}

// Update performs a signed, state-changing call. The caller principal and a
// signature over the request body accompany the request. On transport failure
// the remote outcome is unknown; the returned NetworkError must never be
// answered with a retry.
func (c *Client) Update(ctx context.Context, service crypto.Principal, method string, arg any, out any) error {
	if c.signer == nil {
		return fmt.Errorf("rpc: update %s requires a signing identity", method)
	}
	return c.do(ctx, service, method, arg, out, true)
}

// Query performs a read-only call. Queries are idempotent; poll loops may
// repeat them within their declared bound.
func (c *Client) Query(ctx context.Context, service crypto.Principal, method string, arg any, out any) error {
	return c.do(ctx, service, method, arg, out, false)
}

func (c *Client) do(ctx context.Context, service crypto.Principal, method string, arg any, out any, signed bool) error {
	params := []any{}
	if arg != nil {
		params = append(params, arg)
	}
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("rpc: encode %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/v1/service/%s", c.endpoint, service)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpc: build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if signed {
		sig, err := c.signer.Sign(body)
		if err != nil {
			return fmt.Errorf("rpc: sign %s request: %w", method, err)
		}
		httpReq.Header.Set("X-Caller", c.signer.Principal().String())
		httpReq.Header.Set("X-Signature", hex.EncodeToString(sig))
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &NetworkError{Method: method, Endpoint: url, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return &NetworkError{
			Method:   method,
			Endpoint: url,
			Err:      fmt.Errorf("unexpected HTTP status %s", httpResp.Status),
		}
	}

	var decoded response
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return &NetworkError{Method: method, Endpoint: url, Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Error != nil {
		decoded.Error.Service = service.String()
		decoded.Error.Method = method
		return decoded.Error
	}
	if out != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return &NetworkError{Method: method, Endpoint: url, Err: fmt.Errorf("decode result: %w", err)}
		}
	}
	return nil
}
