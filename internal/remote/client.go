package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every request of an HTTPClient.
const DefaultTimeout = 15 * time.Second

// HTTPClient is a Client over the service's JSON HTTP API.
type HTTPClient struct {
	baseURL string
	tenant  string
	token   string
	http    *http.Client
}

// NewHTTPClient returns a client for tenant at baseURL. A zero timeout
// means DefaultTimeout.
func NewHTTPClient(baseURL, tenant, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tenant:  tenant,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Load fetches the tenant's body. A missing tenant is OK=false with
// Error=ErrorNotFound and a nil error.
func (c *HTTPClient) Load(ctx context.Context) (LoadResponse, error) {
	var out LoadResponse
	err := c.do(ctx, http.MethodGet, c.path(""), nil, &out)
	return out, err
}

// Save stores db for the tenant.
func (c *HTTPClient) Save(ctx context.Context, db json.RawMessage, meta map[string]any) (SaveResponse, error) {
	var out SaveResponse
	err := c.do(ctx, http.MethodPost, c.path(""), SaveRequest{Token: c.token, DB: db, Meta: meta}, &out)
	return out, err
}

// Status reports whether the tenant has a body and its revision.
func (c *HTTPClient) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, c.path("/status"), nil, &out)
	return out, err
}

func (c *HTTPClient) path(suffix string) string {
	return c.baseURL + "/api/db/" + url.PathEscape(c.tenant) + suffix
}

// do sends one request. Any response with a JSON body is decoded into out,
// whatever its status; the service reports not_found and blocked that way.
func (c *HTTPClient) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote %s: encode: %w", method, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("remote %s: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remote %s: read body: %w", method, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("remote %s: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("remote %s: status %d: decode: %w", method, resp.StatusCode, err)
	}
	return nil
}
