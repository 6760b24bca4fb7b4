// Package httpclient provides a small HTTP client bound to a single host,
// so tests can poke services on exposed container ports with relative paths.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultReadyInterval is how often WaitForStatus polls.
const DefaultReadyInterval = 100 * time.Millisecond

// Client issues requests against a fixed base URL.
type Client struct {
	base   *url.URL
	client *http.Client
}

// New returns a client for plain-HTTP requests to host:port.
func New(host, port string) *Client {
	return &Client{
		base:   &url.URL{Scheme: "http", Host: net.JoinHostPort(host, port)},
		client: &http.Client{},
	}
}

// NewForBase returns a client for requests relative to a base URL.
func NewForBase(base string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	return &Client{base: u, client: &http.Client{}}, nil
}

// URL resolves a path against the base URL. An absolute path replaces the
// base path, a relative path is joined onto it.
func (c *Client) URL(path string) string {
	u := *c.base
	switch {
	case path == "":
	case strings.HasPrefix(path, "/"):
		u.Path = path
	default:
		u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	}
	return u.String()
}

// Request sends a request for path with the given method and body.
func (c *Client) Request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil)
}

func (c *Client) Head(ctx context.Context, path string) (*http.Response, error) {
	return c.Request(ctx, http.MethodHead, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, body io.Reader) (*http.Response, error) {
	return c.Request(ctx, http.MethodPost, path, body)
}

func (c *Client) Put(ctx context.Context, path string, body io.Reader) (*http.Response, error) {
	return c.Request(ctx, http.MethodPut, path, body)
}

func (c *Client) Patch(ctx context.Context, path string, body io.Reader) (*http.Response, error) {
	return c.Request(ctx, http.MethodPatch, path, body)
}

func (c *Client) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil)
}

// WaitForStatus polls path until a GET returns the wanted status code,
// retrying connection errors and other status codes until timeout.
func (c *Client) WaitForStatus(ctx context.Context, path string, status int, timeout time.Duration) error {
	backoff := retry.WithMaxDuration(timeout, retry.NewConstant(DefaultReadyInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.Get(ctx, path)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != status {
			return retry.RetryableError(fmt.Errorf("GET %s: got status %d, want %d", path, resp.StatusCode, status))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("wait for %s to return status %d: %w", c.URL(path), status, err)
	}
	return nil
}
