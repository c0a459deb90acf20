// Package httpclient wraps net/http with the redirect, cookie, and transport
// configuration the download pipeline needs. The browser session falls back
// to this client for direct document fetches.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// Config defines the setup for the HTTP client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects caps redirect following; a negative value disables
	// redirects entirely.
	MaxRedirects int
	// UseCookieJar keeps cookies across requests for the client's lifetime.
	UseCookieJar bool
	// Transport overrides the default transport, e.g. for uTLS fingerprinting.
	Transport http.RoundTripper
}

// Client wraps http.Client with the pipeline's defaults.
type Client struct {
	*http.Client
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &http.Client{Timeout: cfg.Timeout}

	if cfg.MaxRedirects >= 0 {
		limit := cfg.MaxRedirects
		if limit == 0 {
			limit = 10
		}
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("httpclient: stopped after %d redirects", limit)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: cookie jar: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c}, nil
}

// Do executes the request under the given context. The context bounds the
// whole exchange independently of the client-level timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: nil context")
	}
	resp, err := c.Client.Do(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}
