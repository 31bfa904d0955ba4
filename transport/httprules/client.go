// Package httprules fetches positioning rules over HTTP.
//
// A Client issues GET {BaseURL}?id={contextID} and maps the response onto the
// failure taxonomy: 204 is no fill, 5xx a server error, other non-2xx an
// invalid response, and transport errors a connection error. Concurrent
// requests for one context share a single HTTP call, and parseable bodies can
// be cached for a short TTL.
package httprules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/IvanBrykalov/adplacer/failure"
	"github.com/IvanBrykalov/adplacer/internal/singleflight"
	"github.com/IvanBrykalov/adplacer/positioning"
	"github.com/IvanBrykalov/adplacer/rules"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Defaults applied by New.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultCacheSize = 64
	// MaxBodyBytes bounds how much of a response is read.
	MaxBodyBytes = 1 << 20
)

// RequestIDHeader carries a per-request id for server-side correlation.
const RequestIDHeader = "X-Request-ID"

// Options configures a Client. BaseURL is required.
//   - nil HTTPClient    => &http.Client{Timeout: DefaultTimeout}
//   - CacheTTL <= 0     => no response cache
//   - CacheSize <= 0    => DefaultCacheSize
//   - nil Logger        => slog.Default()
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string

	CacheTTL  time.Duration
	CacheSize int

	Logger *slog.Logger
}

// Client implements positioning.Transport.
type Client struct {
	base  *url.URL
	http  *http.Client
	ua    string
	log   *slog.Logger
	sf    singleflight.Group[string, []byte]
	cache *expirable.LRU[string, []byte] // nil when caching is off
}

// New validates opt and returns a Client.
func New(opt Options) (*Client, error) {
	if opt.BaseURL == "" {
		return nil, errors.New("httprules: BaseURL is required")
	}
	base, err := url.Parse(opt.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("httprules: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httprules: unsupported scheme %q", base.Scheme)
	}
	if opt.HTTPClient == nil {
		opt.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	c := &Client{
		base: base,
		http: opt.HTTPClient,
		ua:   opt.UserAgent,
		log:  opt.Logger.With("component", "httprules"),
	}
	if opt.CacheTTL > 0 {
		size := opt.CacheSize
		if size <= 0 {
			size = DefaultCacheSize
		}
		c.cache = expirable.NewLRU[string, []byte](size, nil, opt.CacheTTL)
	}
	return c, nil
}

// FetchRules implements positioning.Transport. The request runs on its own
// goroutine; done is called exactly once.
func (c *Client) FetchRules(ctx context.Context, contextID string, done func([]byte, error)) {
	go func() {
		b, err := c.Get(ctx, contextID)
		done(b, err)
	}()
}

// Get returns the raw rules payload for contextID, blocking until it arrives.
func (c *Client) Get(ctx context.Context, contextID string) ([]byte, error) {
	if c.cache != nil {
		if b, ok := c.cache.Get(contextID); ok {
			c.log.Debug("httprules: cache hit", "context_id", contextID)
			return b, nil
		}
	}

	b, _, err := c.sf.Do(ctx, contextID, func(fctx context.Context) ([]byte, error) {
		return c.fetch(fctx, contextID)
	})
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		// Only well-formed rules are worth replaying; a warm-up notice is not.
		if _, perr := rules.Parse(b); perr == nil {
			c.cache.Add(contextID, b)
		}
	}
	return b, nil
}

// Purge drops every cached response.
func (c *Client) Purge() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

func (c *Client) fetch(ctx context.Context, contextID string) ([]byte, error) {
	u := *c.base
	q := u.Query()
	q.Set("id", contextID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("httprules: build request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("httprules: get %s: %w: %w", contextID, failure.ErrConnection, err)
	}
	defer resp.Body.Close()

	c.log.Debug("httprules: response",
		"context_id", contextID,
		"request_id", reqID,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, fmt.Errorf("httprules: %s: %w", contextID, failure.ErrNoFill)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("httprules: %s: status %d: %w", contextID, resp.StatusCode, failure.ErrServer)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("httprules: %s: status %d: %w", contextID, resp.StatusCode, failure.ErrInvalidResponse)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("httprules: read body: %w: %w", failure.ErrConnection, err)
	}
	return b, nil
}

var _ positioning.Transport = (*Client)(nil)
