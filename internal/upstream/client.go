// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

// Package upstream fetches the realtime feed and the static snapshot from
// the transit operator.
//
// Every request carries the identifying headers operators ask for
// (User-Agent with a contact address, From), the optional authorization
// header and any extra headers from HEADERS_FILE. Calls are spaced by a
// rate limiter and guarded by one circuit breaker per endpoint.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
)

// UserAgent identifies Bustinel to upstream operators.
const UserAgent = "Bustinel <https://github.com/tomtom215/bustinel>"

// Accept header values.
const (
	AcceptRealtime = "application/x-google-protobuf, application/x-protobuf"
	AcceptArchive  = "application/zip"
)

// Endpoint names, used as metric labels and breaker names.
const (
	EndpointRealtime = "realtime-feed"
	EndpointMetadata = "metadata-snapshot"
)

// ErrNotModified is returned when a conditional request got 304.
var ErrNotModified = errors.New("upstream: not modified")

// ErrResponseTooLarge is returned when a body exceeds MaxResponseBytes.
var ErrResponseTooLarge = errors.New("upstream: response body too large")

// StatusError is returned for non-2xx responses other than 304.
type StatusError struct {
	Code int
	Host string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d %s", e.Host, e.Code, http.StatusText(e.Code))
}

// FetchOptions controls a single Fetch.
type FetchOptions struct {
	// Endpoint names the breaker and metric series. Defaults to the URL host.
	Endpoint string
	// Accept overrides the Accept header.
	Accept string
	// IfModifiedSince makes the request conditional when non-empty. It is
	// sent verbatim, normally a previous Last-Modified value.
	IfModifiedSince string
}

// Response is a fully read 2xx response.
type Response struct {
	Status       int
	Body         []byte
	LastModified string
}

// Client performs upstream requests. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	headers    http.Header
	limiter    *rate.Limiter
	maxBody    int64

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*Response]
}

// New creates a client from cfg. Extra headers are read once from
// cfg.HeadersFile; identifying headers always take precedence over them.
func New(cfg config.UpstreamConfig) (*Client, error) {
	headers, err := LoadHeadersFile(cfg.HeadersFile)
	if err != nil {
		return nil, err
	}

	ua := UserAgent
	if cfg.Contact != "" {
		ua += "; contact: " + cfg.Contact
		headers.Set("From", cfg.Contact)
	}
	headers.Set("User-Agent", ua)

	if cfg.Authorization != "" {
		name := cfg.AuthorizationHeader
		if name == "" {
			name = "Authorization"
		}
		headers.Set(name, cfg.Authorization)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = 256 << 20
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		headers:    headers,
		limiter:    limiter,
		maxBody:    maxBody,
		breakers:   make(map[string]*gobreaker.CircuitBreaker[*Response]),
	}, nil
}

// Fetch performs a GET of rawURL.
//
// It returns ErrNotModified on 304, *StatusError on other non-2xx statuses,
// and gobreaker.ErrOpenState while the endpoint's breaker is open.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = parsed.Host
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	cb := c.breaker(endpoint)
	resp, err := cb.Execute(func() (*Response, error) {
		return c.do(ctx, parsed, endpoint, opts)
	})
	recordBreakerResult(cb, err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) breaker(endpoint string) *gobreaker.CircuitBreaker[*Response] {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[endpoint]
	if !ok {
		cb = newBreaker(endpoint)
		c.breakers[endpoint] = cb
	}
	return cb
}

func (c *Client) do(ctx context.Context, u *url.URL, endpoint string, opts FetchOptions) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for name, values := range c.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}
	if opts.IfModifiedSince != "" {
		req.Header.Set("If-Modified-Since", opts.IfModifiedSince)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest(endpoint, 0, time.Since(start), 0)
		metrics.RecordError(endpoint, metrics.CategoryTransport)
		return nil, fmt.Errorf("request %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		metrics.RecordUpstreamRequest(endpoint, resp.StatusCode, time.Since(start), 0)
		return nil, ErrNotModified
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		metrics.RecordUpstreamRequest(endpoint, resp.StatusCode, time.Since(start), 0)
		metrics.RecordError(endpoint, metrics.CategoryTransport)
		return nil, &StatusError{Code: resp.StatusCode, Host: u.Host}
	}

	// Uses io.LimitReader to prevent unbounded memory allocation.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		metrics.RecordUpstreamRequest(endpoint, resp.StatusCode, time.Since(start), len(body))
		metrics.RecordError(endpoint, metrics.CategoryTransport)
		return nil, fmt.Errorf("read body from %s: %w", u.Host, err)
	}
	metrics.RecordUpstreamRequest(endpoint, resp.StatusCode, time.Since(start), len(body))
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrResponseTooLarge, c.maxBody, u.Host)
	}

	logging.Ctx(ctx).Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Upstream fetch complete")

	return &Response{
		Status:       resp.StatusCode,
		Body:         body,
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
