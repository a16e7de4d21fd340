// Package transport issues the GET and POST requests of the admin UI
// protocol. It never follows redirects, bounds every call with a fixed
// timeout, keeps one cookie partition per endpoint, and collapses every
// network failure into ErrUnreachable.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dreamware/kf2rotator/internal/fleet"
	"github.com/dreamware/kf2rotator/internal/session"
)

// ErrUnreachable is returned when a request produced no HTTP response:
// connection refused, timeout, reset, or a body that could not be read.
// Callers must not distinguish between those causes.
var ErrUnreachable = errors.New("endpoint unreachable")

// DefaultTimeout bounds a request when Options.Timeout is zero.
const DefaultTimeout = 20 * time.Second

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 4 << 20

// Options configures a Client.
type Options struct {
	Timeout           time.Duration // per-request upper bound
	RequestsPerSecond float64       // per-endpoint pacing, 0 disables it
	Burst             int           // limiter burst, defaults to 1
	MaxBodyBytes      int64         // response body cap
	Logger            *slog.Logger
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
	SetCookies []*http.Cookie // cookies set by this response only
}

// OK reports a 200 status.
func (r *Response) OK() bool { return r.StatusCode == http.StatusOK }

// Success reports a 2xx status.
func (r *Response) Success() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Redirect reports a 3xx redirect status.
func (r *Response) Redirect() bool {
	switch r.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// SetsCookie reports whether this response set a non-empty cookie named name.
func (r *Response) SetsCookie(name string) bool {
	for _, c := range r.SetCookies {
		if c.Name == name && c.Value != "" && c.MaxAge >= 0 {
			return true
		}
	}
	return false
}

// Client is the protocol transport. It is safe for concurrent use; cookie
// state is isolated per endpoint.
type Client struct {
	httpClient *http.Client
	jar        *session.Jar
	log        *slog.Logger
	maxBody    int64

	rps      float64
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter // endpoint key -> limiter
}

// New returns a Client configured by opts.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	jar := session.NewJar()
	return &Client{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		jar:      jar,
		log:      opts.Logger,
		maxBody:  opts.MaxBodyBytes,
		rps:      opts.RequestsPerSecond,
		burst:    opts.Burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Jar exposes the per-endpoint cookie state.
func (c *Client) Jar() *session.Jar { return c.jar }

// Get issues a GET for path on ep.
func (c *Client) Get(ctx context.Context, ep fleet.Endpoint, path string) (*Response, error) {
	return c.do(ctx, ep, http.MethodGet, path, nil)
}

// Post issues a form-encoded POST for path on ep.
func (c *Client) Post(ctx context.Context, ep fleet.Endpoint, path string, form url.Values) (*Response, error) {
	return c.do(ctx, ep, http.MethodPost, path, form)
}

func (c *Client) do(ctx context.Context, ep fleet.Endpoint, method, path string, form url.Values) (*Response, error) {
	target := ep.URL(path)

	if err := c.wait(ctx, ep); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnreachable, method, target, err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, target, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	c.log.Debug("sending request", "method", method, "url", target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("request failed", "method", method, "url", target, "err", err)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnreachable, method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body of %s %s: %w", ErrUnreachable, method, target, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(raw),
		SetCookies: resp.Cookies(),
	}
	if c.log.Enabled(ctx, slog.LevelDebug) {
		c.log.Debug("response received",
			"method", method,
			"url", target,
			"status", resp.StatusCode,
			"bytes", len(raw),
			"set_cookie", cookieNames(out.SetCookies),
			"location", resp.Header.Get("Location"))
	}
	return out, nil
}

// wait applies the per-endpoint pacing, if enabled.
func (c *Client) wait(ctx context.Context, ep fleet.Endpoint) error {
	if c.rps <= 0 {
		return ctx.Err()
	}
	return c.limiter(ep.Key()).Wait(ctx)
}

func (c *Client) limiter(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.rps), c.burst)
		c.limiters[key] = l
	}
	return l
}

func cookieNames(cs []*http.Cookie) []string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return names
}
