package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/kf2rotator/internal/fleet"
	"github.com/dreamware/kf2rotator/internal/logging"
	"github.com/dreamware/kf2rotator/internal/session"
)

// endpointOf converts an httptest server URL into an Endpoint
func endpointOf(t *testing.T, srv *httptest.Server) fleet.Endpoint {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	ep, err := fleet.NewEndpoint(u.Scheme+"://"+u.Hostname(), port)
	require.NoError(t, err)
	return ep
}

func newClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return New(opts)
}

func TestNewDefaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Equal(t, int64(DefaultMaxBodyBytes), c.maxBody)
	assert.NotNil(t, c.Jar())
}

// TestGetDoesNotFollowRedirects verifies that a redirect is returned as-is
func TestGetDoesNotFollowRedirects(t *testing.T) {
	var followed int32
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin/current/info", http.StatusFound)
	})
	mux.HandleFunc("/admin/current/info", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&followed, 1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newClient(Options{})
	resp, err := c.Get(context.Background(), endpointOf(t, srv), "/admin/")
	require.NoError(t, err)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, resp.Redirect())
	assert.False(t, resp.Success())
	assert.Equal(t, "/admin/current/info", resp.Header.Get("Location"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&followed))
}

// TestPostSendsFormAndMergesCookies checks form encoding and cookie capture
func TestPostSendsFormAndMergesCookies(t *testing.T) {
	var gotCookie string
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "admin", r.PostForm.Get("username"))
		http.SetCookie(w, &http.Cookie{Name: session.AuthCookie, Value: "cred-1"})
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(session.AuthCookie); err == nil {
			gotCookie = c.Value
		}
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newClient(Options{})
	ep := endpointOf(t, srv)

	resp, err := c.Post(context.Background(), ep, "/login", url.Values{"username": {"admin"}})
	require.NoError(t, err)
	assert.True(t, resp.SetsCookie(session.AuthCookie))
	assert.False(t, resp.SetsCookie(session.SessionCookie))
	assert.True(t, c.Jar().Has(ep.Key(), session.AuthCookie), "cookie merged before return")

	resp, err = c.Get(context.Background(), ep, "/info")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "ok", resp.Body)
	assert.Equal(t, "cred-1", gotCookie, "cookie presented on next call")
}

// TestCookiesIsolatedPerEndpoint uses two servers on the same host
func TestCookiesIsolatedPerEndpoint(t *testing.T) {
	setter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: session.SessionCookie, Value: "only-here"})
	}))
	defer setter.Close()

	var leaked int32
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(session.SessionCookie); err == nil {
			atomic.StoreInt32(&leaked, 1)
		}
	}))
	defer other.Close()

	c := newClient(Options{})
	_, err := c.Get(context.Background(), endpointOf(t, setter), "/")
	require.NoError(t, err)
	_, err = c.Get(context.Background(), endpointOf(t, other), "/")
	require.NoError(t, err)

	assert.Equal(t, int32(0), atomic.LoadInt32(&leaked))
}

// TestUnreachableOnClosedServer verifies connection failures map to ErrUnreachable
func TestUnreachableOnClosedServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	ep := endpointOf(t, srv)
	srv.Close()

	c := newClient(Options{Timeout: time.Second})
	_, err := c.Get(context.Background(), ep, "/admin/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))
}

// TestUnreachableOnTimeout verifies timeouts map to the same error
func TestUnreachableOnTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newClient(Options{Timeout: 50 * time.Millisecond})
	_, err := c.Post(context.Background(), endpointOf(t, srv), "/admin/current/change", url.Values{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestNonSuccessStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(Options{})
	resp, err := c.Get(context.Background(), endpointOf(t, srv), "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, resp.OK())
}

func TestBodyIsCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := newClient(Options{MaxBodyBytes: 4})
	resp, err := c.Get(context.Background(), endpointOf(t, srv), "/")
	require.NoError(t, err)
	assert.Equal(t, "0123", resp.Body)
}

// TestPacingCancelledContext checks that a cancelled wait is reported as unreachable
func TestPacingCancelledContext(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := newClient(Options{RequestsPerSecond: 0.001, Burst: 1})
	ep := endpointOf(t, srv)

	_, err := c.Get(context.Background(), ep, "/")
	require.NoError(t, err, "first request uses the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, ep, "/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestLimiterPerEndpoint(t *testing.T) {
	c := newClient(Options{RequestsPerSecond: 1})
	a := c.limiter("127.0.0.1:8000")
	b := c.limiter("127.0.0.1:8001")
	assert.NotSame(t, a, b)
	assert.Same(t, a, c.limiter("127.0.0.1:8000"))
}

func TestResponseHelpers(t *testing.T) {
	r := &Response{StatusCode: http.StatusSeeOther, SetCookies: []*http.Cookie{
		{Name: session.AuthCookie, Value: ""},
		{Name: session.SessionCookie, Value: "x"},
	}}
	assert.True(t, r.Redirect())
	assert.False(t, r.SetsCookie(session.AuthCookie), "empty value does not count")
	assert.True(t, r.SetsCookie(session.SessionCookie))
}
