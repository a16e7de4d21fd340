// Package webadmin speaks the cookie-and-HTML protocol of the game server's
// web administration UI. Each protocol step is one method returning a plain
// outcome (bool, string, int) rather than HTTP detail.
package webadmin

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/dreamware/kf2rotator/internal/extract"
	"github.com/dreamware/kf2rotator/internal/fleet"
	"github.com/dreamware/kf2rotator/internal/session"
	"github.com/dreamware/kf2rotator/internal/transport"
)

// UnknownPlayers is returned by PlayerCount when the count cannot be read.
const UnknownPlayers = -1

// Page paths, relative to the admin prefix.
const (
	LoginPage  = "/"
	InfoPage   = "/current/info"
	ChangePage = "/current/change"
)

// AuthStatus is the outcome of probing a protected page.
type AuthStatus int

const (
	NotAuthenticated AuthStatus = iota
	Authenticated
	ServerUnreachable
)

func (s AuthStatus) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case ServerUnreachable:
		return "unreachable"
	default:
		return "not-authenticated"
	}
}

// Transport is the subset of transport.Client the protocol needs.
type Transport interface {
	Get(ctx context.Context, ep fleet.Endpoint, path string) (*transport.Response, error)
	Post(ctx context.Context, ep fleet.Endpoint, path string, form url.Values) (*transport.Response, error)
}

// Client implements the admin UI protocol on top of a Transport.
type Client struct {
	transport Transport
	extractor extract.Extractor
	prefix    string
	log       *slog.Logger
}

// NewClient returns a protocol client. adminPath is the page prefix, e.g.
// "/admin" or "/ServerAdmin"; a nil extractor selects the stock patterns.
func NewClient(t Transport, e extract.Extractor, adminPath string, log *slog.Logger) *Client {
	if e == nil {
		e = extract.NewRegexExtractor()
	}
	if log == nil {
		log = slog.Default()
	}
	for len(adminPath) > 0 && adminPath[len(adminPath)-1] == '/' {
		adminPath = adminPath[:len(adminPath)-1]
	}
	return &Client{transport: t, extractor: e, prefix: adminPath, log: log}
}

// Path returns the absolute path of page under the admin prefix.
func (c *Client) Path(page string) string {
	return c.prefix + page
}

// IsResponding reports whether the login page answers with a success or
// redirect status.
func (c *Client) IsResponding(ctx context.Context, ep fleet.Endpoint) bool {
	resp, err := c.transport.Get(ctx, ep, c.Path(LoginPage))
	if err != nil {
		c.log.Debug("liveness probe failed", "endpoint", ep.Key(), "err", err)
		return false
	}
	return resp.Success() || resp.Redirect()
}

// AuthStatus probes the protected info page. An OK page without the login
// form marker means the session is authenticated.
func (c *Client) AuthStatus(ctx context.Context, ep fleet.Endpoint) AuthStatus {
	resp, err := c.transport.Get(ctx, ep, c.Path(InfoPage))
	if err != nil {
		if errors.Is(err, transport.ErrUnreachable) {
			return ServerUnreachable
		}
		return NotAuthenticated
	}
	if !resp.OK() || c.extractor.Contains(resp.Body, extract.LoginForm) {
		return NotAuthenticated
	}
	return Authenticated
}

// IsAuthenticated is AuthStatus collapsed to a bool.
func (c *Client) IsAuthenticated(ctx context.Context, ep fleet.Endpoint) bool {
	return c.AuthStatus(ctx, ep) == Authenticated
}

// RefreshSession drops the endpoint's cookies and visits the login page to
// obtain a fresh sessionid. It reports whether the response set one.
func (c *Client) RefreshSession(ctx context.Context, ep fleet.Endpoint) bool {
	if j := c.jar(); j != nil {
		j.Clear(ep.Key())
	}
	resp, err := c.transport.Get(ctx, ep, c.Path(LoginPage))
	if err != nil {
		return false
	}
	return resp.SetsCookie(session.SessionCookie)
}

// FetchLoginToken returns the anti-forgery token of the login form, or "".
func (c *Client) FetchLoginToken(ctx context.Context, ep fleet.Endpoint) string {
	resp, err := c.transport.Get(ctx, ep, c.Path(LoginPage))
	if err != nil || !resp.OK() {
		return ""
	}
	token, ok := c.extractor.Find(resp.Body, extract.Token)
	if !ok {
		return ""
	}
	return token
}

// Login posts the credentials. It succeeds only when the response is a
// redirect and sets an authcred cookie.
func (c *Client) Login(ctx context.Context, ep fleet.Endpoint, token, username, password string) bool {
	form := url.Values{
		"token":         {token},
		"password_hash": {""},
		"username":      {username},
		"password":      {password},
		"remember":      {"-1"},
	}
	resp, err := c.transport.Post(ctx, ep, c.Path(LoginPage), form)
	if err != nil {
		c.log.Debug("login request failed", "endpoint", ep.Key(), "err", err)
		return false
	}
	if !resp.Redirect() {
		c.log.Debug("login did not redirect", "endpoint", ep.Key(), "status", resp.StatusCode)
		return false
	}
	if !resp.SetsCookie(session.AuthCookie) {
		c.log.Debug("login set no authcred cookie", "endpoint", ep.Key())
		return false
	}
	return true
}

// PlayerCount reads the current player count from the info page, or
// UnknownPlayers.
func (c *Client) PlayerCount(ctx context.Context, ep fleet.Endpoint) int {
	resp, err := c.transport.Get(ctx, ep, c.Path(InfoPage))
	if err != nil || !resp.OK() {
		return UnknownPlayers
	}
	return extract.Players(c.extractor, resp.Body)
}

// CurrentMap returns the map selected on the change page, or "".
func (c *Client) CurrentMap(ctx context.Context, ep fleet.Endpoint) string {
	resp, err := c.transport.Get(ctx, ep, c.Path(ChangePage))
	if err != nil || !resp.OK() {
		return ""
	}
	m, ok := c.extractor.Find(resp.Body, extract.SelectedMap)
	if !ok {
		return ""
	}
	return m
}

// SwitchMap requests a change to targetMap. It succeeds only on an OK
// response carrying the confirmation phrase.
func (c *Client) SwitchMap(ctx context.Context, ep fleet.Endpoint, mode fleet.GameMode, targetMap, configDir string) bool {
	form := url.Values{
		"gametype":          {string(mode)},
		"map":               {targetMap},
		"mutatorGroupCount": {"0"},
		"urlextra":          {"?ConfigSubDir=" + configDir},
		"action":            {"change"},
	}
	resp, err := c.transport.Post(ctx, ep, c.Path(ChangePage), form)
	if err != nil {
		c.log.Debug("change request failed", "endpoint", ep.Key(), "err", err)
		return false
	}
	if !resp.OK() {
		return false
	}
	return c.extractor.Contains(resp.Body, extract.ChangeConfirmed)
}

// jar returns the cookie jar when the transport exposes one.
func (c *Client) jar() *session.Jar {
	if j, ok := c.transport.(interface{ Jar() *session.Jar }); ok {
		return j.Jar()
	}
	return nil
}
