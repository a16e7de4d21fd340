// Package stubadmin simulates the web administration UI of one game server.
// It serves the login, info and change pages with the same markers, cookies
// and status codes as the real UI, and is used by tests and by the
// stubadmin command for local runs.
package stubadmin

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/kf2rotator/internal/extract"
	"github.com/dreamware/kf2rotator/internal/session"
)

// Options configures a simulated server.
type Options struct {
	Prefix     string   // admin path prefix, default "/admin"
	Username   string   // accepted user, default "admin"
	Password   string   // accepted password, default "admin"
	Map        string   // initially selected map
	Maps       []string // maps offered in the change form
	Players    int      // current player count
	Capacity   int      // player capacity, default 6
	GameMode   string   // initially selected game mode
	FixedToken string   // serve this token instead of a random one
}

// Server is one simulated admin UI. It is safe for concurrent use.
//
// Behavior knobs (all default to the real UI's behavior):
//   - SetDown: every request answers 503
//   - SetConfirmChanges(false): change requests answer 200 without the confirmation phrase
//   - SetIssueAuthCookie(false): logins redirect without setting authcred
//   - SetIssueSessionCookie(false): the login page sets no sessionid
type Server struct {
	mu sync.RWMutex

	prefix   string
	username string
	password string

	token      string
	fixedToken string
	sessions   map[string]bool // issued sessionid values
	auths      map[string]bool // valid authcred values

	currentMap string
	maps       []string
	players    int
	capacity   int
	gameMode   string

	down               bool
	confirmChanges     bool
	issueAuthCookie    bool
	issueSessionCookie bool

	requests    map[string]int // "METHOD path" -> count
	changeForms []url.Values
	logins      int
}

// New returns a simulated server configured by opts.
func New(opts Options) *Server {
	if opts.Prefix == "" {
		opts.Prefix = "/admin"
	}
	if opts.Username == "" {
		opts.Username = "admin"
	}
	if opts.Password == "" {
		opts.Password = "admin"
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 6
	}
	if opts.Map == "" {
		opts.Map = "kf-bioticslab"
	}
	if opts.GameMode == "" {
		opts.GameMode = "KFGameContent.KFGameInfo_Survival"
	}
	maps := append([]string(nil), opts.Maps...)
	if len(maps) == 0 {
		maps = []string{"kf-bioticslab", "kf-burningparis", "kf-outpost", "kf-steamfortress"}
	}
	if !slices.Contains(maps, opts.Map) {
		maps = append(maps, opts.Map)
	}

	return &Server{
		prefix:             strings.TrimRight(opts.Prefix, "/"),
		username:           opts.Username,
		password:           opts.Password,
		fixedToken:         opts.FixedToken,
		sessions:           make(map[string]bool),
		auths:              make(map[string]bool),
		currentMap:         opts.Map,
		maps:               maps,
		players:            opts.Players,
		capacity:           opts.Capacity,
		gameMode:           opts.GameMode,
		confirmChanges:     true,
		issueAuthCookie:    true,
		issueSessionCookie: true,
		requests:           make(map[string]int),
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.Method+" "+r.URL.Path]++
	down := s.down
	s.mu.Unlock()

	if down {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	switch r.URL.Path {
	case s.prefix + "/", s.prefix:
		switch r.Method {
		case http.MethodGet:
			s.handleLoginPage(w, r)
		case http.MethodPost:
			s.handleLogin(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case s.prefix + "/current/info":
		if !s.authenticated(r) {
			s.writeLoginPage(w, "")
			return
		}
		s.handleInfo(w, r)
	case s.prefix + "/current/change":
		if !s.authenticated(r) {
			s.writeLoginPage(w, "")
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.handleChangePage(w, r)
		case http.MethodPost:
			s.handleChange(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	if s.issueSessionCookie {
		sid := uuid.NewString()
		s.sessions[sid] = true
		http.SetCookie(w, &http.Cookie{Name: session.SessionCookie, Value: sid, Path: s.prefix})
	}
	s.mu.Unlock()

	s.writeLoginPage(w, "")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	sid, _ := r.Cookie(session.SessionCookie)

	s.mu.Lock()
	s.logins++
	ok := (!s.issueSessionCookie || (sid != nil && s.sessions[sid.Value])) &&
		r.PostForm.Get("token") != "" &&
		r.PostForm.Get("token") == s.token &&
		r.PostForm.Get("username") == s.username &&
		r.PostForm.Get("password") == s.password
	issue := s.issueAuthCookie
	var cred string
	if ok && issue {
		cred = uuid.NewString()
		s.auths[cred] = true
	}
	s.mu.Unlock()

	if !ok {
		s.writeLoginPage(w, "Invalid username or password")
		return
	}
	if cred != "" {
		http.SetCookie(w, &http.Cookie{Name: session.AuthCookie, Value: cred, Path: s.prefix})
	}
	http.Redirect(w, r, s.prefix+"/current/info", http.StatusFound)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	players, capacity, current := s.players, s.capacity, s.currentMap
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body>
<h2>Current game</h2>
<dl id="currentGame"><dt>Map</dt><dd>%s</dd></dl>
<dl id="currentRules">
  <dt>Difficulty</dt><dd>Hard</dd>
  <dt>Players</dt><dd>%d/%d</dd>
</dl>
</body></html>`, html.EscapeString(current), players, capacity)
}

func (s *Server) handleChangePage(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, `<html><body><form method="post" action="%s/current/change">`, s.prefix)
	fmt.Fprintf(&b, "\n"+`<select id="gametype" name="gametype"><option value="%s" selected="selected">mode</option></select>`, html.EscapeString(s.gameMode))
	b.WriteString("\n" + `<select id="map" name="map">` + "\n")
	for _, m := range s.maps {
		if m == s.currentMap {
			fmt.Fprintf(&b, `  <option value="%s" selected="selected">%s</option>`+"\n", html.EscapeString(m), html.EscapeString(m))
		} else {
			fmt.Fprintf(&b, `  <option value="%s">%s</option>`+"\n", html.EscapeString(m), html.EscapeString(m))
		}
	}
	b.WriteString("</select>\n</form></body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.changeForms = append(s.changeForms, r.PostForm)
	confirm := s.confirmChanges && r.PostForm.Get("action") == "change" && r.PostForm.Get("map") != ""
	if confirm {
		s.currentMap = r.PostForm.Get("map")
		s.gameMode = r.PostForm.Get("gametype")
		if !slices.Contains(s.maps, s.currentMap) {
			s.maps = append(s.maps, s.currentMap)
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if confirm {
		fmt.Fprintf(w, `<html><body><div class="message">%s</div></body></html>`, extract.ConfirmationPhrase)
		return
	}
	_, _ = w.Write([]byte(`<html><body><div class="message">Change request ignored</div></body></html>`))
}

// writeLoginPage renders the login form with a fresh token.
func (s *Server) writeLoginPage(w http.ResponseWriter, message string) {
	s.mu.Lock()
	if s.fixedToken != "" {
		s.token = s.fixedToken
	} else {
		s.token = uuid.NewString()
	}
	token := s.token
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body>
<form id="loginform" method="post" action="%s/">
  <input type="hidden" name="token" value="%s" />
  <input type="hidden" name="password_hash" value="" />
  <input type="text" name="username" />
  <input type="password" name="password" />
  <p class="error">%s</p>
</form>
</body></html>`, s.prefix, token, html.EscapeString(message))
}

func (s *Server) authenticated(r *http.Request) bool {
	c, err := r.Cookie(session.AuthCookie)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auths[c.Value]
}
