package stubadmin

import (
	"net/url"

	"golang.org/x/exp/slices"
)

// SetDown makes every request answer 503 while down is true.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// SetConfirmChanges controls whether change requests are accepted.
func (s *Server) SetConfirmChanges(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmChanges = v
}

// SetIssueAuthCookie controls whether a successful login sets authcred.
func (s *Server) SetIssueAuthCookie(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueAuthCookie = v
}

// SetIssueSessionCookie controls whether the login page sets sessionid.
func (s *Server) SetIssueSessionCookie(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueSessionCookie = v
}

// SetPlayers sets the current player count.
func (s *Server) SetPlayers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = n
}

// SetMap sets the currently selected map.
func (s *Server) SetMap(m string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentMap = m
	if !slices.Contains(s.maps, m) {
		s.maps = append(s.maps, m)
	}
}

// Map returns the currently selected map.
func (s *Server) Map() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentMap
}

// Players returns the current player count.
func (s *Server) Players() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players
}

// GameMode returns the game mode of the last accepted change.
func (s *Server) GameMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gameMode
}

// Prefix returns the admin path prefix.
func (s *Server) Prefix() string {
	return s.prefix
}

// ExpireSessions forgets every issued session and credential, as a server
// restart after a map change does.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]bool)
	s.auths = make(map[string]bool)
}

// Requests returns how often method path was requested.
func (s *Server) Requests(method, path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests[method+" "+path]
}

// TotalRequests returns the number of requests served, including refused ones.
func (s *Server) TotalRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.requests {
		n += c
	}
	return n
}

// ChangeRequests returns the forms of every change POST received.
func (s *Server) ChangeRequests() []url.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]url.Values, len(s.changeForms))
	copy(out, s.changeForms)
	return out
}

// Logins returns the number of credential POSTs received.
func (s *Server) Logins() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logins
}
