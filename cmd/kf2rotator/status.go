package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/kf2rotator/internal/rotation"
	"github.com/dreamware/kf2rotator/internal/session"
)

// statusServer exposes the registry and the cookie jar read-only over HTTP.
type statusServer struct {
	registry *rotation.Registry
	jar      *session.Jar // nil hides session details
	started  time.Time

	mu        sync.RWMutex
	lastCycle *rotation.CycleReport
}

func newStatusServer(r *rotation.Registry, jar *session.Jar) *statusServer {
	return &statusServer{registry: r, jar: jar, started: time.Now()}
}

func (s *statusServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/servers", s.handleListServers)
	mux.HandleFunc("/servers/", s.handleServer)
	mux.HandleFunc("/sessions", s.handleSessions)
	return mux
}

// recordCycle is registered as the scheduler's cycle callback.
func (s *statusServer) recordCycle(r rotation.CycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycle = &r
}

// serverView is one server as served by the status API.
type serverView struct {
	rotation.ServerStatus
	Session *session.PartitionInfo `json:"session,omitempty"`
}

func (s *statusServer) view(st rotation.ServerStatus) serverView {
	v := serverView{ServerStatus: st}
	if s.jar != nil {
		if info, ok := s.jar.Info(st.EndpointKey); ok {
			v.Session = &info
		}
	}
	return v
}

type cycleSummary struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Duration string    `json:"duration"`
	Switched int       `json:"switched"`
	Aborted  int       `json:"aborted"`
}

func (s *statusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := struct {
		Status  string        `json:"status"`
		Uptime  string        `json:"uptime"`
		Servers int           `json:"servers"`
		Down    int           `json:"down"`
		Cycle   *cycleSummary `json:"last_cycle,omitempty"`
	}{
		Status:  "ok",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Servers: s.registry.Len(),
		Down:    s.registry.DownCount(),
	}

	s.mu.RLock()
	if c := s.lastCycle; c != nil {
		resp.Cycle = &cycleSummary{
			ID:       c.ID,
			Started:  c.Started,
			Duration: c.Duration.String(),
			Switched: c.Count(rotation.Switched),
			Aborted:  c.Aborted(),
		}
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}

// handleListServers serves /servers. An optional outcome query parameter
// keeps only the servers whose last cycle ended that way.
func (s *statusServer) handleListServers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var filter *rotation.Outcome
	if raw := r.URL.Query().Get("outcome"); raw != "" {
		var o rotation.Outcome
		if err := o.UnmarshalText([]byte(raw)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter = &o
	}

	out := []serverView{}
	for _, st := range s.registry.Snapshot() {
		if filter != nil && st.LastOutcome != *filter {
			continue
		}
		out = append(out, s.view(st))
	}
	writeJSON(w, http.StatusOK, struct {
		Servers []serverView `json:"servers"`
	}{Servers: out})
}

// handleServer serves /servers/{name}.
func (s *statusServer) handleServer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/servers/")
	if name == "" {
		http.Error(w, "server name required", http.StatusBadRequest)
		return
	}

	snap := s.registry.Snapshot()
	idx := slices.IndexFunc(snap, func(st rotation.ServerStatus) bool { return st.Name == name })
	if idx < 0 {
		http.Error(w, "server not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.view(snap[idx]))
}

// handleSessions serves /sessions: every endpoint that holds cookie state.
func (s *statusServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := []session.PartitionInfo{}
	if s.jar != nil {
		for _, key := range s.jar.Keys() {
			if info, ok := s.jar.Info(key); ok {
				out = append(out, info)
			}
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Sessions []session.PartitionInfo `json:"sessions"`
	}{Sessions: out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
