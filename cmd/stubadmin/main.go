// Package main runs one or more simulated game server admin UIs for local
// runs of the rotator, without a real game server.
//
// Every port gets its own independent simulated server with the login,
// info and change pages. A separate control listener lets an operator
// change player counts, maps and failure modes while the rotator runs.
//
// Architecture:
//
//	┌──────────────────────────────────────────┐
//	│               stubadmin                  │
//	├──────────────────────────────────────────┤
//	│  :8001  /admin/...   simulated server 1  │
//	│  :8002  /admin/...   simulated server 2  │
//	│  ...                                     │
//	├──────────────────────────────────────────┤
//	│  control listener:                       │
//	│    GET  /servers          all states     │
//	│    GET  /servers/{port}   one state      │
//	│    POST /servers/{port}   change knobs   │
//	│    GET  /health           liveness       │
//	└──────────────────────────────────────────┘
//
// Configuration:
//   - STUB_HOST: listen host (default: "127.0.0.1")
//   - STUB_PORTS: comma separated admin UI ports (default: "8001,8002")
//   - STUB_PREFIX: admin path prefix (default: "/admin")
//   - STUB_USERNAME / STUB_PASSWORD: accepted credentials (default: admin/admin)
//   - STUB_MAP: initial map of every server (default: "kf-outpost")
//   - STUB_CONTROL_ADDR: control listener, empty disables it (default: "127.0.0.1:8099")
//
// Example usage:
//
//	STUB_PORTS=8001,8002 ./stubadmin
//
//	# put two players on the server at :8001
//	curl -X POST 'localhost:8099/servers/8001?players=2'
//
//	# make :8002 stop answering
//	curl -X POST 'localhost:8099/servers/8002?down=true'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/kf2rotator/internal/logging"
	"github.com/dreamware/kf2rotator/internal/stubadmin"
)

func main() {
	log, closer := logging.New(logging.Options{
		Level:  getenv("STUB_LOG_LEVEL", "info"),
		Format: getenv("STUB_LOG_FORMAT", "text"),
	})
	defer closer.Close()

	ports, err := parsePorts(getenv("STUB_PORTS", "8001,8002"))
	if err != nil {
		log.Error("invalid STUB_PORTS", "err", err)
		os.Exit(1)
	}

	f := newStubFleet(ports, stubadmin.Options{
		Prefix:   getenv("STUB_PREFIX", "/admin"),
		Username: getenv("STUB_USERNAME", "admin"),
		Password: getenv("STUB_PASSWORD", "admin"),
		Map:      getenv("STUB_MAP", "kf-outpost"),
	})

	host := getenv("STUB_HOST", "127.0.0.1")
	var servers []*http.Server
	for _, port := range f.ports() {
		servers = append(servers, &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           f.get(port),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}
	if addr := getenv("STUB_CONTROL_ADDR", "127.0.0.1:8099"); addr != "" {
		servers = append(servers, &http.Server{
			Addr:              addr,
			Handler:           f.routes(),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	for _, s := range servers {
		s := s
		go func() {
			log.Info("listening", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("listen failed", "addr", s.Addr, "err", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		_ = s.Shutdown(ctx)
	}
	log.Info("stubadmin stopped")
}

// parsePorts parses a comma separated port list. Duplicates are rejected.
func parsePorts(s string) ([]int, error) {
	var ports []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		p, err := strconv.Atoi(field)
		if err != nil || p < 1 || p > 65535 {
			return nil, fmt.Errorf("invalid port %q", field)
		}
		if slices.Contains(ports, p) {
			return nil, fmt.Errorf("duplicate port %d", p)
		}
		ports = append(ports, p)
	}
	if len(ports) == 0 {
		return nil, errors.New("no ports given")
	}
	return ports, nil
}

// stubFleet owns one simulated server per port.
type stubFleet struct {
	mu      sync.RWMutex
	servers map[int]*stubadmin.Server
}

func newStubFleet(ports []int, opts stubadmin.Options) *stubFleet {
	f := &stubFleet{servers: make(map[int]*stubadmin.Server, len(ports))}
	for _, p := range ports {
		f.servers[p] = stubadmin.New(opts)
	}
	return f
}

func (f *stubFleet) get(port int) *stubadmin.Server {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.servers[port]
}

func (f *stubFleet) ports() []int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]int, 0, len(f.servers))
	for p := range f.servers {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// stubState is the control API view of one simulated server.
type stubState struct {
	Port     int    `json:"port"`
	Map      string `json:"map"`
	GameMode string `json:"game_mode"`
	Players  int    `json:"players"`
	Logins   int    `json:"logins"`
	Changes  int    `json:"changes"`
	Requests int    `json:"requests"`
}

func stateOf(port int, s *stubadmin.Server) stubState {
	return stubState{
		Port:     port,
		Map:      s.Map(),
		GameMode: s.GameMode(),
		Players:  s.Players(),
		Logins:   s.Logins(),
		Changes:  len(s.ChangeRequests()),
		Requests: s.TotalRequests(),
	}
}

func (f *stubFleet) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/servers", f.handleList)
	mux.HandleFunc("/servers/", f.handleServer)
	return mux
}

func (f *stubFleet) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var out []stubState
	for _, p := range f.ports() {
		out = append(out, stateOf(p, f.get(p)))
	}
	writeJSON(w, out)
}

// handleServer reads or changes one simulated server. POST accepts the
// query or form parameters players, map, down, confirm, auth_cookie and
// expire_sessions.
func (f *stubFleet) handleServer(w http.ResponseWriter, r *http.Request) {
	port, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/servers/"))
	if err != nil {
		http.Error(w, "invalid port", http.StatusBadRequest)
		return
	}
	s := f.get(port)
	if s == nil {
		http.Error(w, "unknown port", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if err := applyKnobs(s, r); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, stateOf(port, s))
}

func applyKnobs(s *stubadmin.Server, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	if v := r.Form.Get("players"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid players %q", v)
		}
		s.SetPlayers(n)
	}
	if v := r.Form.Get("map"); v != "" {
		s.SetMap(v)
	}
	bools := []struct {
		name string
		set  func(bool)
	}{
		{"down", s.SetDown},
		{"confirm", s.SetConfirmChanges},
		{"auth_cookie", s.SetIssueAuthCookie},
		{"session_cookie", s.SetIssueSessionCookie},
	}
	for _, b := range bools {
		v := r.Form.Get(b.name)
		if v == "" {
			continue
		}
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q", b.name, v)
		}
		b.set(on)
	}
	if r.Form.Get("expire_sessions") != "" {
		s.ExpireSessions()
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
