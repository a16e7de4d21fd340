package fleet

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// GameMode is the fully qualified game info class the admin UI expects in
// the "gametype" field of a change request.
type GameMode string

const (
	Endless        GameMode = "KFGameContent.KFGameInfo_Endless"
	Objective      GameMode = "KFGameContent.KFGameInfo_Objective"
	Survival       GameMode = "KFGameContent.KFGameInfo_Survival"
	VersusSurvival GameMode = "KFGameContent.KFGameInfo_VersusSurvival"
	WeeklySurvival GameMode = "KFGameContent.KFGameInfo_WeeklySurvival"
)

// KnownGameModes lists every game mode shipped with the stock server.
var KnownGameModes = []GameMode{Endless, Objective, Survival, VersusSurvival, WeeklySurvival}

// IsKnown reports whether m is one of the stock game modes.
func (m GameMode) IsKnown() bool {
	for _, k := range KnownGameModes {
		if k == m {
			return true
		}
	}
	return false
}

// ServerDescriptor identifies one managed server process. It is built once
// from configuration and never mutated afterwards.
type ServerDescriptor struct {
	Name       string   `json:"name" yaml:"name"`               // Unique key, used in log lines
	Port       int      `json:"port" yaml:"port"`               // Port of the web admin UI
	DesiredMap string   `json:"desired_map" yaml:"desired_map"` // Map the server should idle on
	GameMode   GameMode `json:"game_mode" yaml:"game_mode"`     // Sent as "gametype" on map change
	ConfigDir  string   `json:"config_dir" yaml:"config_dir"`   // Sent as ?ConfigSubDir= on map change
	Disabled   bool     `json:"disabled" yaml:"disabled"`       // Skip without any network calls
}

// GlobalSettings holds the values shared by every server in the fleet.
type GlobalSettings struct {
	ServerAddress         string        // Base address, scheme and host only (e.g. http://192.168.1.222)
	Username              string        // Admin UI user
	Password              string        // Admin UI password
	DesiredMap            string        // Fallback for servers without their own DesiredMap
	AdminPath             string        // Prefix of the admin UI pages (e.g. /ServerAdmin)
	PollInterval          time.Duration // Pause between two complete cycles
	RequestTimeout        time.Duration // Upper bound for every single request
	UnresponsiveThreshold int           // Consecutive missed probes before a server is marked down
	RequestsPerSecond     float64       // Per-endpoint request pacing, 0 disables it
}

// Endpoint is the (base address, port) pair of one server's admin UI.
// Session cookies are scoped to an endpoint and never shared between two.
type Endpoint struct {
	Base string // scheme://host, without port or path
	Port int
}

// NewEndpoint returns the endpoint of port on the given base address.
// A port already present in base is replaced.
func NewEndpoint(base string, port int) (Endpoint, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse server address %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Endpoint{}, fmt.Errorf("server address %q must include scheme and host", base)
	}
	if port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("port %d out of range", port)
	}
	host := u.Hostname()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return Endpoint{Base: u.Scheme + "://" + host, Port: port}, nil
}

// Key returns host:port, the partition key for per-endpoint state.
func (e Endpoint) Key() string {
	host := e.Base
	if u, err := url.Parse(e.Base); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	return net.JoinHostPort(host, strconv.Itoa(e.Port))
}

// URL returns the absolute URL of path on this endpoint.
func (e Endpoint) URL(path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return e.Base + ":" + strconv.Itoa(e.Port) + path
}

// String implements fmt.Stringer.
func (e Endpoint) String() string {
	return e.URL("")
}

// EndpointFor returns the endpoint of d on the shared server address.
func (g GlobalSettings) EndpointFor(d ServerDescriptor) (Endpoint, error) {
	return NewEndpoint(g.ServerAddress, d.Port)
}
