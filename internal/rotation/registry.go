package rotation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/kf2rotator/internal/fleet"
)

// entry pairs a server with the runtime state only it owns.
type entry struct {
	desc        fleet.ServerDescriptor
	endpoint    fleet.Endpoint
	state       ServerRuntimeState
	lastOutcome Outcome
	lastCheck   time.Time
	switches    int
}

// ServerStatus is a point-in-time copy of one registry entry.
type ServerStatus struct {
	Name                    string         `json:"name"`
	Endpoint                string         `json:"endpoint"`
	EndpointKey             string         `json:"endpoint_key"`
	DesiredMap              string         `json:"desired_map"`
	GameMode                fleet.GameMode `json:"game_mode"`
	Disabled                bool           `json:"disabled"`
	Down                    bool           `json:"down"`
	ConsecutiveUnresponsive int            `json:"consecutive_unresponsive"`
	LastOutcome             Outcome        `json:"last_outcome"`
	LastCheck               time.Time      `json:"last_check"`
	Switches                int            `json:"switches"`
}

// Registry holds one entry per configured server, in configuration order.
// Entries are addressed by index, never by name, so two servers can never
// share state.
//
// Thread safety: the scheduler checks an entry's state out, runs a cycle on
// the copy and commits it back under the lock. Readers (the status
// endpoint) only ever see committed copies.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
}

// NewRegistry resolves every descriptor to its endpoint.
func NewRegistry(settings fleet.GlobalSettings, servers []fleet.ServerDescriptor) (*Registry, error) {
	r := &Registry{entries: make([]*entry, 0, len(servers))}
	for _, d := range servers {
		ep, err := settings.EndpointFor(d)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", d.Name, err)
		}
		r.entries = append(r.entries, &entry{desc: d, endpoint: ep})
	}
	return r, nil
}

// Len returns the number of servers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// checkout returns the descriptor, endpoint and a copy of the state of entry i.
func (r *Registry) checkout(i int) (fleet.ServerDescriptor, fleet.Endpoint, ServerRuntimeState) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.entries[i]
	return e.desc, e.endpoint, e.state
}

// commit stores the state produced by a cycle on entry i.
func (r *Registry) commit(i int, st ServerRuntimeState, o Outcome, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[i]
	e.state = st
	e.lastOutcome = o
	e.lastCheck = at
	if o == Switched {
		e.switches++
	}
}

// stateOf returns a copy of the runtime state of the first server named name.
func (r *Registry) stateOf(name string) (ServerRuntimeState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.desc.Name == name {
			return e.state, true
		}
	}
	return ServerRuntimeState{}, false
}

// Snapshot returns the status of every server sorted by name.
func (r *Registry) Snapshot() []ServerStatus {
	r.mu.RLock()
	out := make([]ServerStatus, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, ServerStatus{
			Name:                    e.desc.Name,
			Endpoint:                e.endpoint.String(),
			EndpointKey:             e.endpoint.Key(),
			DesiredMap:              e.desc.DesiredMap,
			GameMode:                e.desc.GameMode,
			Disabled:                e.desc.Disabled,
			Down:                    e.state.Down,
			ConsecutiveUnresponsive: e.state.ConsecutiveUnresponsive,
			LastOutcome:             e.lastOutcome,
			LastCheck:               e.lastCheck,
			Switches:                e.switches,
		})
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b ServerStatus) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// DownCount returns how many servers are marked down.
func (r *Registry) DownCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.state.Down {
			n++
		}
	}
	return n
}
