package rotation

import "fmt"

// ServerRuntimeState is the memory the controller keeps for one server
// between cycles. It is owned by exactly one registry entry and handed to
// RunCycle by pointer; nothing else mutates it.
type ServerRuntimeState struct {
	// ConsecutiveUnresponsive counts liveness probes missed in a row.
	// It is reset to 0 by the first successful probe.
	ConsecutiveUnresponsive int `json:"consecutive_unresponsive"`

	// Down is set once ConsecutiveUnresponsive reaches the threshold.
	// It is never cleared; a down server is skipped until restart.
	Down bool `json:"down"`
}

// Outcome is the result of one cycle for one server.
type Outcome int

const (
	// NotChecked is the outcome of a server no cycle has visited yet.
	NotChecked Outcome = iota
	Disabled
	Down
	Cancelled
	Unresponsive
	MarkedDown
	TokenMissing
	LoginFailed
	Busy
	Undetermined
	OnDesiredMap
	Switched
	SwitchFailed
)

var outcomeNames = map[Outcome]string{
	NotChecked:   "not-checked",
	Disabled:     "disabled",
	Down:         "down",
	Cancelled:    "cancelled",
	Unresponsive: "unresponsive",
	MarkedDown:   "marked-down",
	TokenMissing: "token-missing",
	LoginFailed:  "login-failed",
	Busy:         "busy",
	Undetermined: "undetermined",
	OnDesiredMap: "on-desired-map",
	Switched:     "switched",
	SwitchFailed: "switch-failed",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText renders the outcome by name in JSON snapshots.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (o *Outcome) UnmarshalText(b []byte) error {
	for k, v := range outcomeNames {
		if v == string(b) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// Aborted reports whether the cycle stopped before evaluating rotation
// because of a protocol or authentication problem.
func (o Outcome) Aborted() bool {
	return o == TokenMissing || o == LoginFailed
}
