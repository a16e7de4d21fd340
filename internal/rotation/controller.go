package rotation

import (
	"context"
	"log/slog"

	"github.com/dreamware/kf2rotator/internal/fleet"
	"github.com/dreamware/kf2rotator/internal/webadmin"
)

// Admin is the protocol surface the controller drives. webadmin.Client
// implements it.
type Admin interface {
	IsResponding(ctx context.Context, ep fleet.Endpoint) bool
	IsAuthenticated(ctx context.Context, ep fleet.Endpoint) bool
	RefreshSession(ctx context.Context, ep fleet.Endpoint) bool
	FetchLoginToken(ctx context.Context, ep fleet.Endpoint) string
	Login(ctx context.Context, ep fleet.Endpoint, token, username, password string) bool
	PlayerCount(ctx context.Context, ep fleet.Endpoint) int
	CurrentMap(ctx context.Context, ep fleet.Endpoint) string
	SwitchMap(ctx context.Context, ep fleet.Endpoint, mode fleet.GameMode, targetMap, configDir string) bool
}

var _ Admin = (*webadmin.Client)(nil)

// Controller runs the per-server rotation state machine. It holds no
// per-server memory of its own; all of it lives in ServerRuntimeState.
type Controller struct {
	admin     Admin
	username  string
	password  string
	threshold int
	log       *slog.Logger
}

// NewController returns a controller using the credentials and threshold of
// settings. A threshold below 1 is treated as 1.
func NewController(admin Admin, settings fleet.GlobalSettings, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	threshold := settings.UnresponsiveThreshold
	if threshold < 1 {
		threshold = 1
	}
	return &Controller{
		admin:     admin,
		username:  settings.Username,
		password:  settings.Password,
		threshold: threshold,
		log:       log,
	}
}

// Threshold returns the number of consecutive missed probes that marks a
// server down.
func (c *Controller) Threshold() int { return c.threshold }

// RunCycle evaluates one server once. Steps run strictly in order and none
// is retried; a failed step ends the cycle for this server and the next
// scheduled cycle starts over.
//
// The only state changes are to st: the unresponsive counter and the down
// flag. A cancelled ctx during the liveness probe does not count as a miss,
// and one during login ends the cycle as Cancelled rather than a failure.
func (c *Controller) RunCycle(ctx context.Context, desc fleet.ServerDescriptor, ep fleet.Endpoint, st *ServerRuntimeState) Outcome {
	log := c.log.With("server", desc.Name, "endpoint", ep.Key())

	if desc.Disabled {
		log.Debug("server disabled, skipping")
		return Disabled
	}
	if st.Down {
		log.Debug("server marked down, skipping")
		return Down
	}
	if ctx.Err() != nil {
		return Cancelled
	}

	// liveness
	if !c.admin.IsResponding(ctx, ep) {
		if ctx.Err() != nil {
			log.Info("liveness probe interrupted by shutdown")
			return Cancelled
		}
		st.ConsecutiveUnresponsive++
		if st.ConsecutiveUnresponsive >= c.threshold {
			st.Down = true
			log.Error("server unresponsive, marking down",
				"missed", st.ConsecutiveUnresponsive, "threshold", c.threshold)
			return MarkedDown
		}
		log.Warn("server unresponsive",
			"missed", st.ConsecutiveUnresponsive, "threshold", c.threshold)
		return Unresponsive
	}
	st.ConsecutiveUnresponsive = 0

	// authentication
	if !c.admin.IsAuthenticated(ctx, ep) {
		log.Info("not authenticated, logging in")
		if !c.admin.RefreshSession(ctx, ep) {
			log.Warn("session refresh returned no sessionid")
		}
		token := c.admin.FetchLoginToken(ctx, ep)
		if token == "" {
			if ctx.Err() != nil {
				log.Info("login interrupted by shutdown")
				return Cancelled
			}
			log.Error("login token missing from login page")
			return TokenMissing
		}
		if !c.admin.Login(ctx, ep, token, c.username, c.password) {
			if ctx.Err() != nil {
				log.Info("login interrupted by shutdown")
				return Cancelled
			}
			log.Error("login rejected", "user", c.username)
			return LoginFailed
		}
		log.Info("logged in")
	}

	// rotation
	players := c.admin.PlayerCount(ctx, ep)
	current := c.admin.CurrentMap(ctx, ep)
	log = log.With("players", players, "map", current, "desired_map", desc.DesiredMap)

	if players == webadmin.UnknownPlayers || current == "" {
		log.Warn("could not read player count or map, no action this cycle")
		return Undetermined
	}
	if players > 0 {
		log.Info("server in use, leaving map alone")
		return Busy
	}
	if current == desc.DesiredMap {
		log.Info("server empty and on desired map")
		return OnDesiredMap
	}

	log.Info("server empty and not on desired map, switching")
	if !c.admin.SwitchMap(ctx, ep, desc.GameMode, desc.DesiredMap, desc.ConfigDir) {
		log.Error("map change not confirmed", "game_mode", desc.GameMode)
		return SwitchFailed
	}
	log.Info("map change confirmed", "game_mode", desc.GameMode)
	return Switched
}
