package rotation

import (
	"context"
	"encoding/json"
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
	"github.com/dreamware/kf2rotator/internal/stubadmin"
	"github.com/dreamware/kf2rotator/internal/transport"
	"github.com/dreamware/kf2rotator/internal/webadmin"
)

func TestNewRegistry(t *testing.T) {
	servers := []fleet.ServerDescriptor{
		{Name: "weekly", Port: 8081},
		{Name: "endless", Port: 8082},
	}
	r, err := NewRegistry(testSettings, servers)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "endless", snap[0].Name, "sorted by name")
	assert.Equal(t, "http://127.0.0.1:8082", snap[0].Endpoint)
	assert.Equal(t, NotChecked, snap[0].LastOutcome)

	_, err = NewRegistry(testSettings, []fleet.ServerDescriptor{{Name: "bad", Port: 0}})
	assert.Error(t, err)
}

// TestRegistrySameNameDistinctState verifies that entries never share state even with equal names
func TestRegistrySameNameDistinctState(t *testing.T) {
	r, err := NewRegistry(testSettings, []fleet.ServerDescriptor{
		{Name: "dup", Port: 8081},
		{Name: "dup", Port: 8082},
	})
	require.NoError(t, err)

	r.commit(0, ServerRuntimeState{ConsecutiveUnresponsive: 3, Down: true}, MarkedDown, time.Now())
	_, _, st1 := r.checkout(1)
	assert.Equal(t, ServerRuntimeState{}, st1)
	assert.Equal(t, 1, r.DownCount())
}

func TestRegistryCommit(t *testing.T) {
	r, err := NewRegistry(testSettings, []fleet.ServerDescriptor{testServer})
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.commit(0, ServerRuntimeState{}, Switched, at)
	r.commit(0, ServerRuntimeState{ConsecutiveUnresponsive: 1}, Unresponsive, at.Add(time.Minute))

	st, ok := r.stateOf("survival")
	require.True(t, ok)
	assert.Equal(t, 1, st.ConsecutiveUnresponsive)
	_, ok = r.stateOf("missing")
	assert.False(t, ok)

	snap := r.Snapshot()
	assert.Equal(t, Unresponsive, snap[0].LastOutcome)
	assert.Equal(t, at.Add(time.Minute), snap[0].LastCheck)
	assert.Equal(t, 1, snap[0].Switches)

	raw, err := json.Marshal(snap[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"last_outcome":"unresponsive"`)
	assert.Contains(t, string(raw), `"game_mode":"KFGameContent.KFGameInfo_Survival"`)
}

func TestSchedulerRunOnceVisitsEveryServer(t *testing.T) {
	a := healthyAdmin()
	disabled := testServer
	disabled.Name, disabled.Port, disabled.Disabled = "off", 8083, true
	r, err := NewRegistry(testSettings, []fleet.ServerDescriptor{testServer, disabled})
	require.NoError(t, err)

	s := NewScheduler(newTestController(a), r, time.Minute, logging.Discard())
	report := s.RunOnce(context.Background())

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, []Outcome{Switched, Disabled}, report.Outcomes)
	assert.Equal(t, 1, report.Count(Switched))
	assert.Equal(t, 1, a.Calls("SwitchMap"))
	assert.Same(t, r, s.Registry())

	second := s.RunOnce(context.Background())
	assert.NotEqual(t, report.ID, second.ID, "each cycle gets its own id")
}

// TestSchedulerPersistsStateAcrossCycles drives a server to down through the scheduler
func TestSchedulerPersistsStateAcrossCycles(t *testing.T) {
	a := healthyAdmin()
	a.responding = false
	r, err := NewRegistry(testSettings, []fleet.ServerDescriptor{testServer})
	require.NoError(t, err)
	s := NewScheduler(newTestController(a), r, time.Minute, logging.Discard())

	var outcomes []Outcome
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, s.RunOnce(context.Background()).Outcomes[0])
	}

	assert.Equal(t, []Outcome{Unresponsive, Unresponsive, MarkedDown, Down, Down}, outcomes)
	assert.Equal(t, 3, a.Calls("IsResponding"))
	st, _ := r.stateOf(testServer.Name)
	assert.True(t, st.Down)
}

func TestSchedulerStartStop(t *testing.T) {
	a := healthyAdmin()
	a.currentMap = testServer.DesiredMap
	r, err := NewRegistry(testSettings, []fleet.ServerDescriptor{testServer})
	require.NoError(t, err)
	s := NewScheduler(newTestController(a), r, 10*time.Millisecond, logging.Discard())

	var cycles int32
	s.SetOnCycle(func(CycleReport) { atomic.AddInt32(&cycles, 1) })

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&cycles) >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.Equal(t, 0, a.Calls("SwitchMap"))
}

// TestSchedulerStartAfterStop verifies that a Start racing behind Stop runs no cycle
func TestSchedulerStartAfterStop(t *testing.T) {
	a := healthyAdmin()
	r, err := NewRegistry(testSettings, []fleet.ServerDescriptor{testServer})
	require.NoError(t, err)
	s := NewScheduler(newTestController(a), r, time.Millisecond, logging.Discard())

	var cycles int32
	s.SetOnCycle(func(CycleReport) { atomic.AddInt32(&cycles, 1) })
	s.Stop()

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&cycles))
	assert.Equal(t, 0, a.Total())
}

func TestCycleReportAborted(t *testing.T) {
	r := CycleReport{Outcomes: []Outcome{TokenMissing, Switched, LoginFailed, Cancelled, Busy}}
	assert.Equal(t, 2, r.Aborted())
	assert.Equal(t, 1, r.Count(Switched))
}

func TestSchedulerStartHonoursContext(t *testing.T) {
	r, err := NewRegistry(testSettings, []fleet.ServerDescriptor{testServer})
	require.NoError(t, err)
	s := NewScheduler(newTestController(healthyAdmin()), r, time.Hour, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	var cycles int32
	s.SetOnCycle(func(CycleReport) {
		atomic.AddInt32(&cycles, 1)
		cancel()
	})

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&cycles))
}

func stubEndpoint(t *testing.T, rawURL string) (fleet.GlobalSettings, fleet.ServerDescriptor) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	settings := testSettings
	settings.ServerAddress = u.Scheme + "://" + u.Hostname()
	settings.Username, settings.Password = "admin", "admin"
	desc := testServer
	desc.Port = port
	return settings, desc
}

// TestSchedulerAgainstStub runs full cycles over real HTTP against the simulated admin UI
func TestSchedulerAgainstStub(t *testing.T) {
	stub := stubadmin.New(stubadmin.Options{Map: "kf-outpost"})
	srv := httptest.NewServer(stub)
	defer srv.Close()

	settings, desc := stubEndpoint(t, srv.URL)
	tr := transport.New(transport.Options{Timeout: 2 * time.Second, Logger: logging.Discard()})
	admin := webadmin.NewClient(tr, nil, "/admin", logging.Discard())
	r, err := NewRegistry(settings, []fleet.ServerDescriptor{desc})
	require.NoError(t, err)
	s := NewScheduler(NewController(admin, settings, logging.Discard()), r, time.Minute, logging.Discard())
	ctx := context.Background()

	// empty and on the wrong map: log in and switch
	require.Equal(t, Switched, s.RunOnce(ctx).Outcomes[0])
	assert.Equal(t, "kf-bioticslab", stub.Map())
	assert.Equal(t, string(fleet.Survival), stub.GameMode())
	assert.Equal(t, 1, stub.Logins())
	require.Len(t, stub.ChangeRequests(), 1)
	assert.Equal(t, "?ConfigSubDir=server1", stub.ChangeRequests()[0].Get("urlextra"))
	assert.Equal(t, "kf-bioticslab", admin.CurrentMap(ctx, mustEndpoint(t, settings, desc)))

	// already there: no further change, session reused
	assert.Equal(t, OnDesiredMap, s.RunOnce(ctx).Outcomes[0])
	assert.Len(t, stub.ChangeRequests(), 1)
	assert.Equal(t, 1, stub.Logins())

	// players join and the map is changed by someone else
	stub.SetPlayers(2)
	stub.SetMap("kf-outpost")
	assert.Equal(t, Busy, s.RunOnce(ctx).Outcomes[0])
	assert.Len(t, stub.ChangeRequests(), 1)

	// players leave after a restart that dropped sessions
	stub.SetPlayers(0)
	stub.ExpireSessions()
	assert.Equal(t, Switched, s.RunOnce(ctx).Outcomes[0])
	assert.Equal(t, 2, stub.Logins())
	assert.Len(t, stub.ChangeRequests(), 2)

	// the server goes away for longer than the threshold
	stub.SetDown(true)
	want := []Outcome{Unresponsive, Unresponsive, MarkedDown}
	for _, o := range want {
		assert.Equal(t, o, s.RunOnce(ctx).Outcomes[0])
	}
	stub.SetDown(false)
	before := stub.TotalRequests()
	assert.Equal(t, Down, s.RunOnce(ctx).Outcomes[0])
	assert.Equal(t, before, stub.TotalRequests(), "no requests to a down server")
}

func TestSchedulerAgainstStubLoginFailures(t *testing.T) {
	stub := stubadmin.New(stubadmin.Options{Map: "kf-outpost", Password: "other"})
	srv := httptest.NewServer(stub)
	defer srv.Close()

	settings, desc := stubEndpoint(t, srv.URL)
	tr := transport.New(transport.Options{Timeout: 2 * time.Second, Logger: logging.Discard()})
	admin := webadmin.NewClient(tr, nil, "/admin", logging.Discard())
	r, err := NewRegistry(settings, []fleet.ServerDescriptor{desc})
	require.NoError(t, err)
	s := NewScheduler(NewController(admin, settings, logging.Discard()), r, time.Minute, logging.Discard())

	assert.Equal(t, LoginFailed, s.RunOnce(context.Background()).Outcomes[0])
	assert.Empty(t, stub.ChangeRequests())
	assert.Equal(t, "kf-outpost", stub.Map())

	st, _ := r.stateOf(desc.Name)
	assert.Equal(t, ServerRuntimeState{}, st)
}

func mustEndpoint(t *testing.T, settings fleet.GlobalSettings, desc fleet.ServerDescriptor) fleet.Endpoint {
	t.Helper()
	ep, err := settings.EndpointFor(desc)
	require.NoError(t, err)
	return ep
}
