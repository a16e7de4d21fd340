package rotation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CycleReport summarises one pass over every server.
type CycleReport struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	Outcomes []Outcome // indexed like the registry
}

// Count returns how many servers ended the cycle with outcome o.
func (r CycleReport) Count(o Outcome) int {
	n := 0
	for _, x := range r.Outcomes {
		if x == o {
			n++
		}
	}
	return n
}

// Aborted returns how many servers stopped at authentication.
func (r CycleReport) Aborted() int {
	n := 0
	for _, x := range r.Outcomes {
		if x.Aborted() {
			n++
		}
	}
	return n
}

// Scheduler runs cycles over the registry. Servers are visited one after
// another, and the next cycle starts only after the previous one completed
// and the interval elapsed, so at most one cycle is ever in flight.
type Scheduler struct {
	controller *Controller
	registry   *Registry
	interval   time.Duration
	log        *slog.Logger
	now        func() time.Time

	onCycle func(CycleReport)

	runMu sync.Mutex // serialises RunOnce

	// lifeMu orders Start's wg.Add against Stop's cancel
	lifeMu sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler returns a scheduler that waits interval between cycles.
func NewScheduler(c *Controller, r *Registry, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		controller: c,
		registry:   r,
		interval:   interval,
		log:        log,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetOnCycle registers a callback invoked after every completed cycle.
// It must be set before Start.
func (s *Scheduler) SetOnCycle(fn func(CycleReport)) {
	s.onCycle = fn
}

// Registry returns the registry the scheduler works on.
func (s *Scheduler) Registry() *Registry { return s.registry }

// RunOnce runs a single cycle over every server and returns its report.
// Servers not reached because ctx was cancelled report Cancelled.
func (s *Scheduler) RunOnce(ctx context.Context) CycleReport {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	report := CycleReport{
		ID:       uuid.NewString(),
		Started:  s.now(),
		Outcomes: make([]Outcome, s.registry.Len()),
	}
	ctrl := *s.controller
	ctrl.log = s.controller.log.With("cycle", report.ID)
	ctrl.log.Debug("cycle started", "servers", len(report.Outcomes))

	for i := range report.Outcomes {
		desc, ep, st := s.registry.checkout(i)
		o := ctrl.RunCycle(ctx, desc, ep, &st)
		s.registry.commit(i, st, o, s.now())
		report.Outcomes[i] = o
	}

	report.Duration = s.now().Sub(report.Started)
	ctrl.log.Info("cycle finished",
		"duration", report.Duration,
		"switched", report.Count(Switched),
		"busy", report.Count(Busy),
		"aborted", report.Aborted(),
		"down", s.registry.DownCount())

	if s.onCycle != nil {
		s.onCycle(report)
	}
	return report
}

// Start runs cycles until ctx is cancelled or Stop is called. The first
// cycle runs immediately. Start blocks. After Stop, Start returns at once
// without running a cycle.
func (s *Scheduler) Start(ctx context.Context) {
	s.lifeMu.Lock()
	if s.ctx.Err() != nil {
		s.lifeMu.Unlock()
		return
	}
	s.wg.Add(1)
	s.lifeMu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	s.log.Info("scheduler started",
		"interval", s.interval,
		"servers", s.registry.Len(),
		"threshold", s.controller.Threshold())

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case <-timer.C:
			s.RunOnce(ctx)
			if ctx.Err() != nil {
				s.log.Info("scheduler stopping")
				return
			}
			timer.Reset(s.interval)
		}
	}
}

// Stop cancels a running Start and waits for the in-flight cycle to end.
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	s.cancel()
	s.lifeMu.Unlock()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}
