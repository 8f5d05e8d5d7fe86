// Package engine is the Event Scheduler Engine (spec.md §4.4): it
// owns the cron scheduler, the dedicated dispatch goroutine (the
// "event loop"), the bounded worker pool, startup-event firing, and
// the observability fields.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/starscheduler/starscheduler/internal/cron"
	"github.com/starscheduler/starscheduler/internal/dispatch"
	"github.com/starscheduler/starscheduler/internal/metrics"
	"github.com/starscheduler/starscheduler/internal/model"
	"github.com/starscheduler/starscheduler/internal/observability"
	"github.com/starscheduler/starscheduler/internal/registry"
	"github.com/starscheduler/starscheduler/internal/timetable"
)

// firing is the tuple a scheduler job hands to the dispatch goroutine
// (spec.md §9's "channel carrying (event_id, fire_time)").
type firing struct {
	event      model.Event
	targetTime time.Time
	isManual   bool
}

// Engine ties the cron scheduler, the timetable store, the dispatch
// planner, and the connection registry together.
type Engine struct {
	store    *timetable.Store
	registry *registry.Registry
	dispatch *dispatch.Dispatcher
	status   *observability.Status
	logs     *observability.LogBuffer

	clientsByID     map[string]model.Client
	clientsByFamily map[model.Family][]model.Client

	maxThreads int

	cronSched *robfigcron.Cron
	jobsMu    sync.Mutex
	jobIDs    map[string]robfigcron.EntryID

	fireCh chan firing

	startupDoneMu sync.Mutex
	startupDone   bool
}

// Config bundles the inputs New needs.
type Config struct {
	Store      *timetable.Store
	Registry   *registry.Registry
	Status     *observability.Status
	Logs       *observability.LogBuffer
	Clients    []model.Client
	MaxThreads int
}

// New constructs an Engine. Call Start to begin scheduling.
func New(cfg Config) *Engine {
	byID := make(map[string]model.Client, len(cfg.Clients))
	byFamily := make(map[model.Family][]model.Client)
	for _, cl := range cfg.Clients {
		byID[cl.ID] = cl
		byFamily[cl.Family] = append(byFamily[cl.Family], cl)
	}

	return &Engine{
		store:           cfg.Store,
		registry:        cfg.Registry,
		dispatch:        dispatch.New(cfg.Registry, cfg.Logs, cfg.Status),
		status:          cfg.Status,
		logs:            cfg.Logs,
		clientsByID:     byID,
		clientsByFamily: byFamily,
		maxThreads:      workerPoolSize(cfg.MaxThreads),
		cronSched:       robfigcron.New(robfigcron.WithChain(robfigcron.Recover(robfigcron.DefaultLogger))),
		jobIDs:          make(map[string]robfigcron.EntryID),
		fireCh:          make(chan firing, 64),
	}
}

// workerPoolSize implements the provision.py formula from spec.md §5:
// min(cpu_count, configured_max, 4), floor 1. main.py's alternate
// get_optimal_thread_count formula is not carried (two divergent
// formulas for one concern would be a bug, not a feature).
func workerPoolSize(configuredMax int) int {
	n := runtime.NumCPU()
	if configuredMax < n {
		n = configuredMax
	}
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Start registers a job per enabled event, launches the dispatch
// goroutine and bounded worker pool, fires run_at_startup events once,
// and begins the registry heartbeat and timetable reload watcher.
// Start returns once everything is running; callers stop it by
// canceling ctx.
func (e *Engine) Start(ctx context.Context, pollInterval time.Duration) error {
	e.registerJobs(e.store.Snapshot().Events)
	e.cronSched.Start()
	e.store.SetOnChange(e.reregisterJobs)

	go e.registry.RunHeartbeat(ctx)
	go e.store.Watch(pollInterval, ctx.Done(), func(err error) {
		slog.Error("timetable reload failed, keeping previous snapshot", "error", err)
	})
	go e.runDispatchLoop(ctx)

	e.fireStartupEvents()

	go func() {
		<-ctx.Done()
		e.cronSched.Stop()
	}()
	return nil
}

func (e *Engine) registerJobs(events []model.Event) {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()

	for _, ev := range events {
		if !ev.Schedulable() {
			continue
		}
		spec, err := cron.BuildSpec(ev)
		if err != nil {
			slog.Error("failed to build cron spec", "event", ev.DisplayName, "error", err)
			continue
		}
		ev := ev
		id := e.cronSched.Schedule(spec.Schedule, robfigcron.FuncJob(func() {
			e.onTrigger(ev)
		}))
		e.jobIDs[fmt.Sprintf("event_%s", ev.DisplayName)] = id
	}
	e.recomputeNextEventLocked()
}

// recomputeNextEventLocked scans every event_* job and sets the
// observability surface's next-event fields to the single soonest
// upcoming fire across all of them, matching spec.md §4.4's "on every
// schedule change, recompute next_event_time, next_event_name" and
// original_source/main.py's _update_next_event(), which takes the
// minimum next_run_time across all event jobs rather than the last one
// visited. Caller must hold e.jobsMu.
func (e *Engine) recomputeNextEventLocked() {
	var (
		soonest time.Time
		name    string
		found   bool
	)
	for jobName, id := range e.jobIDs {
		entry := e.cronSched.Entry(id)
		next := entry.Next
		if next.IsZero() && entry.Schedule != nil {
			// Entry.Next is only filled in once the scheduler runs.
			next = entry.Schedule.Next(time.Now())
		}
		if next.IsZero() {
			continue
		}
		if !found || next.Before(soonest) {
			soonest = next
			name = strings.TrimPrefix(jobName, "event_")
			found = true
		}
	}
	if found {
		e.status.SetNextEvent(name, soonest)
	}
}

// reregisterJobs clears every scheduled job and rebuilds the set from
// the store's current snapshot, matching spec.md §4.3's "writers
// rebuild the snapshot and then rebuild the scheduler's job set".
func (e *Engine) reregisterJobs() {
	e.jobsMu.Lock()
	for name, entryID := range e.jobIDs {
		e.cronSched.Remove(entryID)
		delete(e.jobIDs, name)
	}
	e.jobsMu.Unlock()
	e.registerJobs(e.store.Snapshot().Events)
}

// onTrigger is the scheduler job's trigger callback (spec.md §4.4 step
// 1-3): it computes target_time, checks the week-of-month filter, and
// hands the tuple to the dispatch goroutine.
func (e *Engine) onTrigger(ev model.Event) {
	now := time.Now()
	targetTime := now.Truncate(time.Minute).Add(time.Minute)

	if !cron.Allowed(ev.Weeks, targetTime.Day()) {
		return
	}

	select {
	case e.fireCh <- firing{event: ev, targetTime: targetTime}:
	default:
		slog.Warn("dispatch channel full, dropping firing", "event", ev.DisplayName)
	}
}

// runDispatchLoop is the single-threaded "event loop" of spec.md §9:
// it owns all mutable event state and fans blocking driver work out
// to a bounded worker pool.
func (e *Engine) runDispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.fireCh:
			e.dispatchFiring(ctx, f)
		}
	}
}

func (e *Engine) dispatchFiring(ctx context.Context, f firing) {
	metrics.EventsFiredTotal.WithLabelValues(f.event.DisplayName).Inc()

	plans := e.resolvePlans(f.event)
	if len(plans) == 0 {
		slog.Warn("event has no resolvable client plans", "event", f.event.DisplayName)
		return
	}

	g, gctx := errgroup.WithContext(context.Background())
	sem := make(chan struct{}, e.maxThreads)

	for _, p := range plans {
		p := p
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			// Each client's dispatch error is captured and logged;
			// it never cancels peers (spec.md §4.4 step 6), so this
			// goroutine always returns nil to errgroup.
			if err := e.dispatch.Run(gctx, p.client, p.cc, f.targetTime, f.isManual, p.steps); err != nil {
				slog.Error("dispatch failed", "event", f.event.DisplayName, "client_id", p.client.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	_ = ctx // engine-wide cancellation is honored inside each driver call's own timeout

	e.status.RecordFire(f.event.DisplayName, f.targetTime, time.Now())
	e.jobsMu.Lock()
	e.recomputeNextEventLocked()
	e.jobsMu.Unlock()
}

type clientPlan struct {
	client model.Client
	cc     model.ClientConfig
	steps  []dispatch.Step
}

// resolvePlans resolves the event's client_config map (or legacy
// flavor synthesis already folded in by the timetable reader) against
// the configured client set, by client_id first and then by family
// tag, skipping missing clients with a warn log (spec.md §4.4 step 5).
func (e *Engine) resolvePlans(ev model.Event) []clientPlan {
	var plans []clientPlan
	for _, cc := range ev.ClientConfigs {
		clients := e.resolveClients(cc.ClientID)
		if len(clients) == 0 {
			slog.Warn("unknown client in event plan", "event", ev.DisplayName, "client_id", cc.ClientID)
			continue
		}
		for _, cl := range clients {
			plans = append(plans, clientPlan{client: cl, cc: cc, steps: dispatch.Plan(cl, cc)})
		}
	}
	return plans
}

func (e *Engine) resolveClients(clientID string) []model.Client {
	if cl, ok := e.clientsByID[clientID]; ok {
		return []model.Client{cl}
	}
	if byFamily, ok := e.clientsByFamily[model.Family(clientID)]; ok {
		return byFamily
	}
	return nil
}

// fireStartupEvents runs every run_at_startup && enabled event once
// with target_time = now, then sets the startup-done flag to prevent
// re-fire on subsequent timetable reloads (spec.md §4.4).
func (e *Engine) fireStartupEvents() {
	e.startupDoneMu.Lock()
	if e.startupDone {
		e.startupDoneMu.Unlock()
		return
	}
	e.startupDone = true
	e.startupDoneMu.Unlock()

	for _, ev := range e.store.Snapshot().Events {
		if ev.RunAtStartup && ev.Enabled {
			e.fireCh <- firing{event: ev, targetTime: time.Now(), isManual: false}
		}
	}
}

// TestOutputs probes every configured client's transport for basic
// connectivity, backing the --test-outputs CLI flag
// (spec.md §6; SPEC_FULL.md's supplemented get_all_output_clients
// feature).
func (e *Engine) TestOutputs(ctx context.Context) map[string]bool {
	results := make(map[string]bool, len(e.clientsByID))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, cl := range e.clientsByID {
		cl := cl
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := e.probeOne(ctx, cl)
			mu.Lock()
			results[cl.ID] = ok
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func (e *Engine) probeOne(ctx context.Context, cl model.Client) bool {
	switch cl.Transport {
	case model.TransportShell, model.TransportTelnet:
		return e.registry.IsClientConnected(cl.ID)
	default:
		return true // stateless transports are always considered reachable
	}
}

// CancelAllPresentations dispatches a Cancel plan to every client
// still holding a live persistent session, best-effort and bounded by
// an overall timeout; it never blocks shutdown indefinitely
// (SPEC_FULL.md's exit-cancel-presentations routine, grounded in
// original_source/main.py's cleanup_on_exit).
func (e *Engine) CancelAllPresentations(ctx context.Context, overall time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	var wg sync.WaitGroup
	for _, cl := range e.clientsByID {
		if cl.Transport != model.TransportShell && cl.Transport != model.TransportTelnet {
			continue
		}
		if !e.registry.IsClientConnected(cl.ID) {
			continue
		}
		cl := cl
		wg.Add(1)
		go func() {
			defer wg.Done()
			cc := model.ClientConfig{ClientID: cl.ID, Action: model.ActionCancel, PresentationID: model.DefaultPresentationID(cl.Family)}
			steps := dispatch.Plan(cl, cc)
			if err := e.dispatch.Run(ctx, cl, cc, time.Now(), true, steps); err != nil {
				slog.Warn("exit-time cancel failed", "client_id", cl.ID, "error", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Status returns the current observability snapshot.
func (e *Engine) Status(now time.Time) observability.Snapshot {
	return e.status.Snapshot(now)
}

// SessionsStatus returns the registry's per-session status list
// (spec.md §4.6's get_all_sessions_status).
func (e *Engine) SessionsStatus() []registry.SessionStatus {
	return e.registry.AllStatus()
}

// Shutdown stops the cron scheduler and closes all registry sessions.
func (e *Engine) Shutdown() {
	e.cronSched.Stop()
	e.registry.Shutdown()
}
