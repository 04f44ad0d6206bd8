// Package scheduler drives the per-record update state machine. Each
// configured record runs its own timer task; records never block each
// other and attempts within one record are strictly sequential.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/provider"
	"github.com/evanofslack/ddns-sync/internal/state"
)

const eventBuffer = 128

// Resolver is the slice of the IP resolver the scheduler needs.
type Resolver interface {
	Resolve(ctx context.Context, family string, force bool) (netip.Addr, error)
}

type Scheduler struct {
	cfg      *config.Config
	resolver Resolver
	store    state.Store
	metrics  *metrics.Metrics

	events  chan Event
	runners []*runner
	wg      sync.WaitGroup
}

func New(cfg *config.Config, res Resolver, store state.Store, providers map[string]provider.Provider, m *metrics.Metrics) (*Scheduler, error) {
	s := &Scheduler{
		cfg:      cfg,
		resolver: res,
		store:    store,
		metrics:  m,
		events:   make(chan Event, eventBuffer),
	}

	// Seed the status surface from persisted state so /status reports
	// last-known addresses before any record has ticked.
	persisted, err := store.All(context.Background())
	if err != nil {
		slog.Warn("Failed to read persisted record state", "error", err)
	}

	for _, rec := range cfg.Records {
		p, ok := providers[rec.Provider]
		if !ok {
			return nil, fmt.Errorf("record %q: no provider %q constructed", rec.Key(), rec.Provider)
		}
		run := &runner{
			record:    rec,
			provider:  p,
			resolver:  res,
			store:     store,
			metrics:   m,
			backoff:   cfg.Backoff,
			events:    s.events,
			onSuspend: s.refreshSuspendedGauge,
		}
		run.status = RecordStatus{
			Record:   rec.Key(),
			Provider: rec.Provider,
			State:    StateIdle,
		}
		if st, ok := persisted[rec.Key()]; ok {
			run.status.LastIP = st.IP
			run.status.BackoffLevel = st.BackoffLevel
			if st.LastAttempt != 0 {
				run.status.LastAttempt = time.Unix(st.LastAttempt, 0)
			}
		}
		s.runners = append(s.runners, run)
	}
	return s, nil
}

// Start launches one task per record. It does not block; cancel the
// context and call Wait to shut down.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting scheduler", "records", len(s.runners))
	for _, run := range s.runners {
		s.wg.Add(1)
		go func(run *runner) {
			defer s.wg.Done()
			run.run(ctx)
		}(run)
	}
}

// Wait blocks until every record task has stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
	close(s.events)
}

// Events is the stream of structured update events, one per attempt.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Snapshot reports current state and next scheduled attempt per record,
// sorted by record key.
func (s *Scheduler) Snapshot() []RecordStatus {
	statuses := make([]RecordStatus, 0, len(s.runners))
	for _, run := range s.runners {
		statuses = append(statuses, run.snapshot())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Record < statuses[j].Record
	})
	return statuses
}

func (s *Scheduler) refreshSuspendedGauge() {
	count := 0
	for _, run := range s.runners {
		if run.snapshot().State == StateSuspended {
			count++
		}
	}
	s.metrics.SetRecordsSuspended(count)
}

// runner owns the state machine for a single record.
type runner struct {
	record    config.Record
	provider  provider.Provider
	resolver  Resolver
	store     state.Store
	metrics   *metrics.Metrics
	backoff   config.Backoff
	events    chan<- Event
	onSuspend func()

	mu     sync.Mutex
	status RecordStatus
}

func (r *runner) run(ctx context.Context) {
	jitter := startupJitter(r.record.Interval)
	r.setNextAttempt(time.Now().Add(jitter))
	slog.Debug("Record task starting", "record", r.record.Key(), "startup_jitter", jitter)

	timer := time.NewTimer(jitter)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Record task stopping", "record", r.record.Key())
			return
		case <-timer.C:
		}

		delay, keepRunning := r.tick(ctx)
		if !keepRunning {
			return
		}
		r.setNextAttempt(time.Now().Add(delay))
		timer.Reset(delay)
	}
}

// tick performs one full pass: resolve, compare, apply, classify. It
// returns the delay until the next tick, or keepRunning=false when the
// record suspends or the context ends.
func (r *runner) tick(ctx context.Context) (time.Duration, bool) {
	r.setState(StateChecking)
	start := time.Now()

	st, _, err := r.store.Load(ctx, r.record.Key())
	if err != nil {
		slog.Error("Failed to load record state", "record", r.record.Key(), "error", err)
	}

	ip, err := r.resolver.Resolve(ctx, r.record.Family, false)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false
		}
		out := provider.Retryablef("resolve public IP: %v", err)
		return r.backOff(ctx, st, out), true
	}

	// Same address as last applied: no provider call at all. Resolve
	// failures may have raised the backoff level since the last apply,
	// so clear it.
	if st.IP == ip.String() {
		if st.BackoffLevel != 0 {
			st.BackoffLevel = 0
			if err := r.store.Save(ctx, r.record.Key(), st); err != nil {
				slog.Error("Failed to save record state", "record", r.record.Key(), "error", err)
			}
		}
		r.complete(provider.Unchanged(), st)
		return r.record.Interval, true
	}

	r.setState(StateUpdating)
	out := r.provider.Apply(ctx, r.request(ip))
	r.metrics.SetUpdateDuration(time.Since(start))

	// A fatal answer may be caused by the cached address going stale
	// mid-flight. Force one fresh lookup and retry once before giving
	// up on the record.
	if out.Kind == provider.KindFatal && ctx.Err() == nil {
		if fresh, ferr := r.resolver.Resolve(ctx, r.record.Family, true); ferr == nil && fresh != ip {
			slog.Info("Public IP moved during fatal attempt, retrying once",
				"record", r.record.Key(), "stale", ip, "fresh", fresh)
			ip = fresh
			out = r.provider.Apply(ctx, r.request(ip))
		}
	}

	if ctx.Err() != nil {
		return 0, false
	}

	switch out.Kind {
	case provider.KindApplied, provider.KindUnchanged:
		newState := state.RecordState{
			IP:          ip.String(),
			LastAttempt: time.Now().Unix(),
		}
		if err := r.store.Save(ctx, r.record.Key(), newState); err != nil {
			slog.Error("Failed to save record state", "record", r.record.Key(), "error", err)
		}
		r.complete(out, newState)
		return r.record.Interval, true

	case provider.KindRetryable:
		return r.backOff(ctx, st, out), true

	default: // fatal
		r.suspend(ctx, st, out)
		return 0, false
	}
}

func (r *runner) request(ip netip.Addr) provider.Request {
	return provider.Request{
		Name: r.record.Name,
		Zone: r.record.Zone,
		Type: provider.RecordType(r.record.Family),
		IP:   ip,
	}
}

// complete records a successful attempt: backoff resets and the record
// returns to idle.
func (r *runner) complete(out provider.Outcome, st state.RecordState) {
	r.emit(out)

	r.mu.Lock()
	r.status.State = StateIdle
	r.status.LastIP = st.IP
	r.status.LastAttempt = time.Now()
	r.status.BackoffLevel = 0
	r.status.LastError = ""
	r.mu.Unlock()

	switch out.Kind {
	case provider.KindApplied:
		slog.Info("Record updated", "record", r.record.Key(), "provider", r.provider.Name(), "ip", out.IP)
	default:
		slog.Debug("Record unchanged", "record", r.record.Key())
	}
}

// backOff escalates the retry delay and persists the new level.
func (r *runner) backOff(ctx context.Context, st state.RecordState, out provider.Outcome) time.Duration {
	level := st.BackoffLevel
	delay := withJitter(delayFor(level, r.backoff), r.backoff.Jitter)

	st.BackoffLevel = level + 1
	st.LastAttempt = time.Now().Unix()
	if err := r.store.Save(ctx, r.record.Key(), st); err != nil {
		slog.Error("Failed to save record state", "record", r.record.Key(), "error", err)
	}

	r.emit(out)
	r.mu.Lock()
	r.status.State = StateBackingOff
	r.status.LastAttempt = time.Now()
	r.status.BackoffLevel = st.BackoffLevel
	r.status.LastError = out.Reason
	r.mu.Unlock()

	slog.Warn("Record update attempt failed, backing off",
		"record", r.record.Key(),
		"provider", r.provider.Name(),
		"reason", out.Reason,
		"backoff_level", st.BackoffLevel,
		"delay", delay)
	return delay
}

// suspend parks the record until operator intervention; only a config
// reload restarts it.
func (r *runner) suspend(ctx context.Context, st state.RecordState, out provider.Outcome) {
	st.LastAttempt = time.Now().Unix()
	if err := r.store.Save(ctx, r.record.Key(), st); err != nil {
		slog.Error("Failed to save record state", "record", r.record.Key(), "error", err)
	}

	r.emit(out)
	r.mu.Lock()
	r.status.State = StateSuspended
	r.status.LastAttempt = time.Now()
	r.status.NextAttempt = time.Time{}
	r.status.LastError = out.Reason
	r.mu.Unlock()

	if r.onSuspend != nil {
		r.onSuspend()
	}

	slog.Error("Record suspended until reconfiguration",
		"record", r.record.Key(),
		"provider", r.provider.Name(),
		"reason", out.Reason)
}

func (r *runner) emit(out provider.Outcome) {
	r.metrics.IncUpdateAttempt(r.provider.Name(), out.Kind.String())

	ev := Event{Record: r.record.Key(), Outcome: out, Time: time.Now()}
	select {
	case r.events <- ev:
	default:
		slog.Debug("Event buffer full, dropping event", "record", ev.Record)
	}
}

func (r *runner) setState(s State) {
	r.mu.Lock()
	r.status.State = s
	r.mu.Unlock()
}

func (r *runner) setNextAttempt(t time.Time) {
	r.mu.Lock()
	r.status.NextAttempt = t
	r.mu.Unlock()
}

func (r *runner) snapshot() RecordStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}
