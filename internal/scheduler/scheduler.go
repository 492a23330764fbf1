// Package scheduler owns the worker pool and per-monitor tickers that turn
// the monitor catalog into a steady stream of probe results fed through
// internal/engine. It mirrors the teacher's producer/worker/resultProcessor
// shape: one goroutine per monitor enqueues jobs on an interval, a fixed
// pool of workers executes the actual network probe, and a single
// resultProcessor goroutine serializes every engine decision so the same
// monitor is never evaluated concurrently.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/sentinel/internal/config"
	"github.com/pulsewatch/sentinel/internal/db"
	"github.com/pulsewatch/sentinel/internal/engine"
	"github.com/pulsewatch/sentinel/internal/monitor"
	"github.com/pulsewatch/sentinel/internal/probe"
)

// historyDepth is how many recent checks are loaded per tick to feed the
// baseline and window analyzers.
const historyDepth = 50

// syncInterval governs how often the catalog is re-read from storage to
// pick up monitors created, edited, or deleted through the API.
const syncInterval = 10 * time.Second

// retentionInterval governs how often old checks are pruned.
const retentionInterval = 24 * time.Hour

const defaultRetentionDays = 30 * 24 * time.Hour

// Driver probes a single target and reports the outcome. HTTPDriver and
// TCPDriver both satisfy it.
type Driver interface {
	Probe(ctx context.Context, target string, timeout time.Duration) probe.Result
}

// job is one scheduled probe attempt, produced by a monitor's ticker and
// consumed by a worker.
type job struct {
	Policy monitor.Policy
}

// outcome pairs a completed probe with the policy that produced it, so the
// result processor doesn't need a second catalog lookup.
type outcome struct {
	Policy monitor.Policy
	Result probe.Result
}

// entry tracks a running per-monitor ticker goroutine so Sync can diff the
// catalog against what's currently scheduled.
type entry struct {
	policy monitor.Policy
	stop   chan struct{}
}

// Scheduler drives probes for every active monitor in the catalog and
// feeds each result through engine.Engine.DetermineHealthState.
type Scheduler struct {
	store  *db.Store
	engine *engine.Engine
	cfg    config.SchedulerConfig

	drivers map[probe.Protocol]Driver

	mu       sync.RWMutex
	monitors map[string]*entry

	jobQueue    chan job
	resultQueue chan outcome
	stopCh      chan struct{}
	wg          sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Scheduler wired to store for persistence and catalog reads,
// eng for health-state decisions, and cfg for pool sizing.
func New(store *db.Store, eng *engine.Engine, cfg config.SchedulerConfig) *Scheduler {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 10
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	httpDriver := probe.NewHTTPDriver()
	return &Scheduler{
		store:    store,
		engine:   eng,
		cfg:      cfg,
		monitors: make(map[string]*entry),
		drivers: map[probe.Protocol]Driver{
			probe.ProtocolHTTP:  httpDriver,
			probe.ProtocolHTTPS: httpDriver,
			probe.ProtocolTCP:   probe.NewTCPDriver(),
			probe.ProtocolSSL:   &probe.TCPDriver{UseTLS: true},
			// UDP/DNS/SMTP/PING have no dedicated wire-protocol driver;
			// a plain TCP reachability check is the best-effort fallback
			// until a protocol-specific driver exists.
			probe.ProtocolUDP:  probe.NewTCPDriver(),
			probe.ProtocolDNS:  probe.NewTCPDriver(),
			probe.ProtocolSMTP: probe.NewTCPDriver(),
			probe.ProtocolPING: probe.NewTCPDriver(),
		},
		jobQueue:    make(chan job, cfg.QueueCapacity),
		resultQueue: make(chan outcome, cfg.QueueCapacity),
		stopCh:      make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker pool, the result processor, the retention
// worker, and an initial catalog Sync, then keeps resyncing on
// syncInterval until Stop is called.
func (s *Scheduler) Start() {
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.wg.Add(1)
	go s.resultProcessor()

	go s.retentionWorker()

	s.Sync()

	go func() {
		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Sync()
			}
		}
	}()
}

// Stop halts every per-monitor ticker and signals the worker pool to drain.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.cancel()

	s.mu.Lock()
	for _, e := range s.monitors {
		close(e.stop)
	}
	s.monitors = make(map[string]*entry)
	s.mu.Unlock()

	close(s.jobQueue)
}

// Reset stops every scheduled monitor without shutting down the worker
// pool, so the scheduler can be resynced against a freshly reset database.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.monitors {
		close(e.stop)
		delete(s.monitors, id)
	}
}

func (s *Scheduler) driverFor(p probe.Protocol) Driver {
	if d, ok := s.drivers[p]; ok {
		return d
	}
	return s.drivers[probe.ProtocolHTTP]
}

// worker executes probes off jobQueue using the protocol-appropriate
// Driver and forwards completed outcomes to resultQueue.
func (s *Scheduler) worker() {
	defer s.wg.Done()
	for j := range s.jobQueue {
		timeout := j.Policy.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		res := s.driverFor(j.Policy.Protocol).Probe(s.ctx, j.Policy.Target, timeout)
		res.CheckID = uuid.NewString()
		select {
		case s.resultQueue <- outcome{Policy: j.Policy, Result: res}:
		case <-s.stopCh:
			return
		}
	}
}

// resultProcessor is the single goroutine that feeds every completed probe
// through the engine, guaranteeing no monitor is evaluated concurrently
// with itself, and persists the resulting check record.
func (s *Scheduler) resultProcessor() {
	defer s.wg.Done()
	for o := range s.resultQueue {
		s.process(o)
	}
}

func (s *Scheduler) process(o outcome) {
	recent, err := s.store.GetRecentCheckRecords(o.Policy.ID, historyDepth)
	if err != nil {
		log.Printf("scheduler: loading history for monitor %s: %v", o.Policy.ID, err)
		recent = nil
	}

	decision, err := s.engine.DetermineHealthState(s.ctx, o.Result, o.Policy, recent)
	if err != nil {
		log.Printf("scheduler: engine decision for monitor %s: %v", o.Policy.ID, err)
		return
	}

	if err := s.store.RecordCheck(o.Policy.ID, o.Result, decision.FinalState); err != nil {
		log.Printf("scheduler: recording check for monitor %s: %v", o.Policy.ID, err)
	}
}

// Sync reconciles the in-memory schedule against the monitor catalog:
// starting tickers for new or reactivated monitors, restarting ones whose
// target/interval changed, and stopping ones that were paused or deleted.
func (s *Scheduler) Sync() {
	rows, err := s.store.GetMonitors()
	if err != nil {
		log.Printf("scheduler: sync failed to load monitors: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		pol := row.ToPolicy()
		seen[pol.ID] = true

		if !pol.IsActive {
			if e, ok := s.monitors[pol.ID]; ok {
				close(e.stop)
				delete(s.monitors, pol.ID)
			}
			continue
		}

		if e, ok := s.monitors[pol.ID]; ok {
			if e.policy.Target != pol.Target || e.policy.Interval != pol.Interval {
				close(e.stop)
				delete(s.monitors, pol.ID)
			} else {
				e.policy = pol
				continue
			}
		}

		e := &entry{policy: pol, stop: make(chan struct{})}
		s.monitors[pol.ID] = e
		go s.runTicker(e)
	}

	for id, e := range s.monitors {
		if !seen[id] {
			close(e.stop)
			delete(s.monitors, id)
		}
	}
}

func (s *Scheduler) runTicker(e *entry) {
	interval := e.policy.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			pol := e.policy
			s.mu.RUnlock()

			select {
			case s.jobQueue <- job{Policy: pol}:
			case <-e.stop:
				return
			case <-s.stopCh:
				return
			}
		}
	}
}

func (s *Scheduler) retentionWorker() {
	prune := func() {
		if err := s.store.PruneChecksOlderThan(defaultRetentionDays); err != nil {
			log.Printf("scheduler: retention prune failed: %v", err)
		}
	}
	prune()

	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			prune()
		}
	}
}
