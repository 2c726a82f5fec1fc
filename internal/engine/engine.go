// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine wires the discovery engine's components together: no
// global singleton, flattened ownership (Engine holds its Queue and
// Worker Pool directly; cross-references are ruleId/taskID, never
// pointers shared outside their owner), per spec.md §9 design notes.
package engine

import (
	"context"
	"strconv"
	"time"

	"grimm.is/discoverer/internal/config"
	"grimm.is/discoverer/internal/drainer"
	"grimm.is/discoverer/internal/ipc"
	"grimm.is/discoverer/internal/logging"
	"grimm.is/discoverer/internal/metrics"
	"grimm.is/discoverer/internal/queue"
	"grimm.is/discoverer/internal/resultcache"
	"grimm.is/discoverer/internal/scheduler"
	"grimm.is/discoverer/internal/worker"
)

// Collaborators bundles the external interfaces an Engine is built
// against: rule configuration, persistence, and optional eventing.
type Collaborators struct {
	Store     scheduler.RuleStore
	Sink      drainer.PersistenceSink
	Events    drainer.EventSink
	SNMPCache func() error // optional SNMP_CACHE_RELOAD hook
}

// Engine owns one Queue, one result Cache, one worker Pool, one
// Scheduler, one Drainer and one IPC Server. Nothing here is package-
// level state; every component is an explicit field.
type Engine struct {
	cfg config.EngineConfig
	log *logging.Logger

	Queue     *queue.Queue
	Cache     *resultcache.Cache
	Pool      *worker.Pool
	Drain     *drainer.Drainer
	Scheduler *scheduler.Scheduler
	IPC       *ipc.Server
	Metrics   *metrics.Metrics

	cancel context.CancelFunc
}

// New builds an Engine from cfg and its collaborators, wiring every
// internal component but not yet starting any goroutines.
func New(cfg config.EngineConfig, collab Collaborators, log *logging.Logger) *Engine {
	cfg.ApplyDefaults()
	if log == nil {
		log = logging.Nop()
	}

	m := metrics.New()

	q := queue.New(cfg.QueueMaxSize, cfg.SNMPv3MaxWorkers)
	cache := resultcache.New()
	pool := worker.New(cfg.Workers, q, cache, worker.DefaultBatchProbers(), log.With("component", "worker"), m)
	drain := drainer.New(cache, collab.Sink, collab.Events, log.With("component", "drainer"), m)
	sched := scheduler.New(collab.Store, q, cache, drain, scheduler.Config{
		Delay:                   cfg.Delay,
		BatchResultsNum:         cfg.BatchResultsNum,
		DefaultRuleRequeueDelay: cfg.DefaultRuleRequeueDelay,
		Metrics:                 m,
	}, log.With("component", "scheduler"))

	e := &Engine{cfg: cfg, log: log, Queue: q, Cache: cache, Pool: pool, Drain: drain, Scheduler: sched, Metrics: m}

	e.IPC = ipc.NewServer(cfg.IPCSocketPath, ipc.Handlers{
		Queue:           queueStatsAdapter{q},
		Usage:           pool,
		SNMPCacheReload: collab.SNMPCache,
		Shutdown:        e.requestShutdown,
		OnRequest:       func(code ipc.Code) { m.IPCRequests.WithLabelValues(code.String()).Inc() },
	}, log.With("component", "ipc"))

	return e
}

// queueStatsAdapter narrows *queue.Queue to ipc.QueueStats.
type queueStatsAdapter struct{ q *queue.Queue }

func (a queueStatsAdapter) PendingChecksCount() uint64 { return a.q.PendingChecksCount() }

// Start launches the worker pool, IPC service, and scheduler tick loop.
// It returns once the IPC listener is bound; the scheduler and workers
// run in background goroutines until ctx is canceled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if err := e.IPC.Start(ctx); err != nil {
		cancel()
		return err
	}

	e.Pool.Start(ctx)
	go e.Scheduler.Run(ctx, nil)
	go e.sampleMetrics(ctx)

	return nil
}

// sampleMetrics refreshes the gauge series once a second: these reflect
// point-in-time state rather than an event count, so they can't be
// incremented at the call site the way the counters are. Grounded on
// grimm-is-flywall/internal/ebpf/manager.go's collectStatistics ticker.
func (e *Engine) sampleMetrics(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Metrics.QueueDepth.Set(float64(e.Queue.JobCount()))
			e.Metrics.PendingChecks.Set(float64(e.Queue.PendingChecksCount()))
			e.Metrics.OutstandingHosts.Set(float64(e.Cache.Len()))
			// UsageStats resets its sample window on every call, so this
			// shares (and shortens) the window an IPC USAGE_STATS request
			// would otherwise see; both readers get a 1s-or-less window
			// instead of since-last-IPC-poll.
			for i, frac := range e.Pool.UsageStats() {
				e.Metrics.WorkerBusyFraction.WithLabelValues(strconv.Itoa(i)).Set(frac)
			}
		}
	}
}

// Stop performs an orderly shutdown: stop the IPC listener, signal the
// scheduler loop to exit, then stop the worker pool (which blocks until
// every in-flight probe returns, bounded by its timeout).
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.IPC.Stop()
	e.Pool.Stop()
}

// requestShutdown is the IPC SHUTDOWN handler.
func (e *Engine) requestShutdown() {
	e.log.Info("engine: shutdown requested over IPC")
	e.Stop()
}
