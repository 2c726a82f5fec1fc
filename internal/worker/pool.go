// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package worker implements the discovery engine's fixed-size worker
// pool: N goroutines, each running the queue-pop / task-pop / probe /
// commit loop from spec §4.5 verbatim. Grounded in the teacher-adjacent
// DiscoveryEngine worker-pool idiom (one goroutine per worker, a
// sync.WaitGroup for shutdown, context cancellation checked at the loop
// head) seen across the example pack's mapper/discovery engines.
package worker

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"grimm.is/discoverer/internal/clock"
	"grimm.is/discoverer/internal/errors"
	"grimm.is/discoverer/internal/logging"
	"grimm.is/discoverer/internal/metrics"
	"grimm.is/discoverer/internal/model"
	"grimm.is/discoverer/internal/probe"
	"grimm.is/discoverer/internal/queue"
	"grimm.is/discoverer/internal/resultcache"
)

// BatchProbers maps a batched CheckType to the BatchProber that sweeps
// it, so the pool never hardcodes protocol dispatch.
type BatchProbers map[model.CheckType]probe.BatchProber

// DefaultBatchProbers returns the standard protocol-to-prober wiring:
// pro-bing for ICMP, net/http for HTTP/HTTPS, gosnmp for every SNMP
// version.
func DefaultBatchProbers() BatchProbers {
	snmp := probe.SNMPBatchProber{}
	return BatchProbers{
		model.CheckICMP:    probe.ICMPBatchProber{},
		model.CheckHTTP:    probe.HTTPBatchProber{TLS: false},
		model.CheckHTTPS:   probe.HTTPBatchProber{TLS: true},
		model.CheckSNMPv1:  snmp,
		model.CheckSNMPv2c: snmp,
		model.CheckSNMPv3:  snmp,
	}
}

// Pool is the engine's fixed worker pool.
type Pool struct {
	n        int
	q        *queue.Queue
	cache    *resultcache.Cache
	batchers BatchProbers
	log      *logging.Logger
	metrics  *metrics.Metrics

	stop atomic32
	wg   sync.WaitGroup

	busyNanos []atomic.Int64
	sampleMu  sync.Mutex
	sampleAt  time.Time
}

// atomic32 is a tiny stop flag checked only at each loop head, matching
// spec §4.5/§5's "workers observe stop only at loop head".
type atomic32 struct {
	mu  sync.Mutex
	set bool
}

func (a *atomic32) Set() {
	a.mu.Lock()
	a.set = true
	a.mu.Unlock()
}

func (a *atomic32) Get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.set
}

// New builds a Pool of n workers draining q into cache. m may be nil, in
// which case task-outcome counters are simply never incremented.
func New(n int, q *queue.Queue, cache *resultcache.Cache, batchers BatchProbers, log *logging.Logger, m *metrics.Metrics) *Pool {
	if n < 1 {
		n = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Pool{n: n, q: q, cache: cache, batchers: batchers, log: log, metrics: m, busyNanos: make([]atomic.Int64, n), sampleAt: clock.Now()}
}

// Start launches all N worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.q.RegisterWorker()
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
}

// Stop signals every worker to exit at its next loop head and blocks
// until all have returned. In-flight probes run to completion first, so
// shutdown latency is bounded by the longest outstanding probe timeout,
// not immediate.
func (p *Pool) Stop() {
	p.stop.Set()
	p.q.NotifyAll()
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	defer p.q.DeregisterWorker()

	for {
		if p.stop.Get() || ctx.Err() != nil {
			return
		}

		job, ok := p.q.Pop(ctx)
		if !ok {
			return
		}

		task, ok := p.q.PopTask(job)
		if !ok {
			p.q.RemoveIfDrained(job)
			continue
		}

		job.WorkersUsed++
		if job.WorkersMax == 0 || job.WorkersUsed < job.WorkersMax {
			p.q.Readmit(job)
		} else {
			p.q.MarkWaiting(job)
		}

		started := clock.Now()
		err := p.runTask(ctx, job, task)
		p.busyNanos[id].Add(int64(clock.Now().Sub(started)))

		if err != nil {
			p.markJobFailed(job, err)
			if p.metrics != nil {
				p.metrics.TasksFailed.Inc()
			}
		} else if p.metrics != nil {
			p.metrics.TasksProbed.Inc()
		}

		p.q.ReleaseWorker(job)
	}
}

// runTask executes one task to completion and commits its results into
// the cache. The returned error is non-nil only for a driver-init
// failure, which aborts the whole task per spec §4.2/§7.
func (p *Pool) runTask(ctx context.Context, job *model.Job, task model.Task) error {
	if task.Kind == model.TaskSync {
		return p.runSync(ctx, job, task)
	}
	return p.runBatch(ctx, job, task)
}

func (p *Pool) runSync(ctx context.Context, job *model.Job, task model.Task) error {
	status, value, err := probe.SyncProbe(ctx, task.Check, task.IP, task.Port)
	if err != nil {
		return err
	}

	ip := task.IP.String()
	var dns string
	if status == model.StatusUp {
		dns = reverseDNSName(ip)
	}
	p.cache.MergePartialRange(job.RuleID, 1, []resultcache.Contribution{
		{
			IP:              ip,
			Unique:          job.UniqueCheckIDHint,
			DNSName:         dns,
			ProcessedChecks: 1,
			Services: []model.DiscoveredService{
				{CheckID: task.Check.CheckID, Port: task.Port, Status: status, Value: value},
			},
		},
	})
	return nil
}

func (p *Pool) runBatch(ctx context.Context, job *model.Job, task model.Task) error {
	prober, ok := p.batchers[task.ProtocolType]
	if !ok {
		return errors.Errorf(errors.KindDriverInit, "worker: no batch prober wired for %s", task.ProtocolType)
	}

	// At most one SNMPv3 task runs engine-wide at any instant (spec §8):
	// every SNMP check, v1/v2c/v3 alike, is dispatched batched-async by
	// the scheduler, so this is the only place the gate can actually fire.
	if task.Check.Type == model.CheckSNMPv3 {
		if !p.q.AcquireSNMPv3(ctx) {
			return ctx.Err()
		}
		defer p.q.ReleaseSNMPv3()
	}

	ips := rangeIPs(task.Ranges)
	workerMax := job.WorkersMax
	if workerMax == 0 {
		workerMax = len(ips)
	}

	var mu sync.Mutex
	contributions := make(map[string]*resultcache.Contribution)

	err := prober.RunBatch(ctx, ips, task.Check, workerMax, func(r probe.BatchResult) {
		mu.Lock()
		defer mu.Unlock()
		ip := r.IP.String()
		c, ok := contributions[ip]
		if !ok {
			c = &resultcache.Contribution{IP: ip, Unique: job.UniqueCheckIDHint, ProcessedChecks: task.ChecksPerIP}
			contributions[ip] = c
		}
		c.Services = append(c.Services, model.DiscoveredService{
			CheckID: r.CheckID,
			Status:  r.Status,
			Value:   r.Value,
		})
	})
	if err != nil {
		return errors.Wrapf(err, errors.KindDriverInit, "worker: batch probe for %s", task.ProtocolType)
	}

	partials := make([]resultcache.Contribution, 0, len(contributions))
	for _, c := range contributions {
		for _, svc := range c.Services {
			if svc.Status == model.StatusUp {
				c.DNSName = reverseDNSName(c.IP)
				break
			}
		}
		partials = append(partials, *c)
	}

	allIPs := make([]string, len(ips))
	for i, ip := range ips {
		allIPs[i] = ip.String()
	}
	p.cache.MergeFull(job.RuleID, allIPs, partials)
	return nil
}

// reverseDNSName resolves ip's PTR record, if any, trimming the
// trailing dot net.LookupAddr leaves on the hostname. A lookup failure
// (no PTR record, timeout, NXDOMAIN) is not an error here — it just
// means the discovered host has no resolvable name.
func reverseDNSName(ip string) string {
	names, err := net.LookupAddr(ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

func rangeIPs(ranges []string) []net.IP {
	// Ranges are pre-expanded by the scheduler into literal addresses
	// before a task is queued (see internal/scheduler), so each entry
	// here is already a single address.
	ips := make([]net.IP, 0, len(ranges))
	for _, r := range ranges {
		if ip := net.ParseIP(r); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips
}

// UsageStats returns each worker's busy fraction in [0.0, 1.0] since the
// last call, then resets the sample window (spec.md §4.8 USAGE_STATS).
func (p *Pool) UsageStats() []float64 {
	p.sampleMu.Lock()
	defer p.sampleMu.Unlock()

	now := clock.Now()
	elapsed := now.Sub(p.sampleAt)
	p.sampleAt = now

	out := make([]float64, len(p.busyNanos))
	for i := range p.busyNanos {
		busy := p.busyNanos[i].Swap(0)
		if elapsed <= 0 {
			out[i] = 0
			continue
		}
		f := float64(busy) / float64(elapsed)
		if f > 1 {
			f = 1
		}
		out[i] = f
	}
	return out
}

func (p *Pool) markJobFailed(job *model.Job, err error) {
	job.LastErr = err
	p.log.Warn("task failed, error recorded on job", "ruleId", job.RuleID, "err", err)
}
