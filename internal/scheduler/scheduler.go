// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package scheduler implements the discovery engine's rule scheduler
// (C6): revision diff, drain, pick-due-rules, expand, next-wake, run on
// a DISCOVERER_DELAY tick plus whenever rule revisions change.
// Grounded in the tick/sleep-until-next-due-time idiom from the
// example pack's rate-limited rescan loops (time.Ticker plus a
// soonest-due recompute each cycle) rather than a fixed-interval-only
// ticker.
package scheduler

import (
	"context"
	"net"
	"sort"
	"time"

	"grimm.is/discoverer/internal/clock"
	"grimm.is/discoverer/internal/ipaddr"
	"grimm.is/discoverer/internal/logging"
	"grimm.is/discoverer/internal/metrics"
	"grimm.is/discoverer/internal/model"
	"grimm.is/discoverer/internal/queue"
	"grimm.is/discoverer/internal/resultcache"
)

// RuleStore is the external collaborator that owns rule/check/range
// configuration; the scheduler only ever reads from it.
type RuleStore interface {
	RulesDue(now time.Time) ([]model.Rule, time.Time, error)
	RuleRevisions(lastSeen time.Time) ([]model.RuleRevision, error)
	Requeue(ruleID model.RuleID, delay time.Duration) error
	GlobalItemTimeout(itemType model.CheckType) (string, error)
	ResolveUserMacros(text string) (string, error)
}

// Drainer is the subset of internal/drainer.Drainer the scheduler calls
// between rule-admission passes.
type Drainer interface {
	Drain(ctx context.Context, limit int) (drained int, more bool)
}

// Scheduler runs the revision-diff/drain/expand/wake cycle.
type Scheduler struct {
	store   RuleStore
	q       *queue.Queue
	cache   *resultcache.Cache
	drain   Drainer
	log     *logging.Logger
	metrics *metrics.Metrics

	delay           time.Duration
	batchResultsNum int
	requeueDelay    time.Duration

	jobRefs  map[model.RuleID]*model.Job
	lastSeen time.Time
}

// Config bundles the scheduler's EngineConfig-derived tuning knobs.
type Config struct {
	Delay                   time.Duration
	BatchResultsNum         int
	DefaultRuleRequeueDelay time.Duration

	// Metrics, if non-nil, gets admit/requeue counters incremented.
	Metrics *metrics.Metrics
}

// New builds a Scheduler.
func New(store RuleStore, q *queue.Queue, cache *resultcache.Cache, drain Drainer, cfg Config, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 60 * time.Second
	}
	if cfg.BatchResultsNum <= 0 {
		cfg.BatchResultsNum = 1000
	}
	if cfg.DefaultRuleRequeueDelay <= 0 {
		cfg.DefaultRuleRequeueDelay = 60 * time.Second
	}
	return &Scheduler{
		store:           store,
		q:               q,
		cache:           cache,
		drain:           drain,
		log:             log,
		metrics:         cfg.Metrics,
		delay:           cfg.Delay,
		batchResultsNum: cfg.BatchResultsNum,
		requeueDelay:    cfg.DefaultRuleRequeueDelay,
		jobRefs:         make(map[model.RuleID]*model.Job),
	}
}

// Run blocks, executing Cycle on a DISCOVERER_DELAY tick, until ctx is
// canceled. wake, when non-nil, is also selected on so an IPC-driven
// revision-change notification can trigger an out-of-band cycle.
func (s *Scheduler) Run(ctx context.Context, wake <-chan struct{}) {
	nextWake := s.delay
	for {
		timer := time.NewTimer(nextWake)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-wake:
			timer.Stop()
		}

		due, more := s.Cycle(ctx)
		nextWake = due
		if more {
			nextWake = 0
		}
		if nextWake > s.delay {
			nextWake = s.delay
		}
	}
}

// Cycle runs one full scheduler pass (steps 1-4) and returns the
// duration until the next soonest-due rule, plus whether the drain left
// more work ready (in which case the caller should skip sleeping).
func (s *Scheduler) Cycle(ctx context.Context) (nextWake time.Duration, more bool) {
	now := clock.Now()

	s.diffRevisions(now)

	_, more = s.drain.Drain(ctx, s.batchResultsNum)

	due, wake, err := s.store.RulesDue(now)
	if err != nil {
		s.log.Error("scheduler: RulesDue", "err", err)
		return s.delay, more
	}

	incomplete := s.incompleteRuleIDs()
	for _, rule := range due {
		if incomplete[rule.RuleID] {
			continue
		}
		s.admitRule(now, rule)
	}

	s.lastSeen = now
	if wake.IsZero() {
		return s.delay, more
	}
	d := wake.Sub(now)
	if d < 0 {
		d = 0
	}
	if d > s.delay {
		d = s.delay
	}
	return d, more
}

// incompleteRuleIDs reports which tracked jobs still have outstanding
// work, so Cycle can defer re-admitting their rule this pass.
func (s *Scheduler) incompleteRuleIDs() map[model.RuleID]bool {
	out := make(map[model.RuleID]bool, len(s.jobRefs))
	for id, job := range s.jobRefs {
		if job.HasMoreTasks() || job.WorkersUsed > 0 {
			out[id] = true
		}
	}
	return out
}

// diffRevisions drops any tracked job whose rule revision changed or
// disappeared, purging its queued job. The rule's outstanding counts in
// the result cache are left as they are.
func (s *Scheduler) diffRevisions(now time.Time) {
	revisions, err := s.store.RuleRevisions(s.lastSeen)
	if err != nil {
		s.log.Error("scheduler: RuleRevisions", "err", err)
		return
	}

	seen := make(map[model.RuleID]uint64, len(revisions))
	for _, rr := range revisions {
		seen[rr.RuleID] = rr.Revision
	}

	for ruleID, job := range s.jobRefs {
		rev, ok := seen[ruleID]
		if ok && rev == job.RuleRevision {
			continue
		}
		s.q.PurgeRule(ruleID)
		delete(s.jobRefs, ruleID)
	}
}

// admitRule resolves one due rule's delay/timeouts, expands it into a
// Job, and pushes it to the queue. Any resolution failure aborts the
// rule for this cycle with a rule-error requeue, never a propagated
// error.
func (s *Scheduler) admitRule(now time.Time, rule model.Rule) {
	if !rule.Active.Active(now) {
		s.requeue(rule.RuleID)
		return
	}

	if _, err := s.store.ResolveUserMacros(rule.DelayExpr); err != nil {
		s.log.Warn("scheduler: invalid delayExpr, rule requeued at default interval", "ruleId", rule.RuleID, "err", err)
		s.cache.RegisterHost(rule.RuleID, "")
		s.requeue(rule.RuleID)
		return
	}

	for _, check := range rule.Checks {
		if _, err := s.store.GlobalItemTimeout(check.Type); err != nil {
			s.log.Warn("scheduler: invalid global timeout, rule aborted", "ruleId", rule.RuleID, "checkType", check.Type, "err", err)
			s.cache.RegisterHost(rule.RuleID, "")
			s.requeue(rule.RuleID)
			return
		}
	}

	job, outstanding, err := expand(rule)
	if err != nil {
		s.log.Warn("scheduler: expand failed, rule requeued", "ruleId", rule.RuleID, "err", err)
		s.cache.RegisterHost(rule.RuleID, "")
		s.requeue(rule.RuleID)
		return
	}
	if job == nil {
		// Zero IPs in range: no Job, no events (spec §8 boundary case).
		return
	}

	if err := s.q.Push(job); err != nil {
		s.log.Warn("scheduler: queue full, rule retried next cycle", "ruleId", rule.RuleID, "err", err)
		s.requeue(rule.RuleID)
		return
	}

	for k, n := range outstanding {
		s.cache.SeedOutstanding(rule.RuleID, k, n)
	}
	s.jobRefs[rule.RuleID] = job
	if s.metrics != nil {
		s.metrics.RulesAdmitted.Inc()
	}
}

// requeue defers ruleID to its default requeue delay, counting the
// deferral for the rules_requeued metric.
func (s *Scheduler) requeue(ruleID model.RuleID) {
	s.store.Requeue(ruleID, s.requeueDelay)
	if s.metrics != nil {
		s.metrics.RulesRequeued.Inc()
	}
}

// expand implements the (tasks, perIpCheckCounts, ipRanges,
// checksCommon) expansion rules from spec §4.6(d): sync check types
// yield one task per (ip, check), probing only the first port of the
// check's Ports expression (the rest of a port range is not probed);
// async types (except ICMP) yield one range-spanning task per check with
// checksPerIp=1; each ICMP check yields one task sweeping the union of
// every range.
func expand(rule model.Rule) (*model.Job, map[string]uint64, error) {
	ranges, err := ipaddr.ParseRanges(joinRanges(rule.IPRanges))
	if err != nil {
		return nil, nil, err
	}
	if ipaddr.Volume(ranges) == 0 {
		return nil, nil, nil
	}

	ips := enumerateAll(ranges)
	if len(ips) == 0 {
		return nil, nil, nil
	}

	job := &model.Job{
		RuleID:       rule.RuleID,
		RuleRevision: rule.Revision,
		ChecksCommon: rule.Checks,
		IPRanges:     rule.IPRanges,
		Status:       model.JobQueued,
	}
	outstanding := make(map[string]uint64, len(ips))
	for _, ip := range ips {
		outstanding[ip.String()] = 0
	}

	var icmpChecks []model.Check
	for _, check := range rule.Checks {
		switch {
		case check.Type == model.CheckICMP:
			icmpChecks = append(icmpChecks, check)
		case check.Type.IsBatchedAsync():
			ranges := make([]string, len(ips))
			for i, ip := range ips {
				ranges[i] = ip.String()
			}
			job.Tasks = append(job.Tasks, model.Task{
				Kind:         model.TaskBatchedAsync,
				Ranges:       ranges,
				ProtocolType: check.Type,
				Check:        check,
				ChecksPerIP:  1,
				CheckCount:   len(ips),
			})
			for _, ip := range ips {
				outstanding[ip.String()]++
			}
		default:
			for _, ip := range ips {
				port := parsePort(check.Ports)
				job.Tasks = append(job.Tasks, model.Task{
					Kind:       model.TaskSync,
					IP:         ip,
					Port:       port,
					Check:      check,
					CheckCount: 1,
				})
				outstanding[ip.String()]++
			}
		}
	}

	if len(icmpChecks) > 0 {
		ranges := make([]string, len(ips))
		for i, ip := range ips {
			ranges[i] = ip.String()
		}
		for _, check := range icmpChecks {
			job.Tasks = append(job.Tasks, model.Task{
				Kind:         model.TaskBatchedAsync,
				Ranges:       ranges,
				ProtocolType: model.CheckICMP,
				Check:        check,
				ChecksPerIP:  1,
				CheckCount:   len(ips),
			})
			for _, ip := range ips {
				outstanding[ip.String()]++
			}
		}
	}

	job.UniqueCheckIDHint = rule.ResolveUniqueCheckID()
	return job, outstanding, nil
}

func joinRanges(ranges []string) string {
	out := ""
	for i, r := range ranges {
		if i > 0 {
			out += ","
		}
		out += r
	}
	return out
}

func enumerateAll(ranges []ipaddr.Range) []net.IP {
	it := ipaddr.NewIterator(ranges)
	cursor := ipaddr.ZeroCursor()
	var ips []net.IP
	for {
		ip, next, ok := it.UniqNext(cursor)
		if !ok {
			break
		}
		ips = append(ips, ip)
		cursor = next
	}
	sort.Slice(ips, func(i, j int) bool { return ips[i].String() < ips[j].String() })
	return ips
}

func parsePort(expr string) int {
	var port int
	for _, c := range expr {
		if c < '0' || c > '9' {
			break
		}
		port = port*10 + int(c-'0')
	}
	return port
}
