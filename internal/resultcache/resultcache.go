// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package resultcache implements the discovery engine's result
// aggregation cache: two maps — results and outstanding-check counts,
// both keyed by (ruleId, ip) — behind one mutex (resultsLock). Workers
// commit probe outcomes here as tasks complete; the drainer later pulls
// ready entries out in bulk.
package resultcache

import (
	"sync"
	"time"

	"grimm.is/discoverer/internal/model"
)

// key identifies one host's accumulating result within one rule cycle.
type key struct {
	RuleID model.RuleID
	IP     string
}

// Contribution is one async task's reported outcome for a single host
// within the IP slice it swept, passed to MergePartialRange.
type Contribution struct {
	IP      string
	Unique  model.CheckID
	DNSName string

	Services []model.DiscoveredService

	// ProcessedChecks is how many checks this contribution actually
	// covers for IP. It must equal the owning task's ChecksPerIP for the
	// merge to apply — see MergePartialRange's doc comment.
	ProcessedChecks int
}

// Cache is the engine's shared result aggregator.
type Cache struct {
	mu sync.Mutex

	results     map[key]*model.PartialResult
	outstanding map[key]uint64
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		results:     make(map[key]*model.PartialResult),
		outstanding: make(map[key]uint64),
	}
}

// DecrementOutstanding atomically decreases the outstanding-check
// counter for (ruleId, ip) by n. ok is false when no such counter
// exists — never seeded, or already removed by DrainReady — in which
// case the caller must discard its contribution without raising an
// error (spec §4.4 revision safety).
func (c *Cache) DecrementOutstanding(ruleID model.RuleID, ip string, n uint64) (remaining uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{ruleID, ip}
	cur, present := c.outstanding[k]
	if !present {
		return 0, false
	}
	if n > cur {
		n = cur
	}
	cur -= n
	c.outstanding[k] = cur
	if res := c.results[k]; res != nil {
		res.OutstandingChecks = cur
	}
	return cur, true
}

// RegisterHost upserts an empty PartialResult for (ruleId, ip), used
// for DNS-only updates and (with ip == "") as the rule-level error
// sentinel the drainer special-cases.
func (c *Cache) RegisterHost(ruleID model.RuleID, ip string) *model.PartialResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{ruleID, ip}
	res, ok := c.results[k]
	if !ok {
		res = &model.PartialResult{RuleID: ruleID, IP: ip, CreatedAt: time.Now()}
		c.results[k] = res
	}
	return res
}

// SeedOutstanding sets the starting outstanding-check count for
// (ruleId, ip) when a job is admitted — called by the scheduler during
// expansion, before any worker can commit a contribution.
func (c *Cache) SeedOutstanding(ruleID model.RuleID, ip string, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outstanding[key{ruleID, ip}] = n
}

// MergePartialRange commits one async task's IP-slice contribution. For
// each Contribution, the partial is merged into results only if
// ProcessedChecks equals checksPerIP and DecrementOutstanding succeeds;
// otherwise it is silently skipped — not logged at error level — the
// same behavior the original engine exhibits on a checksPerIp mismatch
// (preserved here rather than "fixed", see DESIGN.md).
func (c *Cache) MergePartialRange(ruleID model.RuleID, checksPerIP int, partials []Contribution) {
	for _, p := range partials {
		if p.ProcessedChecks != checksPerIP {
			continue
		}
		if _, ok := c.DecrementOutstanding(ruleID, p.IP, uint64(len(p.Services))); !ok {
			continue
		}
		c.mergeOne(ruleID, p)
	}
}

// MergeFull commits every IP in a completed task's range: IPs present in
// partials merge as usual, and IPs with no probe hits at all get an
// empty PartialResult inserted, representing "host down" to the
// drainer.
func (c *Cache) MergeFull(ruleID model.RuleID, allIPs []string, partials []Contribution) {
	byIP := make(map[string]Contribution, len(partials))
	for _, p := range partials {
		byIP[p.IP] = p
	}

	for _, ip := range allIPs {
		if p, ok := byIP[ip]; ok {
			if _, ok := c.DecrementOutstanding(ruleID, ip, uint64(len(p.Services))); ok {
				c.mergeOne(ruleID, p)
			}
			continue
		}
		c.RegisterHost(ruleID, ip)
		c.DecrementOutstanding(ruleID, ip, 0)
	}
}

func (c *Cache) mergeOne(ruleID model.RuleID, p Contribution) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{ruleID, p.IP}
	res, ok := c.results[k]
	if !ok {
		res = &model.PartialResult{RuleID: ruleID, IP: p.IP, CreatedAt: time.Now()}
		c.results[k] = res
	}
	if p.Unique != 0 {
		res.UniqueCheckID = p.Unique
	}
	if p.DNSName != "" {
		res.DNSName = p.DNSName
	}
	res.Services = append(res.Services, p.Services...)
	res.OutstandingChecks = c.outstanding[k]
}

// Entry is one drained result, ready for the persistence/event sinks.
type Entry struct {
	RuleID model.RuleID
	Result model.PartialResult
}

// DrainReady removes and returns up to limit entries whose outstanding
// count has reached zero — the bulk drainReady() method design note §9
// calls for, replacing an intrusive-hashset iteration. limit <= 0 means
// unbounded.
func (c *Cache) DrainReady(limit int) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Entry
	for k, res := range c.results {
		if limit > 0 && len(out) >= limit {
			break
		}
		if c.outstanding[k] != 0 {
			continue
		}
		out = append(out, Entry{RuleID: k.RuleID, Result: *res})
		delete(c.results, k)
		delete(c.outstanding, k)
	}
	return out
}

// Len reports how many (ruleId, ip) entries are currently cached,
// ready or not — used by the drainer, the engine's metrics sampler and
// tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}
