// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package drainer implements the discovery engine's result drainer
// (C7): it pulls ready entries out of the result cache in bulk and
// translates each into PersistenceSink/EventSink calls, deriving
// host-up/down status along the way.
package drainer

import (
	"context"
	"time"

	"grimm.is/discoverer/internal/clock"
	"grimm.is/discoverer/internal/logging"
	"grimm.is/discoverer/internal/metrics"
	"grimm.is/discoverer/internal/model"
	"grimm.is/discoverer/internal/resultcache"
)

// Handle is an opaque persistence-session handle returned by
// PersistenceSink.Open and passed back to every other sink call in the
// same drain cycle.
type Handle any

// PersistenceSink is the external collaborator that durably records
// discovered hosts/services; the engine only ever calls it from the
// drain path, never from a worker.
type PersistenceSink interface {
	Open(ctx context.Context) (Handle, error)
	Close(h Handle)

	UpdateService(h Handle, ruleID model.RuleID, checkID, uniqueCheckID model.CheckID, dhost, ip, dns string, port int, status model.ServiceStatus, value string, now time.Time, addEvent EventCallback) error
	UpdateServiceDown(h Handle, dhostID string, now time.Time) error
	UpdateHost(h Handle, ruleID model.RuleID, dhost, ip, dns string, status model.ServiceStatus, now time.Time, addEvent EventCallback) error
	UpdateRule(h Handle, ruleID model.RuleID, errString string, now time.Time) error
	FindHost(ruleID model.RuleID, ip string) (dhost string, found bool)
}

// EventCallback is invoked per host/service update when the caller
// wants an event recorded; drainer never constructs one itself, it only
// forwards EventSink.AddEvent.
type EventCallback func(kind string, dhost, ip string)

// EventSink bundles the three optional event callbacks; any of them may
// be nil, in which case the drainer skips calling it.
type EventSink struct {
	AddEvent      func(kind, dhost, ip string)
	ProcessEvents func()
	CleanEvents   func()
}

// Drainer pulls ready entries from a resultcache.Cache and persists
// them.
type Drainer struct {
	cache   *resultcache.Cache
	sink    PersistenceSink
	event   EventSink
	log     *logging.Logger
	metrics *metrics.Metrics
}

// New builds a Drainer writing drained entries to sink via cache. m may
// be nil, in which case drain counters are simply never incremented.
func New(cache *resultcache.Cache, sink PersistenceSink, event EventSink, log *logging.Logger, m *metrics.Metrics) *Drainer {
	if log == nil {
		log = logging.Nop()
	}
	return &Drainer{cache: cache, sink: sink, event: event, log: log, metrics: m}
}

// Drain pulls up to limit ready entries and persists them, returning
// how many were drained and whether more remain ready right now (so the
// scheduler can skip its sleep and drain again immediately).
func (d *Drainer) Drain(ctx context.Context, limit int) (drained int, more bool) {
	entries := d.cache.DrainReady(limit)
	if len(entries) == 0 {
		return 0, false
	}

	handle, err := d.sink.Open(ctx)
	if err != nil {
		d.log.Error("drainer: open persistence handle", "err", err)
		return 0, d.cache.Len() > 0
	}
	defer d.sink.Close(handle)

	now := clock.Now()
	for _, e := range entries {
		d.drainOne(handle, now, e)
	}
	if d.event.CleanEvents != nil {
		d.event.CleanEvents()
	}

	if d.metrics != nil {
		d.metrics.DrainBatches.Inc()
		d.metrics.DrainedHosts.Add(float64(len(entries)))
	}

	return len(entries), d.cache.Len() > 0
}

func (d *Drainer) drainOne(handle Handle, now time.Time, e resultcache.Entry) {
	res := e.Result

	// Empty-IP sentinel: registerHost(ruleId, "") at rule failure. This
	// doubly serves as "a real host was discovered at the empty-string
	// address", which cannot actually happen for any of the supported
	// check types, so the sentinel use is unambiguous in practice (the
	// open question spec.md flags, preserved rather than resolved).
	if res.IP == "" {
		var errString string
		if len(res.Services) == 0 {
			errString = "rule error"
		}
		if err := d.sink.UpdateRule(handle, e.RuleID, errString, now); err != nil {
			d.log.Warn("drainer: update rule error", "ruleId", e.RuleID, "err", err)
		}
		return
	}

	// res.DNSName is frequently empty (no PTR record for the address);
	// the original discoverer initializes dnsname to "" rather than NULL
	// and so never skips persistence for its absence either.
	dhost, _ := d.sink.FindHost(e.RuleID, res.IP)
	status := model.StatusDown
	if res.IsUp() {
		status = model.StatusUp
	}

	for _, svc := range res.Services {
		var cb EventCallback
		if d.event.AddEvent != nil {
			cb = func(kind, dhost, ip string) { d.event.AddEvent(kind, dhost, ip) }
		}
		if err := d.sink.UpdateService(handle, e.RuleID, svc.CheckID, res.UniqueCheckID, dhost, res.IP, res.DNSName, svc.Port, svc.Status, svc.Value, now, cb); err != nil {
			d.log.Warn("drainer: update service", "ruleId", e.RuleID, "ip", res.IP, "err", err)
		}
	}

	var cb EventCallback
	if d.event.AddEvent != nil {
		cb = func(kind, dhost, ip string) { d.event.AddEvent(kind, dhost, ip) }
	}
	if err := d.sink.UpdateHost(handle, e.RuleID, dhost, res.IP, res.DNSName, status, now, cb); err != nil {
		d.log.Warn("drainer: update host", "ruleId", e.RuleID, "ip", res.IP, "err", err)
	}

	if d.event.ProcessEvents != nil {
		d.event.ProcessEvents()
	}
}
