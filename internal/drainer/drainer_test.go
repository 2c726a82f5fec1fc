package drainer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/discoverer/internal/model"
	"grimm.is/discoverer/internal/resultcache"
)

type fakeSink struct {
	opened        bool
	closed        bool
	ruleErrors    map[model.RuleID]string
	hostStatuses  map[string]model.ServiceStatus
	serviceCalls  int
	openShouldErr bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		ruleErrors:   make(map[model.RuleID]string),
		hostStatuses: make(map[string]model.ServiceStatus),
	}
}

func (f *fakeSink) Open(ctx context.Context) (Handle, error) {
	if f.openShouldErr {
		return nil, assertErr{}
	}
	f.opened = true
	return "handle", nil
}

func (f *fakeSink) Close(h Handle) { f.closed = true }

func (f *fakeSink) UpdateService(h Handle, ruleID model.RuleID, checkID, uniqueCheckID model.CheckID, dhost, ip, dns string, port int, status model.ServiceStatus, value string, now time.Time, addEvent EventCallback) error {
	f.serviceCalls++
	if addEvent != nil {
		addEvent("service", dhost, ip)
	}
	return nil
}

func (f *fakeSink) UpdateServiceDown(h Handle, dhostID string, now time.Time) error { return nil }

func (f *fakeSink) UpdateHost(h Handle, ruleID model.RuleID, dhost, ip, dns string, status model.ServiceStatus, now time.Time, addEvent EventCallback) error {
	f.hostStatuses[ip] = status
	return nil
}

func (f *fakeSink) UpdateRule(h Handle, ruleID model.RuleID, errString string, now time.Time) error {
	f.ruleErrors[ruleID] = errString
	return nil
}

func (f *fakeSink) FindHost(ruleID model.RuleID, ip string) (string, bool) {
	return "dhost-" + ip, true
}

type assertErr struct{}

func (assertErr) Error() string { return "open failed" }

func TestDrainPersistsHostUpWithAnyServiceUp(t *testing.T) {
	cache := resultcache.New()
	cache.SeedOutstanding(1, "10.0.0.1", 0)
	cache.MergeFull(1, []string{"10.0.0.1"}, []resultcache.Contribution{
		{
			IP:      "10.0.0.1",
			DNSName: "host1.example",
			Services: []model.DiscoveredService{
				{CheckID: 1, Status: model.StatusDown},
				{CheckID: 2, Status: model.StatusUp},
			},
		},
	})

	sink := newFakeSink()
	d := New(cache, sink, EventSink{}, nil, nil)

	drained, more := d.Drain(context.Background(), 0)
	assert.Equal(t, 1, drained)
	assert.False(t, more)
	assert.True(t, sink.opened)
	assert.True(t, sink.closed)
	assert.Equal(t, model.StatusUp, sink.hostStatuses["10.0.0.1"])
	assert.Equal(t, 2, sink.serviceCalls)
}

func TestDrainPersistsEntryWithoutDNSName(t *testing.T) {
	// A host with no PTR record still gets a "" DNSName from the worker,
	// not a skip: most discovered hosts have no reverse DNS entry at all,
	// and the original discoverer never actually skips on this either
	// (its dnsname is always initialized to "", never NULL).
	cache := resultcache.New()
	cache.SeedOutstanding(1, "10.0.0.2", 0)
	cache.MergeFull(1, []string{"10.0.0.2"}, nil)

	sink := newFakeSink()
	d := New(cache, sink, EventSink{}, nil, nil)

	drained, _ := d.Drain(context.Background(), 0)
	assert.Equal(t, 1, drained)
	status, ok := sink.hostStatuses["10.0.0.2"]
	assert.True(t, ok, "entry without a DNS name should still be persisted as a host")
	assert.Equal(t, model.StatusDown, status)
}

func TestDrainEmptyIPSentinelEmitsRuleError(t *testing.T) {
	cache := resultcache.New()
	cache.SeedOutstanding(9, "", 0)
	cache.RegisterHost(9, "")

	sink := newFakeSink()
	d := New(cache, sink, EventSink{}, nil, nil)

	drained, _ := d.Drain(context.Background(), 0)
	assert.Equal(t, 1, drained)
	errString, ok := sink.ruleErrors[9]
	require.True(t, ok)
	assert.Equal(t, "rule error", errString)
}

func TestDrainReturnsMoreWhenCacheStillHasReadyEntries(t *testing.T) {
	cache := resultcache.New()
	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		cache.SeedOutstanding(1, ip, 0)
		res := cache.RegisterHost(1, ip)
		res.DNSName = "host." + ip
	}

	sink := newFakeSink()
	d := New(cache, sink, EventSink{}, nil, nil)

	drained, more := d.Drain(context.Background(), 1)
	assert.Equal(t, 1, drained)
	assert.True(t, more, "one entry remains ready after draining a limit of 1")
}

func TestDrainInvokesEventCallbacks(t *testing.T) {
	cache := resultcache.New()
	cache.SeedOutstanding(1, "10.0.0.1", 0)
	cache.MergeFull(1, []string{"10.0.0.1"}, []resultcache.Contribution{
		{
			IP:       "10.0.0.1",
			DNSName:  "host1.example",
			Services: []model.DiscoveredService{{CheckID: 1, Status: model.StatusUp}},
		},
	})

	var addEventCalls, processCalls, cleanCalls int
	sink := newFakeSink()
	d := New(cache, sink, EventSink{
		AddEvent:      func(kind, dhost, ip string) { addEventCalls++ },
		ProcessEvents: func() { processCalls++ },
		CleanEvents:   func() { cleanCalls++ },
	}, nil, nil)

	d.Drain(context.Background(), 0)
	assert.Positive(t, addEventCalls)
	assert.Equal(t, 1, processCalls)
	assert.Equal(t, 1, cleanCalls)
}
