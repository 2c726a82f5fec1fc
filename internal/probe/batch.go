// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"grimm.is/discoverer/internal/model"
)

// BatchResult is one outcome from a batched async sweep.
type BatchResult struct {
	IP      net.IP
	CheckID model.CheckID
	Status  model.ServiceStatus
	Value   string
}

// BatchProber sweeps a whole IP slice for one protocol in a single
// task, bounded to workerMax concurrent in-flight probes. emit is
// called once per address from whichever goroutine completed that
// probe; callers must make it safe for concurrent use. A returned error
// means the driver itself could not be initialized and the task should
// be aborted — never that an individual host was unreachable.
type BatchProber interface {
	RunBatch(ctx context.Context, ips []net.IP, check model.Check, workerMax int, emit func(BatchResult)) error
}

// runBounded fans f out over ips with at most workerMax concurrent
// callers, the shared fan-out shape every BatchProber implementation
// uses (ICMP, async HTTP, SNMP).
func runBounded(ctx context.Context, ips []net.IP, workerMax int, f func(ip net.IP)) error {
	if workerMax <= 0 {
		workerMax = 1
	}
	sem := semaphore.NewWeighted(int64(workerMax))
	var wg sync.WaitGroup

	for _, ip := range ips {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(ip net.IP) {
			defer wg.Done()
			defer sem.Release(1)
			f(ip)
		}(ip)
	}
	wg.Wait()
	return ctx.Err()
}
