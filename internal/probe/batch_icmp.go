// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"grimm.is/discoverer/internal/model"
)

// ICMPBatchProber sweeps a range with one pro-bing.Pinger per target,
// fanned out bounded by workerMax — the teacher's own ICMP dependency,
// already exercised in internal/monitor/service.go.
type ICMPBatchProber struct{}

func (ICMPBatchProber) RunBatch(ctx context.Context, ips []net.IP, check model.Check, workerMax int, emit func(BatchResult)) error {
	timeout := time.Duration(check.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return runBounded(ctx, ips, workerMax, func(ip net.IP) {
		status, value := pingOnce(ctx, ip, timeout)
		emit(BatchResult{IP: ip, CheckID: check.CheckID, Status: status, Value: value})
	})
}

func pingOnce(ctx context.Context, ip net.IP, timeout time.Duration) (model.ServiceStatus, string) {
	pinger, err := probing.NewPinger(ip.String())
	if err != nil {
		return model.StatusDown, ""
	}
	pinger.SetPrivileged(false)
	pinger.Count = 1
	pinger.Timeout = timeout

	if err := pinger.RunWithContext(ctx); err != nil {
		return model.StatusDown, ""
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return model.StatusDown, ""
	}
	return model.StatusUp, stats.AvgRtt.String()
}
