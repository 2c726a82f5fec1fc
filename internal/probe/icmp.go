// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"grimm.is/discoverer/internal/errors"
	"grimm.is/discoverer/internal/model"
)

// probeICMPSync runs a single unprivileged ICMP echo against one host.
// The batched sweeper (batch_icmp.go) is the path the worker pool
// actually uses; this exists for the sync-probe contract and tests.
func probeICMPSync(ctx context.Context, ip net.IP, timeout time.Duration) (model.ServiceStatus, string, error) {
	pinger, err := probing.NewPinger(ip.String())
	if err != nil {
		return model.StatusDown, "", errors.Wrapf(err, errors.KindDriverInit, "icmp: new pinger for %s", ip)
	}
	pinger.SetPrivileged(false)
	pinger.Count = 1
	pinger.Timeout = timeout

	if err := pinger.RunWithContext(ctx); err != nil {
		return model.StatusDown, "", nil
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return model.StatusDown, "", nil
	}
	return model.StatusUp, stats.AvgRtt.String(), nil
}
