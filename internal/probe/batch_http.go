// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"grimm.is/discoverer/internal/model"
)

// HTTPBatchProber sweeps a range with concurrent net/http requests
// bounded by workerMax. Go's net/http has no multi-handle concept the
// way the original C discoverer's curl-multi loop does; a bounded
// goroutine fan-out is the idiomatic replacement for the "async HTTP
// fallback" the spec describes.
type HTTPBatchProber struct {
	TLS bool
}

func (p HTTPBatchProber) RunBatch(ctx context.Context, ips []net.IP, check model.Check, workerMax int, emit func(BatchResult)) error {
	timeout := time.Duration(check.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	port := 80
	if p.TLS {
		port = 443
	}
	if n, err := strconv.Atoi(check.Ports); err == nil && n > 0 {
		port = n
	}

	return runBounded(ctx, ips, workerMax, func(ip net.IP) {
		status, value, _ := probeHTTP(ctx, ip, port, p.TLS, check, timeout)
		emit(BatchResult{IP: ip, CheckID: check.CheckID, Status: status, Value: value})
	})
}
