// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"grimm.is/discoverer/internal/model"
)

// SNMPBatchProber sweeps a range with one gosnmp.GoSNMP client per
// batch slot, bounded by workerMax. SNMPv3 sessions carry per-user USM
// state and must never be shared across goroutines, so each in-flight
// probe gets its own client rather than pooling connections.
type SNMPBatchProber struct{}

func (SNMPBatchProber) RunBatch(ctx context.Context, ips []net.IP, check model.Check, workerMax int, emit func(BatchResult)) error {
	timeout := time.Duration(check.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	port := 161

	return runBounded(ctx, ips, workerMax, func(ip net.IP) {
		client, err := newSNMPClient(ip, port, check, timeout)
		if err != nil {
			emit(BatchResult{IP: ip, CheckID: check.CheckID, Status: model.StatusDown})
			return
		}
		if err := client.Connect(); err != nil {
			emit(BatchResult{IP: ip, CheckID: check.CheckID, Status: model.StatusDown})
			return
		}
		defer client.Conn.Close()

		oid := oidSysDescr
		if check.Key != "" {
			oid = check.Key
		}
		result, err := client.Get([]string{oid})
		if err != nil || len(result.Variables) == 0 {
			emit(BatchResult{IP: ip, CheckID: check.CheckID, Status: model.StatusDown})
			return
		}
		emit(BatchResult{
			IP:      ip,
			CheckID: check.CheckID,
			Status:  model.StatusUp,
			Value:   fmt.Sprintf("%v", result.Variables[0].Value),
		})
	})
}
