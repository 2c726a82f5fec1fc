// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package probe implements the discovery engine's protocol drivers: one
// synchronous single-host probe per CheckType, plus batched async
// sweepers for the protocols the worker pool runs across a whole IP
// range in one task (ICMP, HTTP/HTTPS, SNMP). A probe failure is always
// reported as model.StatusDown, never a Go error — only a transport/
// driver initialization failure is surfaced as an error, since that
// aborts the owning task rather than marking one host down.
package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"grimm.is/discoverer/internal/errors"
	"grimm.is/discoverer/internal/model"
)

// SyncProbe runs a single (ip, port, check) probe and returns its
// status, a free-form value (banner text, OID value, agent response)
// and an error only when the probe's driver could not be initialized.
func SyncProbe(ctx context.Context, check model.Check, ip net.IP, port int) (model.ServiceStatus, string, error) {
	timeout := time.Duration(check.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	switch check.Type {
	case model.CheckTCP, model.CheckSMTP, model.CheckFTP, model.CheckPOP,
		model.CheckNNTP, model.CheckIMAP, model.CheckTELNET:
		return probeBanner(ctx, ip, port, timeout)
	case model.CheckHTTP:
		return probeHTTP(ctx, ip, port, false, check, timeout)
	case model.CheckHTTPS:
		return probeHTTP(ctx, ip, port, true, check, timeout)
	case model.CheckSSH:
		return probeSSHBanner(ctx, ip, port, timeout)
	case model.CheckLDAP:
		return probeLDAP(ctx, ip, port, check, timeout)
	case model.CheckSNMPv1, model.CheckSNMPv2c, model.CheckSNMPv3:
		return probeSNMPSync(ctx, ip, port, check, timeout)
	case model.CheckAGENT:
		return probeAgent(ctx, ip, port, check, timeout)
	case model.CheckICMP:
		return probeICMPSync(ctx, ip, timeout)
	default:
		return model.StatusDown, "", errors.Errorf(errors.KindDriverInit, "probe: unsupported check type %s", check.Type)
	}
}

// probeBanner dials a TCP-family protocol and reads whatever banner the
// server offers first, treating a connect failure as Down and a read
// timeout as Up-with-empty-value (many services only banner after a
// client line, which is out of scope here).
func probeBanner(ctx context.Context, ip net.IP, port int, timeout time.Duration) (model.ServiceStatus, string, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), fmt.Sprint(port)))
	if err != nil {
		return model.StatusDown, "", nil
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 256)
	n, _ := conn.Read(buf)
	return model.StatusUp, string(buf[:n]), nil
}

// probeSSHBanner performs the version-exchange half of the SSH
// handshake only; no authentication is attempted (out of scope).
func probeSSHBanner(ctx context.Context, ip net.IP, port int, timeout time.Duration) (model.ServiceStatus, string, error) {
	return probeBanner(ctx, ip, port, timeout)
}
