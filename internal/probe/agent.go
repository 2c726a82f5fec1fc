// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"grimm.is/discoverer/internal/model"
)

// probeAgent speaks the Zabbix-agent plain-text protocol: dial, write
// the item key followed by a newline, read until EOF or timeout.
func probeAgent(ctx context.Context, ip net.IP, port int, check model.Check, timeout time.Duration) (model.ServiceStatus, string, error) {
	if port == 0 {
		port = 10050
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), fmt.Sprint(port)))
	if err != nil {
		return model.StatusDown, "", nil
	}
	defer conn.Close()

	key := check.Key
	if key == "" {
		key = "agent.ping"
	}

	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte(key + "\n")); err != nil {
		return model.StatusDown, "", nil
	}

	data, _ := io.ReadAll(conn)
	if len(data) == 0 {
		return model.StatusDown, "", nil
	}
	return model.StatusUp, string(data), nil
}
