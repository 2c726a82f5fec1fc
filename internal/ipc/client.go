// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ipc

import (
	"net"

	"grimm.is/discoverer/internal/errors"
)

// Client is a thin synchronous request/response client over one
// connection, used by peer processes and by tests.
type Client struct {
	conn net.Conn
}

// Dial connects to a Server listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIPC, "ipc: dial %s", socketPath)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Queue sends a QUEUE request and returns pendingChecksCount.
func (c *Client) Queue() (uint64, error) {
	resp, err := c.roundTrip(CodeQueue, nil)
	if err != nil {
		return 0, err
	}
	return DecodeQueueResponse(resp.Payload)
}

// UsageStats sends a USAGE_STATS request and returns per-worker busy
// fractions.
func (c *Client) UsageStats() ([]float64, error) {
	resp, err := c.roundTrip(CodeUsageStats, nil)
	if err != nil {
		return nil, err
	}
	return DecodeUsageStatsResult(resp.Payload)
}

// SNMPCacheReload sends a SNMP_CACHE_RELOAD request. The server does not
// reply to this code; the connection remains open for further requests.
func (c *Client) SNMPCacheReload() error {
	return WriteFrame(c.conn, CodeSNMPCacheReload, nil)
}

// Shutdown sends a SHUTDOWN request. The server closes the connection
// after receiving it.
func (c *Client) Shutdown() error {
	return WriteFrame(c.conn, CodeShutdown, nil)
}

func (c *Client) roundTrip(code Code, payload []byte) (Frame, error) {
	if err := WriteFrame(c.conn, code, payload); err != nil {
		return Frame{}, err
	}
	return ReadFrame(c.conn)
}
