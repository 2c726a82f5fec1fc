package probe

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/discoverer/internal/model"
)

func TestRunBoundedRespectsWorkerMax(t *testing.T) {
	ips := make([]net.IP, 10)
	for i := range ips {
		ips[i] = net.ParseIP("127.0.0.1")
	}

	var inFlight, maxSeen int32
	err := runBounded(context.Background(), ips, 3, func(ip net.IP) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, int(maxSeen), 3)
}

func TestRunBoundedVisitsEveryAddress(t *testing.T) {
	ips := []net.IP{
		net.ParseIP("10.0.0.1"),
		net.ParseIP("10.0.0.2"),
		net.ParseIP("10.0.0.3"),
	}
	var visited int32
	err := runBounded(context.Background(), ips, 2, func(net.IP) {
		atomic.AddInt32(&visited, 1)
	})
	require.NoError(t, err)
	assert.EqualValues(t, len(ips), visited)
}

func TestHTTPBatchProberUsesPortFromCheck(t *testing.T) {
	port := unusedPort(t)
	check := model.Check{CheckID: 7, Ports: fmt.Sprint(port), TimeoutSec: 1}

	p := HTTPBatchProber{}
	var results []BatchResult
	err := p.RunBatch(context.Background(), []net.IP{net.ParseIP("127.0.0.1")}, check, 1, func(r BatchResult) {
		results = append(results, r)
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.CheckID(7), results[0].CheckID)
	assert.Equal(t, model.StatusDown, results[0].Status)
}
