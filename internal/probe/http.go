// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"grimm.is/discoverer/internal/model"
)

func probeHTTP(ctx context.Context, ip net.IP, port int, tls bool, check model.Check, timeout time.Duration) (model.ServiceStatus, string, error) {
	scheme := "http"
	if tls {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s/", scheme, net.JoinHostPort(ip.String(), fmt.Sprint(port)))

	client := &http.Client{Timeout: timeout}
	if !check.AllowRedirect {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.StatusDown, "", nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return model.StatusDown, "", nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return model.StatusUp, fmt.Sprintf("%d %s", resp.StatusCode, string(body)), nil
}
