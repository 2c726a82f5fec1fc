// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	"grimm.is/discoverer/internal/model"
)

// probeLDAP dials the directory and, when bind credentials are present
// on the Check, attempts a bind; otherwise it probes with an anonymous
// bind. Either a successful connection or a successful bind counts as
// Up — a bind failure on otherwise-reachable LDAP still means the
// service answered.
func probeLDAP(ctx context.Context, ip net.IP, port int, check model.Check, timeout time.Duration) (model.ServiceStatus, string, error) {
	addr := fmt.Sprintf("ldap://%s", net.JoinHostPort(ip.String(), fmt.Sprint(port)))

	conn, err := ldap.DialURL(addr, ldap.DialWithDialer(&net.Dialer{Timeout: timeout}))
	if err != nil {
		return model.StatusDown, "", nil
	}
	defer conn.Close()
	conn.SetTimeout(timeout)

	bindDN := check.AuthPrimary
	if bindDN == "" {
		if err := conn.UnauthenticatedBind(""); err != nil {
			return model.StatusUp, "connected, anonymous bind rejected", nil
		}
		return model.StatusUp, "connected, anonymous bind ok", nil
	}

	if err := conn.Bind(bindDN, check.AuthSecondary); err != nil {
		return model.StatusUp, "connected, bind rejected", nil
	}
	return model.StatusUp, "connected, bind ok", nil
}
