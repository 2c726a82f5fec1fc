// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gosnmp/gosnmp"

	"grimm.is/discoverer/internal/errors"
	"grimm.is/discoverer/internal/model"
)

const oidSysDescr = ".1.3.6.1.2.1.1.1.0"

// probeSNMPSync runs one synchronous Get against a single host, reached
// through SyncProbe. The worker pool always probes SNMP through the
// batched sweeper in batch_snmp.go, whatever workersMax is.
func probeSNMPSync(ctx context.Context, ip net.IP, port int, check model.Check, timeout time.Duration) (model.ServiceStatus, string, error) {
	client, err := newSNMPClient(ip, port, check, timeout)
	if err != nil {
		return model.StatusDown, "", errors.Wrapf(err, errors.KindDriverInit, "snmp: init client for %s", ip)
	}

	if err := client.Connect(); err != nil {
		// A transport failure to reach the agent is a down host, not a
		// driver-init error: the client itself initialized fine.
		return model.StatusDown, "", nil
	}
	defer client.Conn.Close()

	oid := oidSysDescr
	if check.Key != "" {
		oid = check.Key
	}

	result, err := client.Get([]string{oid})
	if err != nil || len(result.Variables) == 0 {
		return model.StatusDown, "", nil
	}

	return model.StatusUp, fmt.Sprintf("%v", result.Variables[0].Value), nil
}

func newSNMPClient(ip net.IP, port int, check model.Check, timeout time.Duration) (*gosnmp.GoSNMP, error) {
	client := &gosnmp.GoSNMP{
		Target:    ip.String(),
		Port:      uint16(port),
		Timeout:   timeout,
		Retries:   1,
		MaxOids:   gosnmp.MaxOids,
	}

	switch check.Type {
	case model.CheckSNMPv1:
		client.Version = gosnmp.Version1
		client.Community = communityOrDefault(check.AuthPrimary)
	case model.CheckSNMPv2c:
		client.Version = gosnmp.Version2c
		client.Community = communityOrDefault(check.AuthPrimary)
	case model.CheckSNMPv3:
		client.Version = gosnmp.Version3
		client.SecurityModel = gosnmp.UserSecurityModel
		msgFlags := gosnmp.NoAuthNoPriv
		if check.AuthSecondary != "" {
			msgFlags = gosnmp.AuthNoPriv
		}
		if check.AuthKey != "" {
			msgFlags = gosnmp.AuthPriv
		}
		client.MsgFlags = msgFlags
		client.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 check.AuthPrimary,
			AuthenticationProtocol:   gosnmp.SHA,
			AuthenticationPassphrase: check.AuthSecondary,
			PrivacyProtocol:          gosnmp.AES,
			PrivacyPassphrase:        check.AuthKey,
		}
	default:
		return nil, fmt.Errorf("not an SNMP check type: %s", check.Type)
	}

	return client, nil
}

func communityOrDefault(community string) string {
	if community == "" {
		return "public"
	}
	return community
}
