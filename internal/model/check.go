// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package model holds the discoverer's core data types: Rule, Check, Job,
// Task, PartialResult and DiscoveredService, exactly as specified.
package model

// CheckID identifies a Check within a Rule.
type CheckID uint64

// RuleID identifies a discovery Rule.
type RuleID uint64

// CheckType is the closed set of probe kinds a Check may request.
type CheckType int

const (
	CheckUnknown CheckType = iota
	CheckICMP
	CheckTCP
	CheckSMTP
	CheckFTP
	CheckPOP
	CheckNNTP
	CheckIMAP
	CheckHTTP
	CheckHTTPS
	CheckSSH
	CheckTELNET
	CheckLDAP
	CheckSNMPv1
	CheckSNMPv2c
	CheckSNMPv3
	CheckAGENT
)

func (t CheckType) String() string {
	switch t {
	case CheckICMP:
		return "ICMP"
	case CheckTCP:
		return "TCP"
	case CheckSMTP:
		return "SMTP"
	case CheckFTP:
		return "FTP"
	case CheckPOP:
		return "POP"
	case CheckNNTP:
		return "NNTP"
	case CheckIMAP:
		return "IMAP"
	case CheckHTTP:
		return "HTTP"
	case CheckHTTPS:
		return "HTTPS"
	case CheckSSH:
		return "SSH"
	case CheckTELNET:
		return "TELNET"
	case CheckLDAP:
		return "LDAP"
	case CheckSNMPv1:
		return "SNMPv1"
	case CheckSNMPv2c:
		return "SNMPv2c"
	case CheckSNMPv3:
		return "SNMPv3"
	case CheckAGENT:
		return "AGENT"
	default:
		return "UNKNOWN"
	}
}

// IsSNMP reports whether t is any SNMP variant.
func (t CheckType) IsSNMP() bool {
	return t == CheckSNMPv1 || t == CheckSNMPv2c || t == CheckSNMPv3
}

// IsBatchedAsync reports whether the worker pool should dispatch this
// check type as one range-spanning batched task rather than one task per
// (ip, port) pair (spec.md §4.6 expansion rule, §4.2 batched shape).
func (t CheckType) IsBatchedAsync() bool {
	return t == CheckICMP || t == CheckHTTP || t == CheckHTTPS || t.IsSNMP()
}

// TimeoutClass groups check types for global-timeout resolution
// (RuleStore.GlobalItemTimeout's "AGENT"/"SNMP"/"SIMPLE" categories).
func (t CheckType) TimeoutClass() string {
	switch {
	case t == CheckAGENT:
		return "AGENT"
	case t.IsSNMP():
		return "SNMP"
	default:
		return "SIMPLE"
	}
}

// Check is a single service probe definition within a Rule.
type Check struct {
	CheckID CheckID
	Type    CheckType

	// Ports is the textual port-range expression (e.g. "22" or "1-100").
	Ports string

	// Key is the probe-specific parameter: an agent item key for AGENT
	// checks, an OID for SNMP checks when set.
	Key string

	TimeoutSec    int
	AllowRedirect bool

	// AuthPrimary/AuthSecondary/AuthKey carry generic authentication
	// material so every protocol shares one struct instead of one field
	// per protocol (see SPEC_FULL.md §3): SNMP community or SNMPv3 user,
	// SNMPv3 auth/priv passphrase, SSH/LDAP bind password.
	AuthPrimary   string
	AuthSecondary string
	AuthKey       string

	// Uniq marks this check as the rule's identity-determining check
	// (spec.md's uniqueCheckId selection picks the first Check with Uniq set).
	Uniq bool
}
