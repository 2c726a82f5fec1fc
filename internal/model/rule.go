// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package model

import "time"

// ActiveWindow restricts a Rule to running only during certain weekdays
// and hours, mirroring the flexible-interval scheduling the original
// Zabbix discoverer supports (see SPEC_FULL.md §4.6). An empty window
// means "always active".
type ActiveWindow struct {
	// Weekdays, 0=Sunday..6=Saturday. Empty means every day.
	Weekdays []time.Weekday
	// StartHour/EndHour are in [0,24), EndHour exclusive. Zero value
	// (0,0) means the whole day.
	StartHour, EndHour int
}

// Active reports whether t falls inside the window.
func (w ActiveWindow) Active(t time.Time) bool {
	if len(w.Weekdays) == 0 && w.StartHour == 0 && w.EndHour == 0 {
		return true
	}
	if len(w.Weekdays) > 0 {
		found := false
		for _, d := range w.Weekdays {
			if d == t.Weekday() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if w.StartHour == 0 && w.EndHour == 0 {
		return true
	}
	h := t.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// Rule is a periodic discovery job description: ranges + checks.
// Immutable within a cycle.
type Rule struct {
	RuleID RuleID

	// DelayExpr is a time suffix ("30s", "1h") resolved per cycle via
	// RuleStore.ResolveUserMacros.
	DelayExpr string

	// IPRanges is the ordered list of range expressions (see internal/ipaddr).
	IPRanges []string

	// Checks is the ordered list of probes this rule runs per address.
	Checks []Check

	// UniqueCheckID, if non-zero, names the Check that determines host
	// identity. Resolved from the first Check with Uniq set if zero.
	UniqueCheckID CheckID

	// Revision is this rule's monotonic configuration version tag.
	Revision uint64

	// Active optionally restricts the rule to a time-of-day/weekday window.
	Active ActiveWindow
}

// ResolveUniqueCheckID returns the rule's UniqueCheckID, falling back to
// the first Check with Uniq set, and finally to 0 if none is marked.
func (r Rule) ResolveUniqueCheckID() CheckID {
	if r.UniqueCheckID != 0 {
		return r.UniqueCheckID
	}
	for _, c := range r.Checks {
		if c.Uniq {
			return c.CheckID
		}
	}
	return 0
}

// RuleRevision is the (ruleId, revision) pair returned by
// RuleStore.RuleRevisions for cheap staleness detection.
type RuleRevision struct {
	RuleID   RuleID
	Revision uint64
}
