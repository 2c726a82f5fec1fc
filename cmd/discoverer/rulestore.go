// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"grimm.is/discoverer/internal/model"
)

// ruleFile is the on-disk shape a rules YAML file is decoded into. It
// mirrors model.Rule/model.Check closely enough that callers can hand-
// write a small rules file for a standalone run of the binary; a real
// deployment would back RuleStore with its own rule database instead.
type ruleFile struct {
	Rules []struct {
		RuleID        uint64   `yaml:"ruleId"`
		DelayExpr     string   `yaml:"delay"`
		IPRanges      []string `yaml:"ipRanges"`
		UniqueCheckID uint64   `yaml:"uniqueCheckId"`
		Revision      uint64   `yaml:"revision"`
		Checks        []struct {
			CheckID uint64 `yaml:"checkId"`
			Type    string `yaml:"type"`
			Ports   string `yaml:"ports"`
			Uniq    bool   `yaml:"uniq"`
			Timeout int    `yaml:"timeoutSec"`
		} `yaml:"checks"`
	} `yaml:"rules"`
}

// fileRuleStore is a minimal, non-reloading RuleStore backed by a
// rules.yaml file: every rule is considered due once its resolved delay
// has elapsed since it was last returned from RulesDue.
type fileRuleStore struct {
	mu       sync.Mutex
	rules    []model.Rule
	lastSeen map[model.RuleID]time.Time
	timeouts map[string]time.Duration
}

func newFileRuleStore(path string, timeouts map[string]time.Duration) (*fileRuleStore, error) {
	store := &fileRuleStore{lastSeen: make(map[model.RuleID]time.Time), timeouts: timeouts}
	if path == "" {
		return store, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, err
	}

	for _, r := range rf.Rules {
		rule := model.Rule{
			RuleID:        model.RuleID(r.RuleID),
			DelayExpr:     r.DelayExpr,
			IPRanges:      r.IPRanges,
			UniqueCheckID: model.CheckID(r.UniqueCheckID),
			Revision:      r.Revision,
		}
		for _, c := range r.Checks {
			rule.Checks = append(rule.Checks, model.Check{
				CheckID:    model.CheckID(c.CheckID),
				Type:       checkTypeFromString(c.Type),
				Ports:      c.Ports,
				Uniq:       c.Uniq,
				TimeoutSec: c.Timeout,
			})
		}
		store.rules = append(store.rules, rule)
	}
	return store, nil
}

func (s *fileRuleStore) RulesDue(now time.Time) ([]model.Rule, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []model.Rule
	next := now.Add(time.Minute)
	for _, r := range s.rules {
		delay, err := time.ParseDuration(r.DelayExpr)
		if err != nil {
			delay = time.Minute
		}
		last, seen := s.lastSeen[r.RuleID]
		wake := last.Add(delay)
		if !seen || !now.Before(wake) {
			due = append(due, r)
			s.lastSeen[r.RuleID] = now
			wake = now.Add(delay)
		}
		if wake.Before(next) {
			next = wake
		}
	}
	return due, next, nil
}

func (s *fileRuleStore) RuleRevisions(lastSeen time.Time) ([]model.RuleRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.RuleRevision, len(s.rules))
	for i, r := range s.rules {
		out[i] = model.RuleRevision{RuleID: r.RuleID, Revision: r.Revision}
	}
	return out, nil
}

func (s *fileRuleStore) Requeue(ruleID model.RuleID, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[ruleID] = time.Now()
	return nil
}

func (s *fileRuleStore) GlobalItemTimeout(itemType model.CheckType) (string, error) {
	if d, ok := s.timeouts[itemType.TimeoutClass()]; ok {
		return d.String(), nil
	}
	return "3s", nil
}

func (s *fileRuleStore) ResolveUserMacros(text string) (string, error) {
	return text, nil
}

func checkTypeFromString(s string) model.CheckType {
	switch s {
	case "ICMP":
		return model.CheckICMP
	case "TCP":
		return model.CheckTCP
	case "SMTP":
		return model.CheckSMTP
	case "FTP":
		return model.CheckFTP
	case "POP":
		return model.CheckPOP
	case "NNTP":
		return model.CheckNNTP
	case "IMAP":
		return model.CheckIMAP
	case "HTTP":
		return model.CheckHTTP
	case "HTTPS":
		return model.CheckHTTPS
	case "SSH":
		return model.CheckSSH
	case "TELNET":
		return model.CheckTELNET
	case "LDAP":
		return model.CheckLDAP
	case "SNMPv1":
		return model.CheckSNMPv1
	case "SNMPv2c":
		return model.CheckSNMPv2c
	case "SNMPv3":
		return model.CheckSNMPv3
	case "AGENT":
		return model.CheckAGENT
	default:
		return model.CheckUnknown
	}
}
