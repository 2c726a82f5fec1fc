// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"sync"
	"time"

	"grimm.is/discoverer/internal/drainer"
	"grimm.is/discoverer/internal/logging"
	"grimm.is/discoverer/internal/model"
)

// loggingSink is a PersistenceSink that logs every drained host/service
// update instead of writing to a real store; it stands in for whatever
// durable inventory system a deployment actually persists discoveries
// into, which stays an external collaborator this binary never owns.
type loggingSink struct {
	log *logging.Logger

	mu    sync.Mutex
	hosts map[model.RuleID]map[string]string // ruleID -> ip -> dhost
}

func newLoggingSink(log *logging.Logger) *loggingSink {
	return &loggingSink{log: log, hosts: make(map[model.RuleID]map[string]string)}
}

func (s *loggingSink) Open(ctx context.Context) (drainer.Handle, error) {
	return "logging-sink", nil
}

func (s *loggingSink) Close(h drainer.Handle) {}

func (s *loggingSink) UpdateService(h drainer.Handle, ruleID model.RuleID, checkID, uniqueCheckID model.CheckID, dhost, ip, dns string, port int, status model.ServiceStatus, value string, now time.Time, addEvent drainer.EventCallback) error {
	s.log.Info("discovered service",
		"rule", ruleID, "checkId", checkID, "dhost", dhost, "ip", ip, "dns", dns,
		"port", port, "status", status, "value", value)
	if addEvent != nil {
		addEvent("service", dhost, ip)
	}
	return nil
}

func (s *loggingSink) UpdateServiceDown(h drainer.Handle, dhostID string, now time.Time) error {
	s.log.Info("service down", "dhost", dhostID)
	return nil
}

func (s *loggingSink) UpdateHost(h drainer.Handle, ruleID model.RuleID, dhost, ip, dns string, status model.ServiceStatus, now time.Time, addEvent drainer.EventCallback) error {
	s.log.Info("discovered host", "rule", ruleID, "dhost", dhost, "ip", ip, "dns", dns, "status", status)

	s.mu.Lock()
	if s.hosts[ruleID] == nil {
		s.hosts[ruleID] = make(map[string]string)
	}
	s.hosts[ruleID][ip] = dhost
	s.mu.Unlock()

	if addEvent != nil {
		addEvent("host", dhost, ip)
	}
	return nil
}

func (s *loggingSink) UpdateRule(h drainer.Handle, ruleID model.RuleID, errString string, now time.Time) error {
	if errString != "" {
		s.log.Warn("rule error", "rule", ruleID, "err", errString)
	}
	return nil
}

func (s *loggingSink) FindHost(ruleID model.RuleID, ip string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dhost, ok := s.hosts[ruleID][ip]
	return dhost, ok
}
