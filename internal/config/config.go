// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config defines the discoverer's init-time configuration
// contract. Loading rules/checks/ranges themselves is an external
// collaborator (see scheduler.RuleStore for the interface); EngineConfig is
// the one struct the engine itself owns.
package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the init-time configuration for a discovery Engine.
type EngineConfig struct {
	// Workers is the fixed size of the worker pool. Must be >= 1.
	Workers int `hcl:"workers,optional" yaml:"workers,omitempty"`

	// QueueMaxSize caps pendingChecksCount (DISCOVERER_QUEUE_MAX_SIZE).
	QueueMaxSize uint64 `hcl:"queue_max_size,optional" yaml:"queue_max_size,omitempty"`

	// SNMPv3MaxWorkers caps concurrent SNMPv3 tasks engine-wide.
	SNMPv3MaxWorkers int `hcl:"snmpv3_max_workers,optional" yaml:"snmpv3_max_workers,omitempty"`

	// Delay is the scheduler tick interval (DISCOVERER_DELAY).
	Delay time.Duration `hcl:"delay,optional" yaml:"delay,omitempty"`

	// BatchResultsNum caps how many completed partials the drainer flushes
	// per cycle (DISCOVERER_BATCH_RESULTS_NUM).
	BatchResultsNum int `hcl:"batch_results_num,optional" yaml:"batch_results_num,omitempty"`

	// SourceIP is the local address probes should originate from, if set.
	SourceIP string `hcl:"source_ip,optional" yaml:"source_ip,omitempty"`

	// DefaultCheckTimeout is used when a Check doesn't specify its own.
	DefaultCheckTimeout time.Duration `hcl:"default_check_timeout,optional" yaml:"default_check_timeout,omitempty"`

	// GlobalTimeouts resolves per-check-type timeouts (AGENT/SNMP/SIMPLE)
	// the way RuleStore.GlobalItemTimeout would for a live deployment.
	GlobalTimeouts map[string]time.Duration `hcl:"global_timeouts,optional" yaml:"global_timeouts,omitempty"`

	// StartupTimeout bounds how long engine init may take before it is
	// treated as a fatal error (STARTUP_TIMEOUT).
	StartupTimeout time.Duration `hcl:"startup_timeout,optional" yaml:"startup_timeout,omitempty"`

	// IPCSocketPath is the unix domain socket path for the C8 IPC service.
	IPCSocketPath string `hcl:"ipc_socket_path,optional" yaml:"ipc_socket_path,omitempty"`

	// DefaultRuleRequeueDelay is used when a rule's delayExpr cannot be
	// resolved; the rule is requeued at this interval instead.
	DefaultRuleRequeueDelay time.Duration `hcl:"default_rule_requeue_delay,optional" yaml:"default_rule_requeue_delay,omitempty"`
}

// Default engine tuning values, matching spec.md's stated defaults.
const (
	DefaultQueueMaxSize        = 100_000
	DefaultBatchResultsNum     = 1000
	DefaultDelay               = 60 * time.Second
	DefaultStartupTimeout      = 30 * time.Second
	DefaultSNMPv3MaxWorkers    = 1
	DefaultCheckTimeoutSeconds = 3 * time.Second
	DefaultRequeueDelay        = 60 * time.Second
	DefaultIPCSocketPath       = "/run/discoverer/discoverer.sock"
)

// DefaultConfig returns an EngineConfig with every field at its
// spec-documented default.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		Workers:                 5,
		QueueMaxSize:            DefaultQueueMaxSize,
		SNMPv3MaxWorkers:        DefaultSNMPv3MaxWorkers,
		Delay:                   DefaultDelay,
		BatchResultsNum:         DefaultBatchResultsNum,
		DefaultCheckTimeout:     DefaultCheckTimeoutSeconds,
		StartupTimeout:          DefaultStartupTimeout,
		IPCSocketPath:           DefaultIPCSocketPath,
		DefaultRuleRequeueDelay: DefaultRequeueDelay,
	}
}

// ApplyDefaults fills in zero-valued fields with their defaults; callers
// constructing an EngineConfig by hand only need to set what they care
// about.
func (c *EngineConfig) ApplyDefaults() {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueMaxSize == 0 {
		c.QueueMaxSize = d.QueueMaxSize
	}
	if c.SNMPv3MaxWorkers <= 0 {
		c.SNMPv3MaxWorkers = d.SNMPv3MaxWorkers
	}
	if c.Delay <= 0 {
		c.Delay = d.Delay
	}
	if c.BatchResultsNum <= 0 {
		c.BatchResultsNum = d.BatchResultsNum
	}
	if c.DefaultCheckTimeout <= 0 {
		c.DefaultCheckTimeout = d.DefaultCheckTimeout
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = d.StartupTimeout
	}
	if c.IPCSocketPath == "" {
		c.IPCSocketPath = d.IPCSocketPath
	}
	if c.DefaultRuleRequeueDelay <= 0 {
		c.DefaultRuleRequeueDelay = d.DefaultRuleRequeueDelay
	}
}

// ParseYAML decodes an EngineConfig from YAML, applying defaults to any
// field left unset.
func ParseYAML(data []byte) (EngineConfig, error) {
	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
