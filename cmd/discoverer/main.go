// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command discoverer is the engine's process entrypoint: it loads an
// EngineConfig, wires an Engine against a file-backed RuleStore and a
// logging PersistenceSink, and runs until a signal or an IPC SHUTDOWN
// request arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/discoverer/internal/config"
	"grimm.is/discoverer/internal/engine"
	"grimm.is/discoverer/internal/logging"
	"grimm.is/discoverer/internal/supervisor"
)

func main() {
	configFile := flag.String("config", "", "path to an EngineConfig YAML file (defaults built-in if empty)")
	rulesFile := flag.String("rules", "", "path to a rules YAML file for the built-in file-backed RuleStore")
	socketOverride := flag.String("ipc-socket", "", "override EngineConfig.IPCSocketPath")
	stateDir := flag.String("state-dir", "/var/lib/discoverer", "directory for supervisor crash-loop state")
	flag.Parse()

	log := logging.New(logging.DefaultConfig())

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Error("discoverer: config load failed", "err", err)
		os.Exit(1)
	}
	if *socketOverride != "" {
		cfg.IPCSocketPath = *socketOverride
	}

	if !supervisor.ShouldSkipDetection() {
		sv := supervisor.New(*stateDir, supervisor.DefaultConfig())
		if sv.ShouldEnterSafeMode() {
			log.Error("discoverer: too many recent crashes, refusing to start", "stateDir", *stateDir)
			os.Exit(1)
		}
		sv.StartStabilityTimer()
		defer func() {
			if r := recover(); r != nil {
				_ = sv.RecordExit(1, 0, true)
				panic(r)
			}
			_ = sv.RecordExit(0, 0, false)
		}()
	}

	store, err := newFileRuleStore(*rulesFile, cfg.GlobalTimeouts)
	if err != nil {
		log.Error("discoverer: rule store load failed", "err", err)
		os.Exit(1)
	}

	eng := engine.New(cfg, engine.Collaborators{
		Store: store,
		Sink:  newLoggingSink(log),
	}, log)
	eng.Metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	if err := eng.Start(ctx); err != nil {
		log.Error("discoverer: engine start failed", "err", err)
		cancel()
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("discoverer: shutting down")
	eng.Stop()
	cancel()
}

func loadConfig(path string) (config.EngineConfig, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config.EngineConfig{}, fmt.Errorf("read %s: %w", path, err)
	}
	return config.ParseYAML(data)
}
