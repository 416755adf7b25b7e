// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

/*
Package supervisor provides process supervision for Roomwatch using suture v4.

# Overview

Long-running components are grouped into three layers for failure isolation:

	RootSupervisor ("roomwatch")
	├── CoreSupervisor ("core-layer")
	│   ├── dedup.Cache (expiry sweeper)
	│   ├── notifier.Dispatcher
	│   ├── scheduler.Cleaner
	│   └── services.StoreGCService
	├── MonitoringSupervisor ("monitoring-layer")
	│   ├── mirror.Pool (one child supervisor per mirror context)
	│   ├── correlator.Correlator
	│   └── scheduler.Gate
	└── APISupervisor ("api-layer")
	    └── services.HTTPServerService

A mirror context that keeps crashing is restarted inside the pool's own
supervisor; the ops API stays up and keeps reporting pool status.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(),
	    supervisor.TreeConfigFromConfig(cfg.Supervisor))
	if err != nil {
	    return err
	}
	svcs := orchestrator.Services()
	for _, s := range svcs.Core {
	    tree.AddCoreService(s)
	}
	for _, s := range svcs.Monitoring {
	    tree.AddMonitoringService(s)
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))

	errCh := tree.ServeBackground(ctx)

# Failure Handling

Each failure increments a counter that decays over FailureDecay seconds.
Above FailureThreshold the supervisor waits FailureBackoff before the next
restart. A service returning an error wrapping suture.ErrDoNotRestart is
removed instead of restarted.

Zero fields in TreeConfig take suture's defaults: threshold 5, decay 30s,
backoff 15s and a 10s shutdown timeout per service.

# Logging

Supervisor events go through sutureslog into the process-wide slog logger,
which forwards to zerolog. Use EventHook to get the same logging on
supervisors built outside the tree, such as the mirror pool's.
*/
package supervisor
