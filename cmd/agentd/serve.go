package main

import (
	"context"
	"fmt"
	"time"

	"github.com/agentd-dev/agentd/internal/engine"
	"github.com/agentd-dev/agentd/internal/events"
	"github.com/agentd-dev/agentd/internal/gateway"
	"github.com/agentd-dev/agentd/internal/schedule"
	"github.com/agentd-dev/agentd/internal/telemetry"
)

const (
	telemetryFlushTimeout = 5 * time.Second
	scheduleStopTimeout   = 30 * time.Second
)

// runServe blocks until ctx is cancelled, running the HTTP gateway and
// any configured cron tasks.
func runServe(ctx context.Context, rt *runtime) error {
	shutdown, err := telemetry.Init(ctx, rt.cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		fctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := shutdown(fctx); err != nil {
			rt.log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if len(rt.cfg.Schedules) > 0 {
		// Scheduled tasks run on fresh sessions so they never
		// interleave with the web conversation. The null sink denies
		// approval requests, so gated tools stay gated when nobody is
		// watching.
		runner := schedule.RunnerFunc(func(ctx context.Context, task string) (string, error) {
			s := engine.New(rt.provider, rt.cfg, rt.tools, rt.env, rt.engOpts)
			return s.Run(ctx, task, events.NullSink{})
		})
		sched := schedule.New(runner, rt.log)
		for _, job := range rt.cfg.Schedules {
			if err := sched.Add(job); err != nil {
				return err
			}
		}
		if err := sched.Start(); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), scheduleStopTimeout)
			defer cancel()
			if err := sched.Stop(sctx); err != nil {
				rt.log.Warn("scheduler stop failed", "error", err)
			}
		}()
	}

	gw := gateway.New(rt.session, gateway.Options{
		Metrics: rt.metrics,
		Version: version,
		Log:     rt.log,
	})
	addr := fmt.Sprintf(":%d", rt.cfg.ServePort)
	rt.log.Info("gateway listening", "addr", addr, "workspace", rt.cfg.WorkspaceRoot)
	return gw.Run(ctx, addr)
}
