package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

const serviceStopTimeout = 10 * time.Second

func serviceCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "service [install|uninstall|start|stop|restart|run]",
		Short:     "Control the system service",
		Long:      "Registers agentd with the system service manager. The installed service runs the web gateway and any configured schedules.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "uninstall", "start", "stop", "restart", "run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			prg := &daemon{cmd: cmd, opts: opts}
			svc, err := service.New(prg, &service.Config{
				Name:        "agentd",
				DisplayName: "agentd",
				Description: "Agentic command executor: web gateway and scheduled tasks.",
				Arguments:   []string{"service", "run"},
			})
			if err != nil {
				return err
			}

			action := args[0]
			if action == "run" {
				return svc.Run()
			}
			if err := service.Control(svc, action); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: done\n", action)
			return nil
		},
	}
}

// daemon adapts serve mode to the service manager's start/stop calls.
type daemon struct {
	cmd  *cobra.Command
	opts *cliOptions

	cancel context.CancelFunc
	done   chan struct{}
}

func (d *daemon) Start(service.Service) error {
	rt, err := buildRuntime(d.cmd, d.opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		defer rt.Close()
		if err := runServe(ctx, rt); err != nil && !errors.Is(err, context.Canceled) {
			rt.log.Error("service exited", "error", err)
		}
	}()
	return nil
}

func (d *daemon) Stop(service.Service) error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.done != nil {
		select {
		case <-d.done:
		case <-time.After(serviceStopTimeout):
		}
	}
	return nil
}
