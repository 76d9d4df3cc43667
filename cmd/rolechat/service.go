package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/rolechat/pkg/app"
)

// program adapts the gateway to the service manager's start/stop hooks.
type program struct {
	params app.Params

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s service.Service) error {
	a, err := app.Build(context.Background(), p.params)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		err := a.Serve(ctx)
		closeCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		done <- errors.Join(err, a.Close(closeCtx))
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case err := <-done:
		return err
	case <-time.After(20 * time.Second):
		return errors.New("service: timed out waiting for shutdown")
	}
}

func newService(cmd *cobra.Command) (service.Service, error) {
	p := params(cmd)
	if p.ConfigPath != "" {
		abs, err := filepath.Abs(p.ConfigPath)
		if err != nil {
			return nil, err
		}
		p.ConfigPath = abs
	}

	svcCfg := &service.Config{
		Name:        "rolechat",
		DisplayName: "Rolechat",
		Description: "Roleplay chat gateway",
		Arguments:   []string{"service", "run"},
	}
	if p.ConfigPath != "" {
		svcCfg.Arguments = append(svcCfg.Arguments, "--config", p.ConfigPath)
	}
	return service.New(&program{params: p}, svcCfg)
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control rolechat as a system service",
	}

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the system service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := newService(cmd)
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Report the service state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := newService(cmd)
				if err != nil {
					return err
				}
				st, err := s.Status()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), statusText(st))
				return nil
			},
		},
		&cobra.Command{
			Use:    "run",
			Short:  "Run under the service manager",
			Hidden: true,
			Args:   cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := newService(cmd)
				if err != nil {
					return err
				}
				return s.Run()
			},
		},
	)
	return cmd
}

func statusText(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
