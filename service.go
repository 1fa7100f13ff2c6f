package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

const serviceStopTimeout = 45 * time.Second

// program adapts runServer to the service manager's Start/Stop lifecycle.
type program struct {
	opts   *rootOptions
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s service.Service) error {
	cfg, err := p.opts.loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		p.done <- runServer(ctx, cfg, logger, false)
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case err := <-p.done:
		return err
	case <-time.After(serviceStopTimeout):
		return errors.New("timeout waiting for the dashboard to stop")
	}
}

// serviceConfig describes the installed service. Relative paths are made
// absolute because service managers start the binary elsewhere.
func serviceConfig(opts *rootOptions) (*service.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	args := []string{"service", "run"}
	if opts.envFile != "" {
		args = append(args, "--env", absPath(wd, opts.envFile))
	}
	if opts.configFile != "" {
		args = append(args, "--config", absPath(wd, opts.configFile))
	}

	return &service.Config{
		Name:             "srdash",
		DisplayName:      "SRGAN Pipeline Dashboard",
		Description:      "Dashboard for simulated SRGAN runs and the super-resolution backend",
		Arguments:        args,
		WorkingDirectory: wd,
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}, nil
}

func absPath(wd, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(wd, path)
}

func newServiceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control srdash as an OS service",
	}

	control := func(action, done string) *cobra.Command {
		return &cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := newService(opts)
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return fmt.Errorf("failed to %s service: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s\n", done)
				return nil
			},
		}
	}
	cmd.AddCommand(
		control("install", "installed"),
		control("uninstall", "uninstalled"),
		control("start", "started"),
		control("stop", "stopped"),
		control("restart", "restarted"),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(opts)
			if err != nil {
				return err
			}
			status, err := s.Status()
			if err != nil {
				return fmt.Errorf("failed to get service status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service is %s\n", statusText(status))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run under the service manager (used by the installed service)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(opts)
			if err != nil {
				return err
			}
			return s.Run()
		},
	})
	return cmd
}

func newService(opts *rootOptions) (service.Service, error) {
	cfg, err := serviceConfig(opts)
	if err != nil {
		return nil, err
	}
	s, err := service.New(&program{opts: opts}, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

func statusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "in an unknown state"
	}
}
