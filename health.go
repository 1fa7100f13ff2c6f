package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"srdash/core"
	"srdash/enhance"
)

func newHealthCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the enhancement backend once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			client := enhance.NewClient(cfg.APIURL, core.GetHTTPClient(cfg, timeout), nil)
			monitor := enhance.NewBackendHealthMonitor(client, enhance.HealthMonitorConfig{ProbeTimeout: timeout})

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			monitor.CheckNow(ctx)
			state := monitor.State()

			out := cmd.OutOrStdout()
			switch state.Status {
			case enhance.StatusOnline:
				color.New(color.FgGreen).Fprintf(out, "● online  %s\n", cfg.APIURL)
				return nil
			default:
				color.New(color.FgRed).Fprintf(out, "● %s  %s\n", state.Status, cfg.APIURL)
				for _, e := range state.Errors {
					color.New(color.FgHiBlack).Fprintf(out, "  %s\n", e)
				}
				return fmt.Errorf("backend %s", state.Status)
			}
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "probe timeout")
	return cmd
}
