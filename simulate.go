package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"srdash/simulation"
)

const simulatePollInterval = 100 * time.Millisecond

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	var (
		name     string
		seed     uint64
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one pipeline simulation in the terminal",
		Long: "simulate runs a pipeline preset without the dashboard and prints its log\n" +
			"stream. It stops when the run completes, after --duration, or on Ctrl-C.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			pipelines, err := simulation.LoadPipelines(cfg.PipelinesFile)
			if err != nil {
				return err
			}
			p := simulation.FindPipeline(pipelines, name)
			if p == nil {
				return fmt.Errorf("unknown pipeline %q (see `srdash pipelines`)", name)
			}
			if !cmd.Flags().Changed("seed") {
				seed = cfg.SimSeed
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return simulate(ctx, cmd.OutOrStdout(), p, seed)
		},
	}
	cmd.Flags().StringVarP(&name, "pipeline", "p", "training", "pipeline preset to run")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "metric seed (0 = random)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = until complete)")
	return cmd
}

// simulate runs p on the real clock and streams its log until the run
// completes or ctx ends.
func simulate(ctx context.Context, out io.Writer, p *simulation.Pipeline, seed uint64) error {
	var sampler simulation.Sampler
	if seed != 0 {
		sampler = simulation.NewSampler(seed)
	}
	sched := simulation.NewScheduler(p, simulation.Options{Sampler: sampler})
	defer sched.Close()

	color.New(color.FgCyan, color.Bold).Fprintf(out, "━━━ %s ━━━\n", p.Title)
	if err := sched.Start(); err != nil {
		return err
	}

	ticker := time.NewTicker(simulatePollInterval)
	defer ticker.Stop()

	var lastID uint64
	for {
		lastID = printEntries(out, sched.Logs().Entries(), lastID)
		snap := sched.Snapshot()
		if snap.Status == simulation.StatusCompleted {
			printFinal(out, snap)
			return nil
		}

		select {
		case <-ctx.Done():
			if err := sched.Pause(); err == nil {
				lastID = printEntries(out, sched.Logs().Entries(), lastID)
			}
			snap = sched.Snapshot()
			color.New(color.FgHiBlack).Fprintf(out, "stopped at epoch %d (%s)\n", snap.Epoch, snap.StatusText)
			return nil
		case <-ticker.C:
		}
	}
}

func printEntries(out io.Writer, entries []simulation.Entry, after uint64) uint64 {
	for _, e := range entries {
		if e.ID <= after {
			continue
		}
		levelColor(e.Level).Fprintf(out, "[%s] %-7s ", e.Time, e.Level)
		fmt.Fprintln(out, e.Message)
		after = e.ID
	}
	return after
}

func levelColor(l simulation.Level) *color.Color {
	switch l {
	case simulation.LevelSuccess:
		return color.New(color.FgGreen)
	case simulation.LevelWarn:
		return color.New(color.FgYellow)
	case simulation.LevelError:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}

func printFinal(out io.Writer, snap simulation.Snapshot) {
	bold := color.New(color.FgGreen, color.Bold)
	bold.Fprintln(out, "━━━ Completed ━━━")
	if f := snap.Final; f != nil {
		fmt.Fprintf(out, "  processing time  %.1fs\n", f.ProcessingTimeSeconds)
		if f.ScaleFactor > 0 {
			fmt.Fprintf(out, "  scale factor     %dx\n", f.ScaleFactor)
		}
		fmt.Fprintf(out, "  output           %s\n", f.OutputResolution)
		if f.Epochs > 0 {
			fmt.Fprintf(out, "  epochs           %d\n", f.Epochs)
		}
	}
	c := snap.Current
	fmt.Fprintf(out, "  generator loss   %.4f\n", c.Generator)
	fmt.Fprintf(out, "  discrim. loss    %.4f\n", c.Discriminator)
	if c.PSNR > 0 {
		fmt.Fprintf(out, "  psnr             %.2f dB\n", c.PSNR)
	}
	if snap.RealnessScore > 0 {
		fmt.Fprintf(out, "  realness score   %.3f\n", snap.RealnessScore)
	}
}
