package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"srdash/simulation"
)

func newPipelinesCmd(opts *rootOptions) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "List the simulation pipeline presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			pipelines, err := simulation.LoadPipelines(cfg.PipelinesFile)
			if err != nil {
				return err
			}

			if asYAML {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(map[string]any{"pipelines": pipelines})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMODE\tSTAGES\tPASS\tMAX EPOCHS\tTITLE")
			for _, p := range pipelines {
				maxEpochs := "-"
				if p.MaxEpochs > 0 {
					maxEpochs = fmt.Sprint(p.MaxEpochs)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%v\t%s\t%s\n",
					p.Name, p.Mode, len(p.Stages), p.PassDuration(), maxEpochs, p.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the full definitions as YAML")
	return cmd
}
