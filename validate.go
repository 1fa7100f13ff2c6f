package main

import (
	"github.com/spf13/cobra"

	"srdash/core/validation"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var quick bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and probe the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			suite := validation.NewSuite(cfg, opts.envFile).WithOutput(cmd.OutOrStdout())

			var result validation.SuiteResult
			if quick {
				result = suite.ValidateQuick()
			} else {
				result = suite.Validate(cmd.Context())
			}
			if !result.Success {
				return result.FirstError()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&quick, "quick", false, "skip the backend probe")
	return cmd
}
