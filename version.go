package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"srdash/core"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "srdash %s\n", core.GetVersionInfo())
			return err
		},
	}
}
