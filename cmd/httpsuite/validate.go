package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <suite.yaml|dir>...",
		Short: "Validate suite files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := loadSuites(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range files {
				fmt.Fprintf(out, "✓ %s is valid\n", f.Path)
				fmt.Fprintf(out, "  Name:      %s\n", f.Name)
				fmt.Fprintf(out, "  Scenarios: %d\n", len(f.Scenarios))
				if f.BaseURL != "" {
					fmt.Fprintf(out, "  Base URL:  %s\n", f.BaseURL)
				}
			}
			return nil
		},
	}
}
