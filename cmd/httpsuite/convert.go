package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vikasavnish/httpsuite/pkg/parser"
)

func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <curl-command>",
		Short: "Convert a curl command to IR JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parser.NewCurlParser().Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse error: %w", err)
			}
			output, err := json.MarshalIndent(parsed, "", "  ")
			if err != nil {
				return fmt.Errorf("JSON marshal error: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return err
		},
	}
}
