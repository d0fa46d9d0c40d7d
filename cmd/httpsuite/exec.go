package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/response"
	"github.com/vikasavnish/httpsuite/pkg/scenario"
)

func newExecCmd(opts *options) *cobra.Command {
	var (
		typ    string
		status int
	)
	cmd := &cobra.Command{
		Use:     "exec <curl-command>",
		Aliases: []string{"execute"},
		Short:   "Execute a curl command as a one scenario suite",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := response.ParseType(typ)
			if err != nil {
				return err
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := opts.config(logger)
			if err != nil {
				return err
			}
			if cfg.Report == "" {
				cfg.Report = report.FormatConsole
			}
			cfg.Output = cmd.OutOrStdout()

			suite, err := scenario.New("exec", cfg)
			if err != nil {
				return err
			}
			sc := suite.Scenario("", t).OpenCurl(args[0])
			if err := sc.Err(); err != nil {
				return err
			}
			sc.Next(func(a *scenario.AssertionContext) error {
				if status > 0 {
					a.Expect(a.Status()).Equals(status)
				} else {
					a.Expect(a.Status()).LessThan(400)
				}
				return nil
			})

			if err := suite.Run(cmd.Context()); err != nil {
				logger.Warn("suite stopped before finishing", zap.Error(err))
			}
			if !suite.Passed() {
				return &suiteFailedError{failed: 1}
			}
			return nil
		},
	}
	addRunFlags(cmd, opts)
	cmd.Flags().StringVar(&typ, "type", string(response.Resource), "Response type: html, json, image, xml, hls, media, resource, headers, browser or mobile")
	cmd.Flags().IntVar(&status, "status", 0, "Expected status code (default: any status below 400)")
	return cmd
}
