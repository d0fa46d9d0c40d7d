package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/suitefile"
)

func newRunCmd(opts *options) *cobra.Command {
	var (
		vars     map[string]string
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "run <suite.yaml|dir>...",
		Short: "Run suite files and print their reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			files, err := loadSuites(args)
			if err != nil {
				return err
			}
			base, err := opts.config(logger)
			if err != nil {
				return err
			}

			outputs := make([]bytes.Buffer, len(files))
			passed := make([]bool, len(files))

			g, ctx := errgroup.WithContext(cmd.Context())
			if parallel > 0 {
				g.SetLimit(parallel)
			}
			for i, f := range files {
				i, f := i, f
				g.Go(func() error {
					cfg := base
					cfg.Logger = logger.With(zap.String("suite", f.Name))
					cfg.Output = &outputs[i]
					if cfg.Report == "" && f.Report == "" {
						cfg.Report = report.FormatConsole
					}

					suite, err := f.Compile(cfg, vars)
					if err != nil {
						return fmt.Errorf("suite %s: %w", f.Name, err)
					}
					// the suite is finalized and reported even when stopped early
					if err := suite.Run(ctx); err != nil {
						cfg.Logger.Warn("suite stopped before finishing", zap.Error(err))
					}
					passed[i] = suite.Passed()
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			failed := 0
			for i := range files {
				if _, err := cmd.OutOrStdout().Write(outputs[i].Bytes()); err != nil {
					return err
				}
				if !passed[i] {
					failed++
				}
			}
			if failed > 0 {
				return &suiteFailedError{failed: failed}
			}
			return nil
		},
	}
	addRunFlags(cmd, opts)
	cmd.Flags().StringToStringVar(&vars, "var", nil, "Suite variable as name=value (repeatable)")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "Maximum suite files running at once (0 is unlimited)")
	return cmd
}

// loadSuites loads each argument as a suite file or a directory of them.
func loadSuites(paths []string) ([]*suitefile.File, error) {
	var files []*suitefile.File
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			loaded, err := suitefile.LoadDir(p)
			if err != nil {
				return nil, err
			}
			files = append(files, loaded...)
			continue
		}
		f, err := suitefile.Load(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
