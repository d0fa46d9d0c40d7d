package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vikasavnish/httpsuite/pkg/browser"
	"github.com/vikasavnish/httpsuite/pkg/logging"
	"github.com/vikasavnish/httpsuite/pkg/mobile"
	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/response"
	"github.com/vikasavnish/httpsuite/pkg/scenario"
)

var rootExamples = `
  # Run every suite in a directory, three scenarios at a time
  httpsuite run suites/ --concurrency 3

  # Run one suite against staging with a variable override
  httpsuite run smoke.yaml --base-url https://staging.example.com --var token=abc

  # Execute a curl command and check the response
  httpsuite exec 'curl -X POST https://api.example.com/login -d "{\"user\":\"test\"}"' --type json

  # Convert curl to IR JSON
  httpsuite convert 'curl https://api.example.com/users' > request.json

  # Validate suite files without running them
  httpsuite validate suites/*.yaml
`

// options are the flags shared by commands that run scenarios.
type options struct {
	logLevel        string
	baseURL         string
	concurrency     int
	scenarioTimeout time.Duration
	maxDuration     time.Duration
	reportFormat    string
	devToolsURL     string
	appiumURL       string
	ffprobe         string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "httpsuite",
		Short:         "httpsuite - scenario based HTTP, browser and mobile testing",
		Example:       rootExamples,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	root.AddCommand(
		newRunCmd(opts),
		newExecCmd(opts),
		newConvertCmd(),
		newValidateCmd(),
	)
	return root
}

// addRunFlags registers the flags that shape a suite's configuration.
func addRunFlags(cmd *cobra.Command, opts *options) {
	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", "", "Base URL relative scenario URLs resolve against")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Maximum scenarios executing at once (0 is unlimited)")
	f.DurationVar(&opts.scenarioTimeout, "timeout", 0, "Maximum duration of each scenario")
	f.DurationVar(&opts.maxDuration, "max-duration", 0, "Maximum duration of the whole suite")
	f.StringVar(&opts.reportFormat, "report", "", "Report format: console, json or none")
	f.StringVar(&opts.devToolsURL, "devtools", "", "Chrome DevTools endpoint for browser scenarios")
	f.StringVar(&opts.appiumURL, "appium", "", "Appium server URL for mobile scenarios")
	f.StringVar(&opts.ffprobe, "ffprobe", "", "Path to the ffprobe binary for media scenarios")
}

// config turns flags into a suite configuration. Unset flags stay zero so
// suite files can supply them.
func (o *options) config(logger *zap.Logger) (scenario.Config, error) {
	var format report.Format
	if o.reportFormat != "" {
		f, err := report.ParseFormat(o.reportFormat)
		if err != nil {
			return scenario.Config{}, err
		}
		format = f
	}
	if o.concurrency < 0 {
		return scenario.Config{}, fmt.Errorf("--concurrency must not be negative, got %d", o.concurrency)
	}

	cfg := scenario.Config{
		BaseURL:         o.baseURL,
		Concurrency:     o.concurrency,
		ScenarioTimeout: o.scenarioTimeout,
		MaxDuration:     o.maxDuration,
		Logger:          logger,
		Report:          format,
		MediaProber:     response.FFProbe{Path: o.ffprobe},
	}
	if o.devToolsURL != "" {
		cfg.BrowserOptions = browser.DefaultOptions()
		cfg.BrowserOptions.DevToolsURL = o.devToolsURL
	}
	if o.appiumURL != "" {
		cfg.Mobile = scenario.WebDriver(mobile.NewClient(o.appiumURL, logger))
	}
	return cfg, nil
}

func (o *options) logger() (*zap.Logger, error) {
	return logging.New(o.logLevel)
}

// suiteFailedError is returned when a suite ran but did not pass. Its
// report has already been printed.
type suiteFailedError struct {
	failed int
}

func (e *suiteFailedError) Error() string {
	if e.failed == 1 {
		return "1 suite failed"
	}
	return fmt.Sprintf("%d suites failed", e.failed)
}
