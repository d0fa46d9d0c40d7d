package scenario

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vikasavnish/httpsuite/pkg/browser"
	"github.com/vikasavnish/httpsuite/pkg/executor"
	"github.com/vikasavnish/httpsuite/pkg/ir"
	"github.com/vikasavnish/httpsuite/pkg/mobile"
	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/response"
)

// Transport performs one HTTP exchange. Transport failures are returned as
// errors; any response, whatever its status, is a success.
type Transport interface {
	Fetch(ctx context.Context, req *ir.IR) (*ir.Response, error)
}

// MobileSession is an open automation session.
type MobileSession interface {
	response.ElementFinder
	Close(ctx context.Context) error
}

// MobileDriver opens automation sessions for mobile scenarios.
type MobileDriver interface {
	Open(ctx context.Context, caps map[string]any) (MobileSession, error)
}

// WebDriver adapts a WebDriver client to MobileDriver.
func WebDriver(c *mobile.Client) MobileDriver {
	return webDriver{client: c}
}

type webDriver struct {
	client *mobile.Client
}

func (w webDriver) Open(ctx context.Context, caps map[string]any) (MobileSession, error) {
	s, err := w.client.NewSession(ctx, mobile.Capabilities(caps))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Config is everything a suite needs at construction.
type Config struct {
	// BaseURL is joined with relative scenario URLs.
	BaseURL string
	// Concurrency caps how many scenarios execute at once. Zero is
	// unlimited.
	Concurrency int
	// ScenarioTimeout aborts a scenario that runs longer.
	ScenarioTimeout time.Duration
	// MaxDuration aborts the whole suite.
	MaxDuration time.Duration

	Transport      Transport
	Browser        browser.Driver
	BrowserOptions browser.Options
	Mobile         MobileDriver
	ImageProber    response.ImageProber
	MediaProber    response.MediaProber

	Logger *zap.Logger
	// Report is rendered to Output once the suite finishes.
	Report report.Format
	Output io.Writer
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Transport == nil {
		c.Transport = executor.NewExecutor(c.Logger)
	}
	if c.Browser == nil {
		c.Browser = browser.NewCDPDriver(c.Logger)
	}
	if c.BrowserOptions.DevToolsURL == "" {
		c.BrowserOptions.DevToolsURL = browser.DefaultOptions().DevToolsURL
	}
	if c.Output == nil {
		c.Output = os.Stdout
	}
	if c.Report == "" {
		c.Report = report.FormatNone
	}
	return c
}
