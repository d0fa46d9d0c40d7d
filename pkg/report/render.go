package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// Format selects a renderer.
type Format string

const (
	FormatNone    Format = "none"
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// ParseFormat accepts none, console and json. An empty string is none.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatNone:
		return FormatNone, nil
	case FormatConsole:
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown report format %q (want none, console or json)", s)
}

// Renderer writes a suite report somewhere.
type Renderer interface {
	Render(w io.Writer, r *SuiteReport) error
}

// NewRenderer returns the renderer for f, or nil for FormatNone.
func NewRenderer(f Format) Renderer {
	switch f {
	case FormatConsole:
		return &Console{}
	case FormatJSON:
		return &JSON{Indent: true}
	}
	return nil
}

// JSON renders the report as a JSON document.
type JSON struct {
	Indent bool
}

func (j *JSON) Render(w io.Writer, r *SuiteReport) error {
	enc := json.NewEncoder(w)
	if j.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Console renders a colored log of every scenario followed by a summary
// table.
type Console struct {
	NoColor bool
}

type palette struct {
	pass, fail, optional, comment, heading, dim func(a ...interface{}) string
}

func (c *Console) palette() palette {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		col := color.New(attrs...)
		if c.NoColor {
			col.DisableColor()
		} else {
			col.EnableColor()
		}
		return col.SprintFunc()
	}
	return palette{
		pass:     mk(color.FgGreen),
		fail:     mk(color.FgHiRed),
		optional: mk(color.FgYellow),
		comment:  mk(color.FgCyan),
		heading:  mk(color.Bold),
		dim:      mk(color.Faint),
	}
}

func (c *Console) Render(w io.Writer, r *SuiteReport) error {
	p := c.palette()

	fmt.Fprintf(w, "%s\n", p.heading(r.Title))
	if r.BaseURL != "" {
		fmt.Fprintf(w, "%s\n", p.dim(r.BaseURL))
	}
	fmt.Fprintln(w)

	for _, s := range r.Scenarios {
		mark := p.pass("PASS")
		if !s.Passed {
			mark = p.fail("FAIL")
		}
		fmt.Fprintf(w, "%s %s %s\n", mark, p.heading(s.Title), p.dim(describeRequest(s)))
		if s.AbortReason != "" {
			fmt.Fprintf(w, "  %s\n", p.fail("aborted ("+s.AbortReason+")"))
		}
		for _, l := range s.Lines {
			switch l.Type {
			case LinePass:
				fmt.Fprintf(w, "  %s %s\n", p.pass("✔"), l.Message)
			case LineFail:
				fmt.Fprintf(w, "  %s %s\n", p.fail("✘"), l.Message)
			case LineOptionalFail:
				fmt.Fprintf(w, "  %s %s %s\n", p.optional("!"), l.Message, p.dim("(optional)"))
			case LineComment:
				fmt.Fprintf(w, "  %s %s\n", p.comment("»"), p.comment(l.Message))
			case LineHeading:
				fmt.Fprintf(w, "  %s\n", p.heading(l.Message))
			}
		}
		fmt.Fprintln(w)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Scenario", "Disposition", "Status", "Assertions", "Failed", "Duration")
	for _, s := range r.Scenarios {
		status := ""
		if s.Status > 0 {
			status = strconv.Itoa(s.Status)
		}
		assertions := s.Count(LinePass) + s.Count(LineFail) + s.Count(LineOptionalFail)
		if err := table.Append([]string{
			s.Title,
			s.Disposition,
			status,
			strconv.Itoa(assertions),
			strconv.Itoa(s.Count(LineFail)),
			roundDuration(s.Duration),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	stats := Compute(r)
	verdict := p.pass("PASSED")
	if !r.Passed {
		verdict = p.fail("FAILED")
	}
	fmt.Fprintf(w, "\n%s  %d scenarios, %d passed, %d failed (%d skipped, %d cancelled, %d aborted) in %s\n",
		verdict, stats.Total, stats.Passed, stats.Failed, stats.Skipped, stats.Cancelled, stats.Aborted, roundDuration(r.Duration))
	if stats.OptionalFailures > 0 {
		fmt.Fprintf(w, "%s\n", p.optional(fmt.Sprintf("%d optional assertion(s) failed", stats.OptionalFailures)))
	}
	return nil
}

func describeRequest(s ScenarioReport) string {
	if s.URL == "" {
		return s.Type
	}
	method := s.Method
	if method == "" {
		method = "GET"
	}
	return fmt.Sprintf("[%s] %s %s", s.Type, method, s.URL)
}

func roundDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Millisecond).String()
	}
	return d.String()
}
