// Package report holds the data a finished suite produces and renders it.
package report

import (
	"time"
)

// LineType classifies a log line.
type LineType string

const (
	LinePass         LineType = "pass"
	LineFail         LineType = "fail"
	LineOptionalFail LineType = "optionalFail"
	LineComment      LineType = "comment"
	LineHeading      LineType = "heading"
)

// Line is one entry in a scenario log.
type Line struct {
	Type      LineType  `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Abort reasons.
const (
	AbortTransport = "transport"
	AbortTimeout   = "timeout"
)

// ScenarioReport is the outcome of one scenario.
type ScenarioReport struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Type        string        `json:"type"`
	Method      string        `json:"method,omitempty"`
	URL         string        `json:"url,omitempty"`
	Status      int           `json:"status,omitempty"`
	Disposition string        `json:"disposition"`
	AbortReason string        `json:"abortReason,omitempty"`
	Passed      bool          `json:"passed"`
	Started     time.Time     `json:"started"`
	Ended       time.Time     `json:"ended"`
	Duration    time.Duration `json:"duration"`
	RequestTime time.Duration `json:"requestTime"`
	Lines       []Line        `json:"lines"`
	ParentID    string        `json:"parentId,omitempty"`
	WaitsForID  string        `json:"waitsForId,omitempty"`
}

// Count returns how many lines of type t the scenario logged.
func (s ScenarioReport) Count(t LineType) int {
	n := 0
	for _, l := range s.Lines {
		if l.Type == t {
			n++
		}
	}
	return n
}

// SuiteReport is the outcome of a whole suite.
type SuiteReport struct {
	Title     string           `json:"title"`
	BaseURL   string           `json:"baseUrl,omitempty"`
	Started   time.Time        `json:"started"`
	Duration  time.Duration    `json:"duration"`
	Passed    bool             `json:"passed"`
	Scenarios []ScenarioReport `json:"scenarios"`
}

// ExitCode is 0 for a passing suite and 1 otherwise.
func (r *SuiteReport) ExitCode() int {
	if r.Passed {
		return 0
	}
	return 1
}
