package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *SuiteReport {
	now := time.Now()
	return &SuiteReport{
		Title:    "Todos API",
		BaseURL:  "https://api.example.com",
		Started:  now,
		Duration: 1500 * time.Millisecond,
		Passed:   false,
		Scenarios: []ScenarioReport{
			{
				ID: "a", Title: "get todo", Type: "json", Method: "GET", URL: "https://api.example.com/todos/1",
				Status: 200, Disposition: "completed", Passed: true, Duration: 100 * time.Millisecond,
				Lines: []Line{
					{Type: LineHeading, Message: "todo"},
					{Type: LinePass, Message: "status equals 200"},
					{Type: LineOptionalFail, Message: "title is not empty"},
				},
			},
			{
				ID: "b", Title: "broken", Type: "html", URL: "http://down", Disposition: "aborted",
				AbortReason: AbortTransport, Duration: 300 * time.Millisecond,
				Lines: []Line{{Type: LineFail, Message: "connection refused"}},
			},
			{
				ID: "c", Title: "later", Type: "json", Disposition: "skipped", Passed: true,
				Lines: []Line{{Type: LineComment, Message: "no url"}},
			},
			{ID: "d", Title: "stopped", Type: "json", Disposition: "cancelled"},
		},
	}
}

func TestCompute(t *testing.T) {
	stats := Compute(sampleReport())

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Passed)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 1, stats.Aborted)
	assert.Equal(t, 3, stats.Assertions)
	assert.Equal(t, 1, stats.FailedAssertions)
	assert.Equal(t, 1, stats.OptionalFailures)
	assert.Equal(t, 100*time.Millisecond, stats.MinDuration)
	assert.Equal(t, 300*time.Millisecond, stats.MaxDuration)
	assert.Equal(t, 200*time.Millisecond, stats.AvgDuration)
}

func TestComputeEmpty(t *testing.T) {
	stats := Compute(&SuiteReport{})
	assert.Equal(t, 0, stats.Total)
	assert.Zero(t, stats.AvgDuration)
}

func TestExitCode(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, 1, r.ExitCode())
	r.Passed = true
	assert.Equal(t, 0, r.ExitCode())
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", FormatNone, false},
		{"none", FormatNone, false},
		{"Console", FormatConsole, false},
		{" json ", FormatJSON, false},
		{"html", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	assert.Nil(t, NewRenderer(FormatNone))
	assert.IsType(t, &Console{}, NewRenderer(FormatConsole))
	assert.IsType(t, &JSON{}, NewRenderer(FormatJSON))
}

func TestJSONRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSON{}).Render(&buf, sampleReport()))

	var decoded SuiteReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "Todos API", decoded.Title)
	require.Len(t, decoded.Scenarios, 4)
	assert.Equal(t, AbortTransport, decoded.Scenarios[1].AbortReason)
	assert.Equal(t, LineOptionalFail, decoded.Scenarios[0].Lines[2].Type)
}

func TestConsoleRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Console{NoColor: true}).Render(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "Todos API")
	assert.Contains(t, out, "PASS get todo")
	assert.Contains(t, out, "FAIL broken")
	assert.Contains(t, out, "aborted (transport)")
	assert.Contains(t, out, "✔ status equals 200")
	assert.Contains(t, out, "✘ connection refused")
	assert.Contains(t, out, "title is not empty (optional)")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "1 optional assertion(s) failed")
}
