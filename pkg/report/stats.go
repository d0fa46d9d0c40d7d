package report

import "time"

// Stats aggregates a suite report.
type Stats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	Cancelled int
	Aborted   int

	Assertions       int
	FailedAssertions int
	OptionalFailures int

	MinDuration time.Duration
	AvgDuration time.Duration
	MaxDuration time.Duration
}

// Compute walks every scenario of r. Durations only count scenarios that
// actually ran.
func Compute(r *SuiteReport) Stats {
	stats := Stats{Total: len(r.Scenarios)}

	var total time.Duration
	ran := 0
	for _, s := range r.Scenarios {
		switch s.Disposition {
		case "skipped":
			stats.Skipped++
		case "cancelled":
			stats.Cancelled++
		case "aborted":
			stats.Aborted++
		}
		if s.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}

		passes, fails, optional := s.Count(LinePass), s.Count(LineFail), s.Count(LineOptionalFail)
		stats.Assertions += passes + fails + optional
		stats.FailedAssertions += fails
		stats.OptionalFailures += optional

		if s.Disposition != "completed" && s.Disposition != "aborted" {
			continue
		}
		ran++
		total += s.Duration
		if ran == 1 || s.Duration < stats.MinDuration {
			stats.MinDuration = s.Duration
		}
		if s.Duration > stats.MaxDuration {
			stats.MaxDuration = s.Duration
		}
	}

	if ran > 0 {
		stats.AvgDuration = total / time.Duration(ran)
	}
	return stats
}
