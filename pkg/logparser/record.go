package logparser

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Actions emitted by wptrunner that the ingestion engine cares about.
const (
	ActionTestStart  = "test_start"
	ActionTestStatus = "test_status"
	ActionTestEnd    = "test_end"
	ActionLog        = "log"
)

var keepLevel = regexp.MustCompile(`(?i)^(error|critical)`)

// Record is one kept line of a mozlog structured log.
type Record struct {
	Action   string `json:"action"`
	Test     string `json:"test,omitempty"`
	Subtest  string `json:"subtest,omitempty"`
	Status   string `json:"status,omitempty"`
	Expected string `json:"expected,omitempty"`
	Message  string `json:"message,omitempty"`
	Level    string `json:"level,omitempty"`
	// Time is milliseconds since the epoch. Float and exponent forms are
	// truncated.
	Time     int64  `json:"time,omitempty"`
	Thread   string `json:"thread,omitempty"`
	Source   string `json:"source,omitempty"`
	Stack    string `json:"stack,omitempty"`

	// Subtests holds check outcomes reported inline on a test-level
	// record instead of as separate test_status lines.
	Subtests []SubtestEntry `json:"subtests,omitempty"`
}

// UnmarshalJSON decodes a record, accepting any JSON number for time.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record

	aux := struct {
		*plain
		Time json.Number `json:"time,omitempty"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Time = 0

	if aux.Time == "" {
		return nil
	}

	if ms, err := aux.Time.Int64(); err == nil {
		r.Time = ms

		return nil
	}

	ms, err := aux.Time.Float64()
	if err != nil || math.IsInf(ms, 0) || math.Abs(ms) > math.MaxInt64 {
		return fmt.Errorf("invalid time %q", aux.Time.String())
	}

	r.Time = int64(ms)

	return nil
}

// SubtestEntry is a nested subtest outcome.
type SubtestEntry struct {
	Name     string `json:"name"`
	Status   string `json:"status,omitempty"`
	Expected string `json:"expected,omitempty"`
	Message  string `json:"message,omitempty"`
}

// IsTestAction reports whether the record belongs to the test lifecycle.
func (r *Record) IsTestAction() bool {
	return strings.HasPrefix(r.Action, "test_")
}

// IsSubtest reports whether the record describes a single subtest.
func (r *Record) IsSubtest() bool {
	return r.IsTestAction() && r.Subtest != ""
}

// ExpectedOrStatus returns the expected status. mozlog omits the field
// when the outcome matched the expectation.
func (r *Record) ExpectedOrStatus() string {
	if r.Expected != "" {
		return r.Expected
	}

	return r.Status
}

// ExpectedOrStatus returns the expected status, see Record.ExpectedOrStatus.
func (e *SubtestEntry) ExpectedOrStatus() string {
	if e.Expected != "" {
		return e.Expected
	}

	return e.Status
}

// Keep reports whether a record is relevant: any test_* action, or a log
// message at error or critical level.
func Keep(r Record) bool {
	if r.IsTestAction() {
		return true
	}

	return r.Action == ActionLog && keepLevel.MatchString(r.Level)
}
