package ingest

import (
	"github.com/ethpandaops/wptview/pkg/logparser"
	"github.com/ethpandaops/wptview/pkg/store"
)

// Source describes where a run's log came from.
type Source struct {
	Type string  `json:"type" mapstructure:"type"`
	URL  *string `json:"url,omitempty" mapstructure:"url"`
}

// FileSource returns the descriptor of a local log file.
func FileSource() Source {
	return Source{Type: store.SourceTypeFile}
}

// URLSource returns the descriptor of a fetched log.
func URLSource(url string) Source {
	return Source{Type: store.SourceTypeURL, URL: &url}
}

// Options tune a single ingestion.
type Options struct {
	// ReuseExisting resumes into an existing run of the same name instead
	// of failing with RunNameTakenError. Used to retry an interrupted
	// ingestion.
	ReuseExisting bool `json:"reuse_existing" mapstructure:"reuse_existing"`
}

// TestOccurrence is one outcome of a test within the log.
type TestOccurrence struct {
	Test     string `json:"test"`
	Status   string `json:"status"`
	Expected string `json:"expected"`
	Message  string `json:"message"`
}

// SubtestOccurrence is one outcome of a subtest within the log.
type SubtestOccurrence struct {
	Test     string `json:"test"`
	Subtest  string `json:"subtest"`
	Status   string `json:"status"`
	Expected string `json:"expected"`
	Message  string `json:"message"`
}

// Duplicate is an outcome that was not stored because its run already
// holds a result for the same test or subtest.
type Duplicate struct {
	Run      string `json:"run"`
	Test     string `json:"test"`
	Subtest  string `json:"subtest,omitempty"`
	Status   string `json:"status"`
	Expected string `json:"expected"`
	Message  string `json:"message"`
}

// LogMessage is an error or critical log line found in the log.
type LogMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
	Time    int64  `json:"time,omitempty"`
}

// State is the intermediate value passed between ingestion steps. Each
// step reads what the previous ones produced and adds its own output.
type State struct {
	RunName string
	Source  Source
	Options Options
	Records []logparser.Record

	// Set by ResolveRun.
	Run *store.TestRun

	// Set by Partition.
	Tests    []TestOccurrence
	Subtests []SubtestOccurrence
	Logs     []LogMessage

	// Set by InsertTests and InsertSubtests.
	TestIDs    map[string]uint
	SubtestIDs map[store.SubtestKey]uint

	// Accumulated by InsertTestResults and InsertSubtestResults.
	Duplicates []Duplicate
}

// NewState returns the initial state of an ingestion.
func NewState(
	records []logparser.Record, runName string, source Source, opts Options,
) State {
	return State{
		RunName: runName,
		Source:  source,
		Options: opts,
		Records: records,
	}
}

// TestNames returns every test name the state refers to, including the
// parents of subtests, in first-seen order.
func (s *State) TestNames() []string {
	seen := make(map[string]struct{}, len(s.Tests))
	names := make([]string, 0, len(s.Tests))

	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}

		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, t := range s.Tests {
		add(t.Test)
	}

	for _, st := range s.Subtests {
		add(st.Test)
	}

	return names
}

// Report is the outcome of an ingestion.
type Report struct {
	Run        *store.TestRun `json:"run"`
	Duplicates []Duplicate    `json:"duplicates"`
	Logs       []LogMessage   `json:"logs"`
}

// DuplicateCount returns the number of outcomes not stored as duplicates.
func (r *Report) DuplicateCount() int {
	return len(r.Duplicates)
}

// Report builds the ingestion report from the final state.
func (s *State) Report() *Report {
	return &Report{
		Run:        s.Run,
		Duplicates: s.Duplicates,
		Logs:       s.Logs,
	}
}
