package ingest

import (
	"context"

	"github.com/ethpandaops/wptview/pkg/logparser"
)

// Partition splits the records into test-level and subtest-level
// occurrences and collects error log messages.
//
// A test_start opens an occurrence of its test which the next outcome
// record of that test completes. An outcome with no open occurrence is an
// occurrence of its own, as is a test_start left open at the end of the
// log. Every record naming a subtest and every nested subtests entry is a
// subtest occurrence.
func Partition(_ context.Context, st State) (State, error) {
	st.Tests = nil
	st.Subtests = nil
	st.Logs = nil

	open := make(map[string]int)

	for i := range st.Records {
		rec := &st.Records[i]

		if rec.Action == logparser.ActionLog {
			st.Logs = append(st.Logs, LogMessage{
				Level:   rec.Level,
				Message: rec.Message,
				Source:  rec.Source,
				Time:    rec.Time,
			})

			continue
		}

		if !rec.IsTestAction() || rec.Test == "" {
			continue
		}

		for _, entry := range rec.Subtests {
			st.Subtests = append(st.Subtests, SubtestOccurrence{
				Test:     rec.Test,
				Subtest:  entry.Name,
				Status:   entry.Status,
				Expected: entry.ExpectedOrStatus(),
				Message:  entry.Message,
			})
		}

		switch {
		case rec.IsSubtest():
			st.Subtests = append(st.Subtests, SubtestOccurrence{
				Test:     rec.Test,
				Subtest:  rec.Subtest,
				Status:   rec.Status,
				Expected: rec.ExpectedOrStatus(),
				Message:  rec.Message,
			})
		case rec.Action == logparser.ActionTestStart:
			open[rec.Test] = len(st.Tests)
			st.Tests = append(st.Tests, TestOccurrence{Test: rec.Test})
		default:
			occ := TestOccurrence{
				Test:     rec.Test,
				Status:   rec.Status,
				Expected: rec.ExpectedOrStatus(),
				Message:  rec.Message,
			}

			if idx, ok := open[rec.Test]; ok {
				st.Tests[idx] = occ
				delete(open, rec.Test)

				continue
			}

			st.Tests = append(st.Tests, occ)
		}
	}

	return st, nil
}
