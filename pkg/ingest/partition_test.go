package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/wptview/pkg/logparser"
)

func TestPartition(t *testing.T) {
	records := []logparser.Record{
		{Action: "test_start", Test: "/a.html"},
		{Action: "test_status", Test: "/a.html", Subtest: "one", Status: "PASS"},
		{Action: "log", Level: "ERROR", Message: "boom", Source: "runner", Time: 7},
		{Action: "test_end", Test: "/a.html", Status: "OK", Message: "done"},
		{Action: "test_end", Test: "/b.html", Status: "FAIL", Expected: "PASS",
			Subtests: []logparser.SubtestEntry{
				{Name: "inline", Status: "PASS"},
			}},
		{Action: "test_start", Test: "/c.html"},
		{Action: "test_start", Test: ""},
	}

	st, err := Partition(context.Background(), NewState(records, "run", FileSource(), Options{}))
	require.NoError(t, err)

	assert.Equal(t, []TestOccurrence{
		{Test: "/a.html", Status: "OK", Expected: "OK", Message: "done"},
		{Test: "/b.html", Status: "FAIL", Expected: "PASS"},
		{Test: "/c.html"},
	}, st.Tests)

	assert.Equal(t, []SubtestOccurrence{
		{Test: "/a.html", Subtest: "one", Status: "PASS", Expected: "PASS"},
		{Test: "/b.html", Subtest: "inline", Status: "PASS", Expected: "PASS"},
	}, st.Subtests)

	assert.Equal(t, []LogMessage{
		{Level: "ERROR", Message: "boom", Source: "runner", Time: 7},
	}, st.Logs)

	assert.Equal(t, []string{"/a.html", "/b.html", "/c.html"}, st.TestNames())
}

func TestPartition_SubtestOnlyParent(t *testing.T) {
	records := []logparser.Record{
		{Action: "test_status", Test: "/only-subtests.html", Subtest: "s", Status: "PASS"},
	}

	st, err := Partition(context.Background(), NewState(records, "run", FileSource(), Options{}))
	require.NoError(t, err)

	assert.Empty(t, st.Tests)
	assert.Len(t, st.Subtests, 1)
	assert.Equal(t, []string{"/only-subtests.html"}, st.TestNames())
}

func TestPartition_IsRepeatable(t *testing.T) {
	records := []logparser.Record{
		{Action: "test_end", Test: "/a.html", Status: "OK"},
	}

	st := NewState(records, "run", FileSource(), Options{})

	st, err := Partition(context.Background(), st)
	require.NoError(t, err)

	st, err = Partition(context.Background(), st)
	require.NoError(t, err)

	assert.Len(t, st.Tests, 1)
}

func TestUniqueRunName(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		taken []string
		want  string
	}{
		{name: "free", in: "log", taken: nil, want: "log"},
		{name: "taken", in: "log", taken: []string{"log"}, want: "log (1)"},
		{name: "gap", in: "log", taken: []string{"log", "log (1)", "log (3)"}, want: "log (2)"},
		{name: "suffix alone", in: "log", taken: []string{"log (1)"}, want: "log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UniqueRunName(tt.in, tt.taken))
		})
	}
}

func TestDefaultRunName(t *testing.T) {
	assert.Equal(t, "wptreport.log", DefaultRunName("/tmp/logs/wptreport.log"))
	assert.Equal(t, "run.log", DefaultRunName("https://example.com/a/run.log?raw=1"))
	assert.Equal(t, "example.com", DefaultRunName("https://example.com/"))
	assert.Equal(t, "plain", DefaultRunName("plain"))
}
