package query_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/ethpandaops/wptview/pkg/ingest"
	"github.com/ethpandaops/wptview/pkg/logparser"
	"github.com/ethpandaops/wptview/pkg/query"
	"github.com/ethpandaops/wptview/pkg/store"
)

type fixture struct {
	store  store.Store
	ingest ingest.Engine
	query  query.Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	e, err := ingest.NewEngine(log, s, 0)
	require.NoError(t, err)

	return &fixture{
		store:  s,
		ingest: e,
		query:  query.NewEngine(log, s, 2),
	}
}

func (f *fixture) load(t *testing.T, name string, lines ...string) *store.TestRun {
	t.Helper()

	records, err := logparser.Crunch(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)

	report, err := f.ingest.Ingest(context.Background(), records, name,
		ingest.FileSource(), ingest.Options{})
	require.NoError(t, err)

	return report.Run
}

func testEnd(test, status string) string {
	return fmt.Sprintf(`{"action":"test_end","test":%q,"status":%q}`, test, status)
}

func subtestStatus(test, subtest, status string) string {
	return fmt.Sprintf(
		`{"action":"test_status","test":%q,"subtest":%q,"status":%q}`,
		test, subtest, status,
	)
}

func rowKeys(rows []query.Row) []string {
	keys := make([]string, 0, len(rows))

	for _, r := range rows {
		key := r.Test
		if r.SubtestID != nil {
			key += "#" + r.Subtest
		}

		keys = append(keys, key)
	}

	return keys
}

func TestGetResults_RunSlots(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	r1 := f.load(t, "r1",
		testEnd("/a.html", "OK"),
		subtestStatus("/a.html", "x", "PASS"),
	)
	r2 := f.load(t, "r2",
		testEnd("/a.html", "ERROR"),
	)

	page, err := f.query.GetResults(ctx, &query.Request{})
	require.NoError(t, err)
	require.Len(t, page.Runs, 2)
	require.Equal(t, []string{"/a.html", "/a.html#x"}, rowKeys(page.Rows))

	assert.Equal(t, "OK", page.Rows[0].Results[0].Status)
	assert.Equal(t, "ERROR", page.Rows[0].Results[1].Status)
	assert.Equal(t, "PASS", page.Rows[1].Results[0].Status)
	assert.Equal(t, query.RunResult{}, page.Rows[1].Results[1])
	assert.Nil(t, page.Rows[0].SubtestID)
	assert.NotNil(t, page.Rows[1].SubtestID)

	page, err = f.query.GetResults(ctx, &query.Request{Runs: []uint{r2.ID}})
	require.NoError(t, err)
	require.Len(t, page.Runs, 1)
	assert.Equal(t, "r2", page.Runs[0].Name)
	assert.Equal(t, []string{"/a.html"}, rowKeys(page.Rows))

	// Disabling hides the run, enabling restores it unchanged.
	require.NoError(t, f.query.SwitchRuns(ctx, []uint{r1.ID}, false))

	page, err = f.query.GetResults(ctx, &query.Request{Runs: []uint{r1.ID, r2.ID}})
	require.NoError(t, err)
	require.Len(t, page.Runs, 1)
	assert.Equal(t, r2.ID, page.Runs[0].ID)

	page, err = f.query.GetResults(ctx, &query.Request{})
	require.NoError(t, err)
	require.Len(t, page.Runs, 1)

	require.NoError(t, f.query.SwitchRuns(ctx, []uint{r1.ID}, true))

	page, err = f.query.GetResults(ctx, &query.Request{})
	require.NoError(t, err)
	require.Len(t, page.Runs, 2)
	assert.Equal(t, "PASS", page.Rows[1].Results[0].Status)
}

func TestGetResults_PaginationCoversEverything(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var lines []string

	for i := 0; i < 7; i++ {
		test := fmt.Sprintf("/t%d.html", i)
		lines = append(lines, testEnd(test, "OK"))

		if i%2 == 0 {
			lines = append(lines, subtestStatus(test, "s", "PASS"))
		}
	}

	f.load(t, "r1", lines...)

	full, err := f.query.GetResults(ctx, &query.Request{Limit: 100})
	require.NoError(t, err)
	require.Equal(t, 7, full.Tests)

	var (
		collected []string
		minID     uint
		pages     int
	)

	for {
		page, err := f.query.GetResults(ctx, &query.Request{MinTestID: minID})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Limit)

		collected = append(collected, rowKeys(page.Rows)...)
		pages++

		if page.Tests < page.Limit {
			break
		}

		minID = page.LastTestID
	}

	assert.Equal(t, rowKeys(full.Rows), collected)
	assert.Equal(t, 4, pages)

	// Walking backwards from the end yields the same pages reversed.
	var (
		backward []string
		maxID    = full.LastTestID + 1
	)

	for {
		page, err := f.query.GetResults(ctx, &query.Request{MaxTestID: maxID})
		require.NoError(t, err)

		if page.Tests == 0 {
			break
		}

		backward = append(rowKeys(page.Rows), backward...)
		maxID = page.FirstTestID
	}

	assert.Equal(t, rowKeys(full.Rows), backward)
}

func TestGetResults_StatusFilterExcludesRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.load(t, "R1", testEnd("/a.html", "PASS"), testEnd("/b.html", "FAIL"))

	page, err := f.query.GetResults(ctx, &query.Request{
		Filter: query.Filter{Status: []query.StatusFilter{
			{Run: "R1", Equality: query.EqualityIs, Status: []string{"FAIL", "TIMEOUT"}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/b.html"}, rowKeys(page.Rows))

	page, err = f.query.GetResults(ctx, &query.Request{
		Filter: query.Filter{Status: []query.StatusFilter{
			{Run: "R1", Equality: query.EqualityIsNot, Status: []string{"FAIL", "TIMEOUT"}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.html"}, rowKeys(page.Rows))

	page, err = f.query.GetResults(ctx, &query.Request{
		Filter: query.Filter{Status: []query.StatusFilter{
			{Run: "unknown", Equality: query.EqualityIs, Status: []string{"PASS"}},
		}},
	})
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
}

func TestGetResults_PathAndTypeFilters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.load(t, "r1",
		testEnd("/dom/a.html", "OK"),
		subtestStatus("/dom/a.html", "x", "PASS"),
		testEnd("/css/b.html", "OK"),
	)

	page, err := f.query.GetResults(ctx, &query.Request{
		Filter: query.Filter{
			Path:     []query.PathFilter{{Choice: "include:start", Path: "/dom"}},
			TestType: query.TestTypeFilter{Type: store.TestTypeSubtest},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/dom/a.html#x"}, rowKeys(page.Rows))

	page, err = f.query.GetResults(ctx, &query.Request{
		Filter: query.Filter{
			Path: []query.PathFilter{{Choice: query.ExcludeEnd, Path: "a.html"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/css/b.html"}, rowKeys(page.Rows))
}

func TestGetResults_InvalidFilter(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter query.Filter
	}{
		{
			name:   "path choice",
			filter: query.Filter{Path: []query.PathFilter{{Choice: "contains"}}},
		},
		{
			name:   "equality",
			filter: query.Filter{Status: []query.StatusFilter{{Equality: "maybe"}}},
		},
		{
			name:   "test type",
			filter: query.Filter{TestType: query.TestTypeFilter{Type: "suite"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.query.GetResults(ctx, &query.Request{Filter: tt.filter})
			require.Error(t, err)
			assert.True(t, errors.Is(err, query.ErrInvalidFilter))
		})
	}
}

func TestComments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.load(t, "r1", testEnd("/a.html", "OK"))

	page, err := f.query.GetResults(ctx, &query.Request{})
	require.NoError(t, err)

	resultID := page.Rows[0].Results[0].ResultID
	require.NotZero(t, resultID)

	comment, err := f.query.GetComment(ctx, resultID)
	require.NoError(t, err)
	assert.Nil(t, comment)

	require.NoError(t, f.query.SaveComment(ctx, resultID, "first", false))
	require.NoError(t, f.query.SaveComment(ctx, resultID, "second", true))

	comment, err = f.query.GetComment(ctx, resultID)
	require.NoError(t, err)
	require.NotNil(t, comment)
	assert.Equal(t, "second", comment.Text)

	page, err = f.query.GetResults(ctx, &query.Request{})
	require.NoError(t, err)
	assert.True(t, page.Rows[0].Results[0].HasComment)

	// Saving empty text removes the comment.
	require.NoError(t, f.query.SaveComment(ctx, resultID, "", true))

	comment, err = f.query.GetComment(ctx, resultID)
	require.NoError(t, err)
	assert.Nil(t, comment)

	err = f.query.SaveComment(ctx, 9999, "orphan", false)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, f.query.DeleteComment(ctx, resultID))
}

func TestRemoveRun(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	run := f.load(t, "r1", testEnd("/a.html", "OK"), subtestStatus("/a.html", "x", "PASS"))
	f.load(t, "r2", testEnd("/a.html", "OK"))

	page, err := f.query.GetResults(ctx, &query.Request{Runs: []uint{run.ID}})
	require.NoError(t, err)

	var resultIDs []uint
	for _, row := range page.Rows {
		resultIDs = append(resultIDs, row.Results[0].ResultID)
		require.NoError(t, f.query.SaveComment(ctx, row.Results[0].ResultID, "note", false))
	}

	err = f.query.DeleteRun(ctx, run.ID)
	assert.ErrorIs(t, err, store.ErrRunHasResults)

	require.NoError(t, f.query.RemoveRun(ctx, run.ID))

	for _, id := range resultIDs {
		comment, err := f.query.GetComment(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, comment)
	}

	runs, err := f.query.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].Name)

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Results)
	assert.Equal(t, int64(0), stats.Comments)

	assert.ErrorIs(t, f.query.RemoveRun(ctx, run.ID), store.ErrNotFound)
}
