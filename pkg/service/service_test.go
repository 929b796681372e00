package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/ethpandaops/wptview/pkg/ingest"
	"github.com/ethpandaops/wptview/pkg/logparser"
	"github.com/ethpandaops/wptview/pkg/query"
	"github.com/ethpandaops/wptview/pkg/service"
	"github.com/ethpandaops/wptview/pkg/store"
)

func setupModel(t *testing.T) *service.Model {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Database.SQLite.Path = ":memory:"
	cfg.Query.PageLimit = 10

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	svc := service.New(log, cfg)
	require.NoError(t, svc.Start(context.Background()))

	t.Cleanup(func() { assert.NoError(t, svc.Stop()) })

	return svc.Model()
}

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "wptreport.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))

	return path
}

var runLog = []string{
	`{"action":"test_start","test":"/a.html"}`,
	`{"action":"test_status","test":"/a.html","subtest":"first","status":"PASS","expected":"PASS"}`,
	`{"action":"test_status","test":"/a.html","subtest":"second","status":"FAIL","expected":"PASS","message":"assert_true"}`,
	`{"action":"test_end","test":"/a.html","status":"OK"}`,
	`{"action":"log","level":"ERROR","message":"crash in content process"}`,
	`{"action":"test_start","test":"/b.html"}`,
	`{"action":"test_end","test":"/b.html","status":"TIMEOUT","expected":"OK"}`,
}

func TestModel_ReadAndIngest(t *testing.T) {
	m := setupModel(t)
	ctx := context.Background()

	records, err := m.Read(ctx, writeLog(t, runLog...))
	require.NoError(t, err)
	require.Len(t, records, 7)

	report, err := m.AddResultsFromLogs(ctx, records, "nightly", ingest.FileSource(), ingest.Options{})
	require.NoError(t, err)

	assert.Equal(t, "nightly", report.Run.Name)
	assert.Zero(t, report.DuplicateCount())
	require.Len(t, report.Logs, 1)
	assert.Equal(t, "crash in content process", report.Logs[0].Message)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(2), stats.Tests)
	assert.Equal(t, int64(2), stats.Subtests)
	assert.Equal(t, int64(4), stats.Results)

	page, err := m.SelectFilteredResults(ctx, query.Request{})
	require.NoError(t, err)
	require.Len(t, page.Runs, 1)
	require.Len(t, page.Rows, 4)
	assert.Equal(t, "/a.html", page.Rows[0].Test)
	assert.Nil(t, page.Rows[0].SubtestID)
	assert.Equal(t, "OK", page.Rows[0].Results[0].Status)
	assert.Equal(t, "TIMEOUT", page.Rows[3].Results[0].Status)
}

func TestModel_RunNameTakenCrossesTheChannel(t *testing.T) {
	m := setupModel(t)
	ctx := context.Background()

	records, err := m.Read(ctx, writeLog(t, runLog...))
	require.NoError(t, err)

	_, err = m.AddResultsFromLogs(ctx, records, "dup", ingest.FileSource(), ingest.Options{})
	require.NoError(t, err)

	_, err = m.AddResultsFromLogs(ctx, records, "dup", ingest.FileSource(), ingest.Options{})

	var taken *ingest.RunNameTakenError
	require.True(t, errors.As(err, &taken))
	assert.Equal(t, "dup", taken.Name)

	// Resuming into the existing run reports every outcome as duplicate.
	report, err := m.AddResultsFromLogs(ctx, records, "dup", ingest.FileSource(),
		ingest.Options{ReuseExisting: true})
	require.NoError(t, err)
	assert.Equal(t, 4, report.DuplicateCount())
}

func TestModel_StepsIndividually(t *testing.T) {
	m := setupModel(t)
	ctx := context.Background()

	records, err := m.Read(ctx, writeLog(t, runLog...))
	require.NoError(t, err)

	st, err := m.InsertTestRuns(ctx, records, "steps", ingest.FileSource(), ingest.Options{})
	require.NoError(t, err)
	require.NotNil(t, st.Run)
	assert.Len(t, st.Tests, 2)
	assert.Len(t, st.Subtests, 2)

	st, err = m.InsertTests(ctx, st)
	require.NoError(t, err)
	assert.Len(t, st.TestIDs, 2)

	st, err = m.InsertTestResults(ctx, st)
	require.NoError(t, err)

	st, err = m.InsertSubtests(ctx, st)
	require.NoError(t, err)
	assert.Len(t, st.SubtestIDs, 2)

	_, err = m.InsertSubtestResults(ctx, st)
	require.NoError(t, err)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Results)
}

func TestModel_CommentsAndRunRemoval(t *testing.T) {
	m := setupModel(t)
	ctx := context.Background()

	records, err := m.Read(ctx, writeLog(t, runLog...))
	require.NoError(t, err)

	report, err := m.AddResultsFromLogs(ctx, records, "r", ingest.FileSource(), ingest.Options{})
	require.NoError(t, err)

	page, err := m.SelectFilteredResults(ctx, query.Request{})
	require.NoError(t, err)

	resultID := page.Rows[0].Results[0].ResultID
	require.NotZero(t, resultID)

	comment, err := m.SelectComment(ctx, resultID)
	require.NoError(t, err)
	assert.Nil(t, comment)

	require.NoError(t, m.InsertComment(ctx, resultID, "flaky"))
	require.Error(t, m.InsertComment(ctx, resultID, "again"))
	require.NoError(t, m.UpdateComment(ctx, resultID, "known flaky"))

	comment, err = m.SelectComment(ctx, resultID)
	require.NoError(t, err)
	require.NotNil(t, comment)
	assert.Equal(t, "known flaky", comment.Text)

	runID := report.Run.ID

	err = m.DeleteRun(ctx, runID)
	assert.ErrorIs(t, err, store.ErrRunHasResults)

	comments, err := m.DeleteComments(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), comments)

	results, err := m.DeleteEntries(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), results)

	require.NoError(t, m.DeleteRun(ctx, runID))

	runs, err := m.GetRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestModel_SwitchRunsAndURLs(t *testing.T) {
	m := setupModel(t)
	ctx := context.Background()

	records, err := m.Read(ctx, writeLog(t, runLog...))
	require.NoError(t, err)

	src := ingest.URLSource("https://example.org/wptreport.log")

	report, err := m.AddResultsFromLogs(ctx, records, "remote", src, ingest.Options{})
	require.NoError(t, err)

	urls, err := m.GetRunURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.org/wptreport.log"}, urls)

	require.NoError(t, m.SwitchRuns(ctx, []uint{report.Run.ID}, false))

	page, err := m.SelectFilteredResults(ctx, query.Request{})
	require.NoError(t, err)
	assert.Empty(t, page.Runs)

	require.NoError(t, m.RemoveRun(ctx, report.Run.ID))

	runs, err := m.GetRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestModel_ReadErrors(t *testing.T) {
	m := setupModel(t)
	ctx := context.Background()

	_, err := m.Read(ctx, writeLog(t, `{"action":"test_start","test":"/a.html"}`, `{not json`))

	var malformed *logparser.MalformedLogError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 2, malformed.Line)

	_, err = m.Read(ctx, filepath.Join(t.TempDir(), "missing.log"))

	var readErr *logparser.FileReadError
	assert.True(t, errors.As(err, &readErr))
}

func TestModel_ImportAll(t *testing.T) {
	m := setupModel(t)
	ctx := context.Background()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Join(runLog, "\n")))
	}))
	defer srv.Close()

	first, err := m.ImportAll(ctx, log, []service.ImportSource{
		{Path: writeLog(t, runLog...)},
	}, service.ImportOptions{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NotNil(t, first[0].Report)
	assert.Equal(t, "wptreport.log", first[0].Report.Run.Name)

	url := srv.URL + "/logs/remote.log?raw=1"

	results, err := m.ImportAll(ctx, log, []service.ImportSource{
		{Path: writeLog(t, runLog...)},
		{Path: writeLog(t, runLog...)},
		{URL: url},
		{URL: url},
		{Path: filepath.Join(t.TempDir(), "missing.log")},
	}, service.ImportOptions{DisablePrevious: true, Concurrency: 3})
	require.NoError(t, err)
	require.Len(t, results, 5)

	names := []string{results[0].Report.Run.Name, results[1].Report.Run.Name}
	assert.ElementsMatch(t, []string{"wptreport.log (1)", "wptreport.log (2)"}, names)

	require.NotNil(t, results[2].Report)
	assert.Equal(t, "remote.log", results[2].Report.Run.Name)
	assert.True(t, results[3].Skipped)
	assert.Error(t, results[4].Err())
	assert.NotEmpty(t, results[4].Error)

	runs, err := m.GetRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	assert.False(t, runs[0].Enabled)

	for _, run := range runs[1:] {
		assert.True(t, run.Enabled, run.Name)
	}

	// Already imported URLs are skipped on later batches too.
	again, err := m.ImportAll(ctx, log, []service.ImportSource{{URL: url}}, service.ImportOptions{})
	require.NoError(t, err)
	assert.True(t, again[0].Skipped)
}
