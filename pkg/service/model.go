package service

import (
	"context"
	"fmt"

	"github.com/ethpandaops/wptview/pkg/ingest"
	"github.com/ethpandaops/wptview/pkg/logparser"
	"github.com/ethpandaops/wptview/pkg/query"
	"github.com/ethpandaops/wptview/pkg/store"
	"github.com/ethpandaops/wptview/pkg/worker"
)

// Model is the typed caller side of the worker channel. Every method is
// one round trip, except AddResultsFromLogs which chains the ingestion
// steps.
type Model struct {
	client *worker.Client
}

// NewModel wraps a running worker client.
func NewModel(client *worker.Client) *Model {
	return &Model{client: client}
}

// call issues a command and asserts the result type.
func call[T any](
	ctx context.Context, m *Model, command string, args map[string]any,
) (T, error) {
	var zero T

	res, err := m.client.Call(ctx, command, args)
	if err != nil {
		return zero, err
	}

	if res == nil {
		return zero, nil
	}

	out, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("command %s returned %T, want %T", command, res, zero)
	}

	return out, nil
}

// exec issues a command that returns no value.
func (m *Model) exec(ctx context.Context, command string, args map[string]any) error {
	_, err := m.client.Call(ctx, command, args)

	return err
}

// Read crunches a local log file.
func (m *Model) Read(ctx context.Context, path string) ([]logparser.Record, error) {
	return call[[]logparser.Record](ctx, m, CmdRead, map[string]any{"path": path})
}

// ReadURL fetches and crunches a remote log.
func (m *Model) ReadURL(ctx context.Context, url string) ([]logparser.Record, error) {
	return call[[]logparser.Record](ctx, m, CmdReadURL, map[string]any{"url": url})
}

// InsertTestRuns resolves the run of an ingestion and partitions its
// records.
func (m *Model) InsertTestRuns(
	ctx context.Context,
	records []logparser.Record,
	runName string,
	source ingest.Source,
	opts ingest.Options,
) (ingest.State, error) {
	return call[ingest.State](ctx, m, CmdInsertTestRuns, map[string]any{
		"records":  records,
		"run_name": runName,
		"source":   source,
		"options":  opts,
	})
}

// InsertTests runs the test creation step.
func (m *Model) InsertTests(ctx context.Context, st ingest.State) (ingest.State, error) {
	return m.step(ctx, CmdInsertTests, st)
}

// InsertTestResults runs the test result step.
func (m *Model) InsertTestResults(
	ctx context.Context, st ingest.State,
) (ingest.State, error) {
	return m.step(ctx, CmdInsertTestResults, st)
}

// InsertSubtests runs the subtest creation step.
func (m *Model) InsertSubtests(
	ctx context.Context, st ingest.State,
) (ingest.State, error) {
	return m.step(ctx, CmdInsertSubtests, st)
}

// InsertSubtestResults runs the subtest result step.
func (m *Model) InsertSubtestResults(
	ctx context.Context, st ingest.State,
) (ingest.State, error) {
	return m.step(ctx, CmdInsertSubtestResults, st)
}

func (m *Model) step(
	ctx context.Context, command string, st ingest.State,
) (ingest.State, error) {
	return call[ingest.State](ctx, m, command, map[string]any{"state": st})
}

// AddResultsFromLogs ingests crunched records as one run. Each step is
// issued only after the previous one answered, with its output as input.
func (m *Model) AddResultsFromLogs(
	ctx context.Context,
	records []logparser.Record,
	runName string,
	source ingest.Source,
	opts ingest.Options,
) (*ingest.Report, error) {
	st, err := m.InsertTestRuns(ctx, records, runName, source, opts)
	if err != nil {
		return nil, err
	}

	return m.completeIngest(ctx, st)
}

// completeIngest issues the steps after InsertTestRuns in order, each
// with the previous step's output.
func (m *Model) completeIngest(
	ctx context.Context, st ingest.State,
) (*ingest.Report, error) {
	steps := []func(context.Context, ingest.State) (ingest.State, error){
		m.InsertTests,
		m.InsertTestResults,
		m.InsertSubtests,
		m.InsertSubtestResults,
	}

	var err error

	for _, step := range steps {
		if st, err = step(ctx, st); err != nil {
			return nil, err
		}
	}

	return st.Report(), nil
}

// SelectFilteredResults returns one page of results.
func (m *Model) SelectFilteredResults(
	ctx context.Context, req query.Request,
) (*query.Page, error) {
	return call[*query.Page](ctx, m, CmdSelectFilteredResults, map[string]any{
		"request": req,
	})
}

// SelectComment returns the comment of a result, nil when it has none.
func (m *Model) SelectComment(
	ctx context.Context, resultID uint,
) (*store.Comment, error) {
	return call[*store.Comment](ctx, m, CmdSelectComment, map[string]any{
		"result_id": resultID,
	})
}

// InsertComment adds a comment to a result.
func (m *Model) InsertComment(ctx context.Context, resultID uint, text string) error {
	return m.exec(ctx, CmdInsertComment, map[string]any{
		"result_id": resultID,
		"text":      text,
	})
}

// UpdateComment replaces the comment of a result.
func (m *Model) UpdateComment(ctx context.Context, resultID uint, text string) error {
	return m.exec(ctx, CmdUpdateComment, map[string]any{
		"result_id": resultID,
		"text":      text,
	})
}

// DeleteComment removes the comment of a result.
func (m *Model) DeleteComment(ctx context.Context, resultID uint) error {
	return m.exec(ctx, CmdDeleteComment, map[string]any{"result_id": resultID})
}

// DeleteComments removes every comment on a run's results.
func (m *Model) DeleteComments(ctx context.Context, runID uint) (int64, error) {
	return call[int64](ctx, m, CmdDeleteComments, map[string]any{"run_id": runID})
}

// DeleteEntries removes every result of a run.
func (m *Model) DeleteEntries(ctx context.Context, runID uint) (int64, error) {
	return call[int64](ctx, m, CmdDeleteEntries, map[string]any{"run_id": runID})
}

// DeleteRun removes a run row whose results are already gone.
func (m *Model) DeleteRun(ctx context.Context, runID uint) error {
	return m.exec(ctx, CmdDeleteRun, map[string]any{"run_id": runID})
}

// RemoveRun removes a run with its comments and results.
func (m *Model) RemoveRun(ctx context.Context, runID uint) error {
	return m.exec(ctx, CmdRemoveRun, map[string]any{"run_id": runID})
}

// GetRuns returns every run in creation order.
func (m *Model) GetRuns(ctx context.Context) ([]store.TestRun, error) {
	return call[[]store.TestRun](ctx, m, CmdGetRuns, nil)
}

// GetRunURLs returns the source URLs already imported.
func (m *Model) GetRunURLs(ctx context.Context) ([]string, error) {
	return call[[]string](ctx, m, CmdGetRunURLs, nil)
}

// SwitchRuns enables or disables runs.
func (m *Model) SwitchRuns(ctx context.Context, ids []uint, enabled bool) error {
	return m.exec(ctx, CmdSwitchRuns, map[string]any{
		"ids":     ids,
		"enabled": enabled,
	})
}

// Stats returns row counts per table.
func (m *Model) Stats(ctx context.Context) (*store.Stats, error) {
	return call[*store.Stats](ctx, m, CmdStats, nil)
}

// GetResults adapts SelectFilteredResults to the export pager.
func (m *Model) GetResults(ctx context.Context, req *query.Request) (*query.Page, error) {
	return m.SelectFilteredResults(ctx, *req)
}
