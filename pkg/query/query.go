package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/wptview/pkg/store"
	"github.com/sirupsen/logrus"
)

// Request is a results page query.
type Request struct {
	Filter Filter `json:"filter" mapstructure:"filter"`
	// Runs are the ids of the runs to compare. Empty means every run.
	Runs []uint `json:"runs" mapstructure:"runs"`
	// MinTestID and MaxTestID are exclusive keyset bounds, zero when unset.
	MinTestID uint `json:"min_test_id" mapstructure:"min_test_id"`
	MaxTestID uint `json:"max_test_id" mapstructure:"max_test_id"`
	// Limit is the number of distinct tests per page.
	Limit int `json:"limit" mapstructure:"limit"`
}

// RunResult is the outcome of one row in one run slot. Fields are empty
// when the run has no result for the row.
type RunResult struct {
	ResultID   uint   `json:"result_id,omitempty"`
	Status     string `json:"status"`
	Expected   string `json:"expected"`
	Message    string `json:"message"`
	HasComment bool   `json:"has_comment"`
}

// Row is one (test, subtest) group with one result per run slot.
type Row struct {
	TestID    uint        `json:"test_id"`
	Test      string      `json:"test"`
	SubtestID *uint       `json:"subtest_id"`
	Subtest   string      `json:"subtest"`
	Results   []RunResult `json:"results"`
}

// Page is one page of results.
type Page struct {
	Runs []store.TestRun `json:"runs"`
	Rows []Row           `json:"rows"`
	// Tests is the number of distinct tests on the page. A page with
	// fewer tests than the limit is the last one.
	Tests       int  `json:"tests"`
	Limit       int  `json:"limit"`
	FirstTestID uint `json:"first_test_id,omitempty"`
	LastTestID  uint `json:"last_test_id,omitempty"`
}

// Engine answers run, result and comment queries.
type Engine interface {
	ListRuns(ctx context.Context) ([]store.TestRun, error)
	ListRunSourceURLs(ctx context.Context) ([]string, error)
	SwitchRuns(ctx context.Context, ids []uint, enabled bool) error

	GetResults(ctx context.Context, req *Request) (*Page, error)

	GetComment(ctx context.Context, resultID uint) (*store.Comment, error)
	SaveComment(
		ctx context.Context, resultID uint, text string, isUpdate bool,
	) error
	DeleteComment(ctx context.Context, resultID uint) error

	DeleteRunComments(ctx context.Context, runID uint) (int64, error)
	DeleteRunResults(ctx context.Context, runID uint) (int64, error)
	DeleteRun(ctx context.Context, runID uint) error
	RemoveRun(ctx context.Context, runID uint) error
}

// Compile-time interface check.
var _ Engine = (*engine)(nil)

type engine struct {
	log          logrus.FieldLogger
	store        store.Store
	defaultLimit int
}

// NewEngine creates a new query Engine. Requests without a limit use
// defaultLimit.
func NewEngine(
	log logrus.FieldLogger,
	st store.Store,
	defaultLimit int,
) Engine {
	return &engine{
		log:          log.WithField("component", "query"),
		store:        st,
		defaultLimit: defaultLimit,
	}
}

// ListRuns returns every run in creation order.
func (e *engine) ListRuns(ctx context.Context) ([]store.TestRun, error) {
	return e.store.ListRuns(ctx)
}

// ListRunSourceURLs returns the URLs already imported.
func (e *engine) ListRunSourceURLs(ctx context.Context) ([]string, error) {
	return e.store.ListRunSourceURLs(ctx)
}

// SwitchRuns enables or disables runs.
func (e *engine) SwitchRuns(
	ctx context.Context, ids []uint, enabled bool,
) error {
	if err := e.store.SetRunsEnabled(ctx, ids, enabled); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"runs":    ids,
		"enabled": enabled,
	}).Debug("Switched runs")

	return nil
}

// GetResults returns one page of filtered results across the run slots.
func (e *engine) GetResults(ctx context.Context, req *Request) (*Page, error) {
	runs, err := e.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	q, slots, err := e.buildQuery(req, runs)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Runs:  slots,
		Rows:  []Row{},
		Limit: q.Limit,
	}

	testIDs, err := e.store.SelectPageTestIDs(ctx, q)
	if err != nil {
		return nil, err
	}

	if len(testIDs) == 0 {
		return page, nil
	}

	rows, err := e.store.SelectResultRows(ctx, q, testIDs)
	if err != nil {
		return nil, err
	}

	page.Rows = groupRows(rows, slots)
	page.Tests = len(testIDs)
	page.FirstTestID = testIDs[0]
	page.LastTestID = testIDs[len(testIDs)-1]

	return page, nil
}

// buildQuery resolves run slots and filter names into a store query.
func (e *engine) buildQuery(
	req *Request, runs []store.TestRun,
) (*store.ResultQuery, []store.TestRun, error) {
	requested := make(map[uint]struct{}, len(req.Runs))
	for _, id := range req.Runs {
		requested[id] = struct{}{}
	}

	byName := make(map[string]uint, len(runs))
	slots := make([]store.TestRun, 0, len(runs))
	slotIDs := make([]uint, 0, len(runs))

	for _, run := range runs {
		byName[run.Name] = run.ID

		if !run.Enabled {
			continue
		}

		if _, ok := requested[run.ID]; len(requested) > 0 && !ok {
			continue
		}

		slots = append(slots, run)
		slotIDs = append(slotIDs, run.ID)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.defaultLimit
	}

	tt, err := testType(req.Filter.TestType)
	if err != nil {
		return nil, nil, err
	}

	q := &store.ResultQuery{
		RunIDs:    slotIDs,
		MinTestID: req.MinTestID,
		MaxTestID: req.MaxTestID,
		Limit:     limit,
		Type:      tt,
	}

	for _, f := range req.Filter.Status {
		cond, err := f.statusCond(byName)
		if err != nil {
			return nil, nil, err
		}

		q.Status = append(q.Status, cond)
	}

	for _, f := range req.Filter.Path {
		cond, err := f.pathCond()
		if err != nil {
			return nil, nil, err
		}

		q.Paths = append(q.Paths, cond)
	}

	return q, slots, nil
}

// groupRows folds ordered store rows into one Row per (test, subtest)
// with a result slot per run.
func groupRows(rows []store.ResultRow, slots []store.TestRun) []Row {
	slotIndex := make(map[uint]int, len(slots))
	for i, run := range slots {
		slotIndex[run.ID] = i
	}

	out := make([]Row, 0, len(rows))

	for _, r := range rows {
		last := len(out) - 1
		if last < 0 || out[last].TestID != r.TestID ||
			subtestID(out[last]) != r.SubtestID {
			row := Row{
				TestID:  r.TestID,
				Test:    r.TestName,
				Subtest: r.SubtestTitle,
				Results: make([]RunResult, len(slots)),
			}

			if r.SubtestID != store.NoSubtest {
				id := r.SubtestID
				row.SubtestID = &id
			}

			out = append(out, row)
			last++
		}

		idx, ok := slotIndex[r.RunID]
		if !ok {
			continue
		}

		out[last].Results[idx] = RunResult{
			ResultID:   r.ResultID,
			Status:     r.Status,
			Expected:   r.Expected,
			Message:    r.Message,
			HasComment: r.CommentID != 0,
		}
	}

	return out
}

func subtestID(r Row) uint {
	if r.SubtestID == nil {
		return store.NoSubtest
	}

	return *r.SubtestID
}

// GetComment returns the comment of a result, or nil when it has none.
func (e *engine) GetComment(
	ctx context.Context, resultID uint,
) (*store.Comment, error) {
	comment, err := e.store.GetComment(ctx, resultID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return comment, nil
}

// SaveComment creates or updates the comment of a result. Saving empty
// text removes the comment.
func (e *engine) SaveComment(
	ctx context.Context, resultID uint, text string, isUpdate bool,
) error {
	if _, err := e.store.GetResult(ctx, resultID); err != nil {
		return err
	}

	if text == "" {
		return e.store.DeleteComment(ctx, resultID)
	}

	if isUpdate {
		return e.store.UpdateComment(ctx, resultID, text)
	}

	return e.store.CreateComment(ctx, resultID, text)
}

// DeleteComment removes the comment of a result.
func (e *engine) DeleteComment(ctx context.Context, resultID uint) error {
	return e.store.DeleteComment(ctx, resultID)
}

// DeleteRunComments removes every comment on a run's results.
func (e *engine) DeleteRunComments(
	ctx context.Context, runID uint,
) (int64, error) {
	return e.store.DeleteRunComments(ctx, runID)
}

// DeleteRunResults removes every result of a run.
func (e *engine) DeleteRunResults(
	ctx context.Context, runID uint,
) (int64, error) {
	return e.store.DeleteRunResults(ctx, runID)
}

// DeleteRun removes a run row whose results are already gone.
func (e *engine) DeleteRun(ctx context.Context, runID uint) error {
	return e.store.DeleteRun(ctx, runID)
}

// RemoveRun deletes a run with its comments and results, in that order.
func (e *engine) RemoveRun(ctx context.Context, runID uint) error {
	if _, err := e.store.GetRun(ctx, runID); err != nil {
		return err
	}

	comments, err := e.store.DeleteRunComments(ctx, runID)
	if err != nil {
		return fmt.Errorf("removing run %d: %w", runID, err)
	}

	results, err := e.store.DeleteRunResults(ctx, runID)
	if err != nil {
		return fmt.Errorf("removing run %d: %w", runID, err)
	}

	if err := e.store.DeleteRun(ctx, runID); err != nil {
		return fmt.Errorf("removing run %d: %w", runID, err)
	}

	e.log.WithFields(logrus.Fields{
		"run_id":   runID,
		"comments": comments,
		"results":  results,
	}).Info("Removed run")

	return nil
}
