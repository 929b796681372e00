package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/wptview/pkg/logparser"
	"github.com/ethpandaops/wptview/pkg/store"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// RunNameTakenError is returned when ingesting under the name of an
// existing run. Callers disambiguate with UniqueRunName and retry.
type RunNameTakenError struct {
	Name  string
	RunID uint
}

func (e *RunNameTakenError) Error() string {
	return fmt.Sprintf("run name %q is already taken by run %d", e.Name, e.RunID)
}

// Step is one stage of the ingestion pipeline.
type Step func(ctx context.Context, st State) (State, error)

// Engine turns crunched log records into stored runs and results.
type Engine interface {
	// Ingest runs every step in order for one run.
	Ingest(
		ctx context.Context,
		records []logparser.Record,
		runName string,
		source Source,
		opts Options,
	) (*Report, error)

	// ResolveRun creates the run row, enabled, or reuses it when
	// Options.ReuseExisting is set.
	ResolveRun(ctx context.Context, st State) (State, error)
	// InsertTests gets or creates every test the state refers to.
	InsertTests(ctx context.Context, st State) (State, error)
	// InsertTestResults stores one result per test occurrence.
	InsertTestResults(ctx context.Context, st State) (State, error)
	// InsertSubtests gets or creates every subtest the state refers to.
	InsertSubtests(ctx context.Context, st State) (State, error)
	// InsertSubtestResults stores one result per subtest occurrence.
	InsertSubtestResults(ctx context.Context, st State) (State, error)
}

// Compile-time interface check.
var _ Engine = (*engine)(nil)

type engine struct {
	log   logrus.FieldLogger
	store store.Store
	// tests caches test ids by name. Tests are never deleted, so a cached
	// id stays valid for the lifetime of the store. Nil when disabled.
	tests *lru.Cache[string, uint]
}

// NewEngine creates a new ingestion Engine. testCacheSize bounds the
// number of test ids kept in memory between imports, zero disables it.
func NewEngine(
	log logrus.FieldLogger, st store.Store, testCacheSize int,
) (Engine, error) {
	e := &engine{
		log:   log.WithField("component", "ingest"),
		store: st,
	}

	if testCacheSize > 0 {
		cache, err := lru.New[string, uint](testCacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating test cache: %w", err)
		}

		e.tests = cache
	}

	return e, nil
}

// Steps returns the pipeline in execution order.
func Steps(e Engine) []Step {
	return []Step{
		e.ResolveRun,
		Partition,
		e.InsertTests,
		e.InsertTestResults,
		e.InsertSubtests,
		e.InsertSubtestResults,
	}
}

// Ingest runs the full pipeline for one run.
func (e *engine) Ingest(
	ctx context.Context,
	records []logparser.Record,
	runName string,
	source Source,
	opts Options,
) (*Report, error) {
	start := time.Now()
	st := NewState(records, runName, source, opts)

	for _, step := range Steps(e) {
		var err error

		st, err = step(ctx, st)
		if err != nil {
			return nil, err
		}
	}

	e.log.WithFields(logrus.Fields{
		"run":        st.Run.Name,
		"run_id":     st.Run.ID,
		"tests":      len(st.Tests),
		"subtests":   len(st.Subtests),
		"duplicates": len(st.Duplicates),
		"duration":   time.Since(start).String(),
	}).Info("Ingested run")

	return st.Report(), nil
}

// ResolveRun creates the run row or, on retry, reuses the existing one.
func (e *engine) ResolveRun(ctx context.Context, st State) (State, error) {
	if st.RunName == "" {
		return st, fmt.Errorf("run name is required")
	}

	existing, err := e.store.GetRunByName(ctx, st.RunName)

	switch {
	case err == nil:
		if !st.Options.ReuseExisting {
			return st, &RunNameTakenError{Name: st.RunName, RunID: existing.ID}
		}

		st.Run = existing

		return st, nil
	case !errors.Is(err, store.ErrNotFound):
		return st, fmt.Errorf("resolving run: %w", err)
	}

	run := &store.TestRun{
		Name:       st.RunName,
		SourceType: st.Source.Type,
		SourceURL:  st.Source.URL,
		Enabled:    true,
	}

	if run.SourceType == "" {
		run.SourceType = store.SourceTypeFile
	}

	if err := e.store.CreateRun(ctx, run); err != nil {
		if errors.Is(err, store.ErrConstraintViolation) {
			// Lost a race with another ingestion of the same name.
			return st, &RunNameTakenError{Name: st.RunName}
		}

		return st, fmt.Errorf("creating run: %w", err)
	}

	st.Run = run

	return st, nil
}

// InsertTests gets or creates every test name of the state. Names found
// in the cache skip the store.
func (e *engine) InsertTests(ctx context.Context, st State) (State, error) {
	names := st.TestNames()
	ids := make(map[string]uint, len(names))
	missing := names

	if e.tests != nil {
		missing = make([]string, 0, len(names))

		for _, name := range names {
			if id, ok := e.tests.Get(name); ok {
				ids[name] = id

				continue
			}

			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		created, err := e.store.GetOrCreateTests(ctx, missing)
		if err != nil {
			return st, fmt.Errorf("inserting tests: %w", err)
		}

		for name, id := range created {
			ids[name] = id

			if e.tests != nil {
				e.tests.Add(name, id)
			}
		}
	}

	e.log.WithFields(logrus.Fields{
		"tests":  len(names),
		"cached": len(names) - len(missing),
	}).Debug("Resolved tests")

	st.TestIDs = ids

	return st, nil
}

// InsertTestResults stores the test-level results of the run.
func (e *engine) InsertTestResults(
	ctx context.Context, st State,
) (State, error) {
	if err := st.requireRun(); err != nil {
		return st, err
	}

	results := make([]*store.Result, 0, len(st.Tests))
	origin := make(map[*store.Result]TestOccurrence, len(st.Tests))

	for _, occ := range st.Tests {
		testID, ok := st.TestIDs[occ.Test]
		if !ok {
			return st, fmt.Errorf("test %q has not been inserted", occ.Test)
		}

		r := &store.Result{
			RunID:     st.Run.ID,
			TestID:    testID,
			SubtestID: store.NoSubtest,
			Status:    occ.Status,
			Expected:  occ.Expected,
			Message:   occ.Message,
		}

		results = append(results, r)
		origin[r] = occ
	}

	dups, err := e.store.InsertResults(ctx, results)
	if err != nil {
		return st, fmt.Errorf("inserting test results: %w", err)
	}

	for _, d := range dups {
		occ := origin[d]
		st.Duplicates = append(st.Duplicates, Duplicate{
			Run:      st.Run.Name,
			Test:     occ.Test,
			Status:   occ.Status,
			Expected: occ.Expected,
			Message:  occ.Message,
		})
	}

	return st, nil
}

// InsertSubtests gets or creates every (test, title) pair of the state.
func (e *engine) InsertSubtests(ctx context.Context, st State) (State, error) {
	keys := make([]store.SubtestKey, 0, len(st.Subtests))

	for _, occ := range st.Subtests {
		testID, ok := st.TestIDs[occ.Test]
		if !ok {
			return st, fmt.Errorf("test %q has not been inserted", occ.Test)
		}

		keys = append(keys, store.SubtestKey{TestID: testID, Title: occ.Subtest})
	}

	ids, err := e.store.GetOrCreateSubtests(ctx, keys)
	if err != nil {
		return st, fmt.Errorf("inserting subtests: %w", err)
	}

	st.SubtestIDs = ids

	return st, nil
}

// InsertSubtestResults stores the subtest-level results of the run.
func (e *engine) InsertSubtestResults(
	ctx context.Context, st State,
) (State, error) {
	if err := st.requireRun(); err != nil {
		return st, err
	}

	results := make([]*store.Result, 0, len(st.Subtests))
	origin := make(map[*store.Result]SubtestOccurrence, len(st.Subtests))

	for _, occ := range st.Subtests {
		key := store.SubtestKey{TestID: st.TestIDs[occ.Test], Title: occ.Subtest}

		subtestID, ok := st.SubtestIDs[key]
		if !ok {
			return st, fmt.Errorf(
				"subtest %q of %q has not been inserted", occ.Subtest, occ.Test,
			)
		}

		r := &store.Result{
			RunID:     st.Run.ID,
			TestID:    key.TestID,
			SubtestID: subtestID,
			Status:    occ.Status,
			Expected:  occ.Expected,
			Message:   occ.Message,
		}

		results = append(results, r)
		origin[r] = occ
	}

	dups, err := e.store.InsertResults(ctx, results)
	if err != nil {
		return st, fmt.Errorf("inserting subtest results: %w", err)
	}

	for _, d := range dups {
		occ := origin[d]
		st.Duplicates = append(st.Duplicates, Duplicate{
			Run:      st.Run.Name,
			Test:     occ.Test,
			Subtest:  occ.Subtest,
			Status:   occ.Status,
			Expected: occ.Expected,
			Message:  occ.Message,
		})
	}

	return st, nil
}

func (s *State) requireRun() error {
	if s.Run == nil {
		return fmt.Errorf("run has not been resolved")
	}

	return nil
}
