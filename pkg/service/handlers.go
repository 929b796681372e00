package service

import (
	"context"

	"github.com/ethpandaops/wptview/pkg/ingest"
	"github.com/ethpandaops/wptview/pkg/logparser"
	"github.com/ethpandaops/wptview/pkg/query"
	"github.com/ethpandaops/wptview/pkg/store"
	"github.com/ethpandaops/wptview/pkg/worker"
)

// Commands understood by the worker.
const (
	CmdRead                  = "read"
	CmdReadURL               = "readURL"
	CmdInsertTestRuns        = "insertTestRuns"
	CmdInsertTests           = "insertTests"
	CmdInsertTestResults     = "insertTestResults"
	CmdInsertSubtests        = "insertSubtests"
	CmdInsertSubtestResults  = "insertSubtestResults"
	CmdSelectFilteredResults = "selectFilteredResults"
	CmdSelectComment         = "selectComment"
	CmdInsertComment         = "insertComment"
	CmdUpdateComment         = "updateComment"
	CmdDeleteComment         = "deleteComment"
	CmdDeleteComments        = "deleteComments"
	CmdDeleteEntries         = "deleteEntries"
	CmdDeleteRun             = "deleteRun"
	CmdRemoveRun             = "removeRun"
	CmdGetRuns               = "getRuns"
	CmdGetRunURLs            = "getRunURLs"
	CmdSwitchRuns            = "switchRuns"
	CmdStats                 = "stats"
)

type pathArgs struct {
	Path string `mapstructure:"path"`
}

type urlArgs struct {
	URL string `mapstructure:"url"`
}

type runArgs struct {
	Records []logparser.Record `mapstructure:"records"`
	RunName string             `mapstructure:"run_name"`
	Source  ingest.Source      `mapstructure:"source"`
	Options ingest.Options     `mapstructure:"options"`
}

type stateArgs struct {
	State ingest.State `mapstructure:"state"`
}

type requestArgs struct {
	Request query.Request `mapstructure:"request"`
}

type commentArgs struct {
	ResultID uint   `mapstructure:"result_id"`
	Text     string `mapstructure:"text"`
}

type runIDArgs struct {
	RunID uint `mapstructure:"run_id"`
}

type switchArgs struct {
	IDs     []uint `mapstructure:"ids"`
	Enabled bool   `mapstructure:"enabled"`
}

// handlers binds worker commands to the engines.
type handlers struct {
	reader logparser.Reader
	ingest ingest.Engine
	query  query.Engine
	store  store.Store
}

// register installs every command on w.
func (h *handlers) register(w *worker.Worker) {
	w.Handle(CmdRead, h.read)
	w.Handle(CmdReadURL, h.readURL)
	w.Handle(CmdInsertTestRuns, h.insertTestRuns)
	w.Handle(CmdInsertTests, h.step(h.ingest.InsertTests))
	w.Handle(CmdInsertTestResults, h.step(h.ingest.InsertTestResults))
	w.Handle(CmdInsertSubtests, h.step(h.ingest.InsertSubtests))
	w.Handle(CmdInsertSubtestResults, h.step(h.ingest.InsertSubtestResults))
	w.Handle(CmdSelectFilteredResults, h.selectFilteredResults)
	w.Handle(CmdSelectComment, h.selectComment)
	w.Handle(CmdInsertComment, h.saveComment(false))
	w.Handle(CmdUpdateComment, h.saveComment(true))
	w.Handle(CmdDeleteComment, h.deleteComment)
	w.Handle(CmdDeleteComments, h.runCount(h.query.DeleteRunComments))
	w.Handle(CmdDeleteEntries, h.runCount(h.query.DeleteRunResults))
	w.Handle(CmdDeleteRun, h.runAction(h.query.DeleteRun))
	w.Handle(CmdRemoveRun, h.runAction(h.query.RemoveRun))
	w.Handle(CmdGetRuns, h.getRuns)
	w.Handle(CmdGetRunURLs, h.getRunURLs)
	w.Handle(CmdSwitchRuns, h.switchRuns)
	w.Handle(CmdStats, h.stats)
}

func (h *handlers) read(ctx context.Context, args map[string]any) (any, error) {
	var in pathArgs
	if err := worker.Decode(args, &in); err != nil {
		return nil, err
	}

	return h.reader.Read(ctx, in.Path)
}

func (h *handlers) readURL(ctx context.Context, args map[string]any) (any, error) {
	var in urlArgs
	if err := worker.Decode(args, &in); err != nil {
		return nil, err
	}

	return h.reader.ReadURL(ctx, in.URL)
}

// insertTestRuns resolves the run and partitions its records, producing
// the state the remaining steps consume.
func (h *handlers) insertTestRuns(
	ctx context.Context, args map[string]any,
) (any, error) {
	var in runArgs
	if err := worker.Decode(args, &in); err != nil {
		return nil, err
	}

	st := ingest.NewState(in.Records, in.RunName, in.Source, in.Options)

	st, err := h.ingest.ResolveRun(ctx, st)
	if err != nil {
		return nil, err
	}

	return ingest.Partition(ctx, st)
}

func (h *handlers) step(fn ingest.Step) worker.HandlerFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in stateArgs
		if err := worker.Decode(args, &in); err != nil {
			return nil, err
		}

		return fn(ctx, in.State)
	}
}

func (h *handlers) selectFilteredResults(
	ctx context.Context, args map[string]any,
) (any, error) {
	var in requestArgs
	if err := worker.Decode(args, &in); err != nil {
		return nil, err
	}

	return h.query.GetResults(ctx, &in.Request)
}

func (h *handlers) selectComment(
	ctx context.Context, args map[string]any,
) (any, error) {
	var in commentArgs
	if err := worker.Decode(args, &in); err != nil {
		return nil, err
	}

	return h.query.GetComment(ctx, in.ResultID)
}

func (h *handlers) saveComment(isUpdate bool) worker.HandlerFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in commentArgs
		if err := worker.Decode(args, &in); err != nil {
			return nil, err
		}

		return nil, h.query.SaveComment(ctx, in.ResultID, in.Text, isUpdate)
	}
}

func (h *handlers) deleteComment(
	ctx context.Context, args map[string]any,
) (any, error) {
	var in commentArgs
	if err := worker.Decode(args, &in); err != nil {
		return nil, err
	}

	return nil, h.query.DeleteComment(ctx, in.ResultID)
}

func (h *handlers) runCount(
	fn func(ctx context.Context, runID uint) (int64, error),
) worker.HandlerFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in runIDArgs
		if err := worker.Decode(args, &in); err != nil {
			return nil, err
		}

		return fn(ctx, in.RunID)
	}
}

func (h *handlers) runAction(
	fn func(ctx context.Context, runID uint) error,
) worker.HandlerFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in runIDArgs
		if err := worker.Decode(args, &in); err != nil {
			return nil, err
		}

		return nil, fn(ctx, in.RunID)
	}
}

func (h *handlers) getRuns(ctx context.Context, _ map[string]any) (any, error) {
	return h.query.ListRuns(ctx)
}

func (h *handlers) getRunURLs(ctx context.Context, _ map[string]any) (any, error) {
	return h.query.ListRunSourceURLs(ctx)
}

func (h *handlers) switchRuns(
	ctx context.Context, args map[string]any,
) (any, error) {
	var in switchArgs
	if err := worker.Decode(args, &in); err != nil {
		return nil, err
	}

	return nil, h.query.SwitchRuns(ctx, in.IDs, in.Enabled)
}

func (h *handlers) stats(ctx context.Context, _ map[string]any) (any, error) {
	return h.store.Stats(ctx)
}
