package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/wptview/pkg/query"
	"github.com/ethpandaops/wptview/pkg/store"
)

type fakePager struct {
	pages []*query.Page
	reqs  []query.Request
	err   error
}

func (f *fakePager) GetResults(
	_ context.Context, req *query.Request,
) (*query.Page, error) {
	f.reqs = append(f.reqs, *req)

	if f.err != nil {
		return nil, f.err
	}

	page := f.pages[0]
	f.pages = f.pages[1:]

	return page, nil
}

func subtestID(id uint) *uint {
	return &id
}

func TestBuild(t *testing.T) {
	runs := []store.TestRun{{ID: 1, Name: "r1"}, {ID: 2, Name: "r2"}}

	pager := &fakePager{pages: []*query.Page{
		{
			Runs: runs, Limit: 1, Tests: 1, FirstTestID: 4, LastTestID: 4,
			Rows: []query.Row{
				{TestID: 4, Test: "/a.html", Results: []query.RunResult{
					{Status: "OK", Expected: "OK"}, {Status: "ERROR", Expected: "OK", Message: "boom"},
				}},
				{TestID: 4, Test: "/a.html", SubtestID: subtestID(9), Subtest: "x", Results: []query.RunResult{
					{Status: "PASS", Expected: "PASS"}, {},
				}},
			},
		},
		{Runs: runs, Limit: 1},
	}}

	doc, err := Build(context.Background(), pager, query.Request{Limit: 1, MaxTestID: 99})
	require.NoError(t, err)

	require.Len(t, pager.reqs, 2)
	assert.Zero(t, pager.reqs[0].MaxTestID)
	assert.Equal(t, uint(4), pager.reqs[1].MinTestID)

	var buf bytes.Buffer
	require.NoError(t, doc.Write(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, []any{"r1", "r2"}, decoded["runs"])
	assert.Equal(t, map[string]any{
		"/a.html": []any{
			[]any{"", []any{"OK", "OK", ""}, []any{"OK", "ERROR", "boom"}},
			[]any{"x", []any{"PASS", "PASS", ""}, []any{"", "", ""}},
		},
	}, decoded["results"])
}

func TestBuild_Error(t *testing.T) {
	pager := &fakePager{err: errors.New("db down")}

	_, err := Build(context.Background(), pager, query.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestBuild_Empty(t *testing.T) {
	pager := &fakePager{pages: []*query.Page{{Limit: 50}}}

	doc, err := Build(context.Background(), pager, query.Request{})
	require.NoError(t, err)
	assert.Empty(t, doc.Runs)
	assert.Empty(t, doc.Results)
}
