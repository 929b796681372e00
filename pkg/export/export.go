// Package export builds the portable comparison document of a result set.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethpandaops/wptview/pkg/query"
)

// Outcome is one run's [expected, status, message] triple.
type Outcome [3]string

// Entry is one subtest row: its title followed by one Outcome per run.
// Test-level rows use an empty title.
type Entry []any

// Document is the exported form of a comparison:
//
//	{"runs": [name...], "results": {test: [[subtest, [expected, status, message]...]...]}}
type Document struct {
	Runs    []string           `json:"runs"`
	Results map[string][]Entry `json:"results"`
}

// Pager fetches result pages.
type Pager interface {
	GetResults(ctx context.Context, req *query.Request) (*query.Page, error)
}

// Build walks every page of req forward from its MinTestID and returns
// the document of all rows. MaxTestID is ignored.
func Build(ctx context.Context, pager Pager, req query.Request) (*Document, error) {
	doc := &Document{
		Runs:    []string{},
		Results: map[string][]Entry{},
	}

	req.MaxTestID = 0

	for {
		page, err := pager.GetResults(ctx, &req)
		if err != nil {
			return nil, fmt.Errorf("fetching results page: %w", err)
		}

		if len(doc.Runs) == 0 {
			for _, run := range page.Runs {
				doc.Runs = append(doc.Runs, run.Name)
			}
		}

		doc.Add(page.Rows)

		if page.Tests == 0 || page.Tests < page.Limit {
			return doc, nil
		}

		req.MinTestID = page.LastTestID
	}
}

// Add appends rows to the document.
func (d *Document) Add(rows []query.Row) {
	for _, row := range rows {
		entry := make(Entry, 0, len(row.Results)+1)
		entry = append(entry, row.Subtest)

		for _, r := range row.Results {
			entry = append(entry, Outcome{r.Expected, r.Status, r.Message})
		}

		d.Results[row.Test] = append(d.Results[row.Test], entry)
	}
}

// Write encodes the document as indented JSON.
func (d *Document) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}

	return nil
}
