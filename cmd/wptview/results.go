package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/ethpandaops/wptview/pkg/query"
	"github.com/ethpandaops/wptview/pkg/service"
	"github.com/ethpandaops/wptview/pkg/store"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const resultsRowLength = 160

// filterFlags are the result selection flags shared by results and export.
type filterFlags struct {
	runs     []string
	statuses []string
	paths    []string
	testType string
	limit    int
	after    uint
	before   uint
}

func (f *filterFlags) register(cmd *cobra.Command, paging bool) {
	cmd.Flags().StringSliceVar(&f.runs, "run", nil,
		"run ids to compare, defaults to every enabled run")
	cmd.Flags().StringArrayVar(&f.statuses, "status", nil,
		`status filter "<run>:<is|is_not>:<STATUS,...>", repeat to AND`)
	cmd.Flags().StringArrayVar(&f.paths, "path", nil,
		`path filter "<include_start|include_end|exclude_start|exclude_end>=<path>"`)
	cmd.Flags().StringVar(&f.testType, "type", string(store.TestTypeBoth),
		"row level: both, test or subtest")
	cmd.Flags().IntVar(&f.limit, "limit", 0,
		"tests per page, overrides query.page_limit")

	if paging {
		cmd.Flags().UintVar(&f.after, "after", 0, "show tests after this test id")
		cmd.Flags().UintVar(&f.before, "before", 0, "show tests before this test id")
	}
}

// request builds the query request the flags describe.
func (f *filterFlags) request() (query.Request, error) {
	req := query.Request{
		MinTestID: f.after,
		MaxTestID: f.before,
		Limit:     f.limit,
	}

	runs, err := parseIDs(f.runs)
	if err != nil {
		return req, err
	}

	req.Runs = runs
	req.Filter.TestType.Type = store.TestType(f.testType)

	for _, raw := range f.statuses {
		sf, err := parseStatusFilter(raw)
		if err != nil {
			return req, err
		}

		req.Filter.Status = append(req.Filter.Status, sf)
	}

	for _, raw := range f.paths {
		pf, err := parsePathFilter(raw)
		if err != nil {
			return req, err
		}

		req.Filter.Path = append(req.Filter.Path, pf)
	}

	return req, nil
}

// parseStatusFilter parses "<run>:<equality>:<STATUS,...>". The run name
// may itself contain colons.
func parseStatusFilter(raw string) (query.StatusFilter, error) {
	rest, statuses, ok := cutLast(raw, ":")
	if !ok {
		return query.StatusFilter{}, fmt.Errorf("invalid status filter %q", raw)
	}

	run, equality, ok := cutLast(rest, ":")
	if !ok || run == "" || statuses == "" {
		return query.StatusFilter{}, fmt.Errorf("invalid status filter %q", raw)
	}

	sf := query.StatusFilter{
		Run:      run,
		Equality: query.Equality(equality),
	}

	for _, s := range strings.Split(statuses, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sf.Status = append(sf.Status, strings.ToUpper(s))
		}
	}

	return sf, nil
}

// parsePathFilter parses "<choice>=<path>".
func parsePathFilter(raw string) (query.PathFilter, error) {
	choice, path, ok := strings.Cut(raw, "=")
	if !ok || choice == "" {
		return query.PathFilter{}, fmt.Errorf("invalid path filter %q", raw)
	}

	return query.PathFilter{Choice: query.PathChoice(choice), Path: path}, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}

	return s[:i], s[i+len(sep):], true
}

var (
	resultFilters filterFlags
	resultsJSON   bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show one page of results compared across runs",
	Args:  cobra.NoArgs,
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultFilters.register(resultsCmd, true)
	resultsCmd.Flags().BoolVar(&resultsJSON, "json", false, "print the page as JSON")
}

func runResults(cmd *cobra.Command, _ []string) error {
	req, err := resultFilters.request()
	if err != nil {
		return err
	}

	return withModel(cmd, func(ctx context.Context, _ *config.Config, m *service.Model) error {
		page, err := m.SelectFilteredResults(ctx, req)
		if err != nil {
			return err
		}

		if resultsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			return enc.Encode(page)
		}

		return printPage(page)
	})
}

func printPage(page *query.Page) error {
	tw := table.NewWriter()
	tw.SetAllowedRowLength(resultsRowLength)

	header := table.Row{"Test", "Subtest"}
	for _, run := range page.Runs {
		header = append(header, run.Name)
	}

	tw.AppendHeader(header)

	for _, row := range page.Rows {
		cells := table.Row{row.Test, row.Subtest}

		for _, res := range row.Results {
			cell := res.Status
			if res.Expected != "" && res.Expected != res.Status {
				cell += " (expected " + res.Expected + ")"
			}

			if res.HasComment {
				cell += " *"
			}

			cells = append(cells, cell)
		}

		tw.AppendRow(cells)
	}

	fmt.Println(tw.Render())

	if page.Tests > 0 {
		fmt.Printf("\n%d tests (ids %d-%d). Previous: --before %d  Next: --after %d\n",
			page.Tests, page.FirstTestID, page.LastTestID, page.FirstTestID, page.LastTestID)
	}

	return nil
}
