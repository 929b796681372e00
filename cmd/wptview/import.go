package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/ethpandaops/wptview/pkg/service"
	"github.com/ethpandaops/wptview/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	importNames           []string
	importDisablePrevious bool
	importConcurrency     int
	importShowDuplicates  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file|url>...",
	Short: "Import wptreport logs as runs",
	Long: `Import one or more wptreport logs. Arguments starting with http://,
https:// or s3:// are fetched, anything else is read from disk. URLs that
were imported before are skipped. An s3:// URL ending with a slash imports
every object under that prefix. Run names default to the file name and
get a " (n)" suffix when taken.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringSliceVar(&importNames, "name", nil,
		"run name per argument, in order (comma-separated or repeated flag)")
	importCmd.Flags().BoolVar(&importDisablePrevious, "disable-previous", false,
		"disable every previously loaded run after importing")
	importCmd.Flags().IntVar(&importConcurrency, "concurrency", 0,
		"logs imported at once, overrides import.concurrency")
	importCmd.Flags().BoolVar(&importShowDuplicates, "show-duplicates", false,
		"print every duplicate outcome that was not stored")
}

func isRemote(arg string) bool {
	for _, prefix := range []string{"http://", "https://", "s3://"} {
		if strings.HasPrefix(arg, prefix) {
			return true
		}
	}

	return false
}

// importSources maps arguments and names onto import sources.
func importSources(args, names []string) ([]service.ImportSource, error) {
	if len(names) > 0 && len(names) != len(args) {
		return nil, fmt.Errorf("got %d names for %d logs", len(names), len(args))
	}

	sources := make([]service.ImportSource, 0, len(args))

	for i, arg := range args {
		src := service.ImportSource{Path: arg}
		if isRemote(arg) {
			src = service.ImportSource{URL: arg}
		}

		if len(names) > 0 {
			src.Name = names[i]
		}

		sources = append(sources, src)
	}

	return sources, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	sources, err := importSources(args, importNames)
	if err != nil {
		return err
	}

	return withModel(cmd, func(ctx context.Context, cfg *config.Config, m *service.Model) error {
		sources, err := expandS3Prefixes(ctx, cfg, sources)
		if err != nil {
			return err
		}

		concurrency := cfg.Import.Concurrency
		if importConcurrency > 0 {
			concurrency = importConcurrency
		}

		results, err := m.ImportAll(ctx, log, sources, service.ImportOptions{
			DisablePrevious: importDisablePrevious,
			Concurrency:     concurrency,
		})
		if err != nil {
			return err
		}

		failed := 0

		for _, res := range results {
			switch {
			case res.Skipped:
				fmt.Printf("skipped  %s (already imported)\n", res.Source.URL)
			case res.Err() != nil:
				failed++

				fmt.Printf("failed   %s: %v\n", sourceLabel(res.Source), res.Err())
			default:
				printReport(res)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d logs failed to import", failed, len(results))
		}

		return nil
	})
}

// expandS3Prefixes replaces every s3:// prefix source with the objects
// stored under it.
func expandS3Prefixes(
	ctx context.Context, cfg *config.Config, sources []service.ImportSource,
) ([]service.ImportSource, error) {
	expanded := make([]service.ImportSource, 0, len(sources))

	var reader *upload.S3Reader

	for _, src := range sources {
		if src.URL == "" || !upload.IsS3Prefix(src.URL) {
			expanded = append(expanded, src)

			continue
		}

		if !cfg.Fetch.S3.Enabled {
			return nil, fmt.Errorf("cannot list %s: s3 is disabled (set fetch.s3.enabled)", src.URL)
		}

		if src.Name != "" {
			return nil, fmt.Errorf("--name cannot be used with the prefix %s", src.URL)
		}

		if reader == nil {
			reader = upload.NewS3Reader(log, &cfg.Fetch.S3)
		}

		urls, err := reader.ExpandPrefix(ctx, src.URL)
		if err != nil {
			return nil, err
		}

		for _, u := range urls {
			expanded = append(expanded, service.ImportSource{URL: u})
		}
	}

	return expanded, nil
}

func sourceLabel(src service.ImportSource) string {
	if src.URL != "" {
		return src.URL
	}

	return src.Path
}

func printReport(res service.ImportResult) {
	report := res.Report

	fmt.Printf("imported %s as %q (run %d, %d duplicates)\n",
		sourceLabel(res.Source), report.Run.Name, report.Run.ID, report.DuplicateCount())

	for _, msg := range report.Logs {
		log.WithFields(logrus.Fields{
			"run":    report.Run.Name,
			"level":  msg.Level,
			"source": msg.Source,
		}).Warn(msg.Message)
	}

	if !importShowDuplicates {
		return
	}

	for _, dup := range report.Duplicates {
		name := dup.Test
		if dup.Subtest != "" {
			name += " | " + dup.Subtest
		}

		fmt.Printf("  duplicate %s: %s (expected %s)\n", name, dup.Status, dup.Expected)
	}
}
