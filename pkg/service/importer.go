package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethpandaops/wptview/pkg/ingest"
	"github.com/ethpandaops/wptview/pkg/logparser"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxNameAttempts bounds retries when concurrent imports race for a name.
const maxNameAttempts = 5

// ImportSource is one log to import. Exactly one of Path and URL is set.
type ImportSource struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
	// Name is the run name. Derived from the path or URL when empty.
	Name string `json:"name,omitempty"`
}

func (s ImportSource) location() string {
	if s.URL != "" {
		return s.URL
	}

	return s.Path
}

// ImportOptions tune a batch import.
type ImportOptions struct {
	// DisablePrevious disables every run that existed before the batch
	// once at least one log was imported.
	DisablePrevious bool `json:"disable_previous"`
	// Concurrency bounds the logs imported at once. Defaults to 1.
	Concurrency int `json:"concurrency,omitempty"`
}

// ImportResult is the outcome of one source.
type ImportResult struct {
	Source ImportSource   `json:"source"`
	Report *ingest.Report `json:"report,omitempty"`
	// Skipped is set for URLs that were already imported.
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`

	err error
}

// Err returns the import failure, if any.
func (r *ImportResult) Err() error {
	return r.err
}

// ImportAll imports every source. URLs already stored, or repeated in the
// batch, are skipped. A failing source does not stop the others.
func (m *Model) ImportAll(
	ctx context.Context,
	log logrus.FieldLogger,
	sources []ImportSource,
	opts ImportOptions,
) ([]ImportResult, error) {
	log = log.WithField("component", "importer")

	previous, err := m.GetRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	known, err := m.GetRunURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing run urls: %w", err)
	}

	seen := make(map[string]struct{}, len(known)+len(sources))
	for _, u := range known {
		seen[u] = struct{}{}
	}

	results := make([]ImportResult, len(sources))

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	// Names are picked and claimed one at a time.
	var nameMu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, src := range sources {
		results[i].Source = src

		if src.URL != "" {
			if _, ok := seen[src.URL]; ok {
				results[i].Skipped = true

				log.WithField("url", src.URL).Info("Skipping already imported url")

				continue
			}

			seen[src.URL] = struct{}{}
		}

		g.Go(func() error {
			report, err := m.importOne(gCtx, src, &nameMu)
			if err != nil {
				log.WithError(err).
					WithField("source", src.location()).
					Warn("Failed to import log")

				results[i].err = err
				results[i].Error = err.Error()

				return nil //nolint:nilerr // log and continue
			}

			log.WithFields(logrus.Fields{
				"source":     src.location(),
				"run":        report.Run.Name,
				"duplicates": report.DuplicateCount(),
			}).Info("Imported log")

			results[i].Report = report

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("importing logs: %w", err)
	}

	if opts.DisablePrevious && len(previous) > 0 && anyImported(results) {
		ids := make([]uint, 0, len(previous))
		for _, run := range previous {
			ids = append(ids, run.ID)
		}

		if err := m.SwitchRuns(ctx, ids, false); err != nil {
			return results, fmt.Errorf("disabling previous runs: %w", err)
		}
	}

	return results, nil
}

// importOne reads a single source and ingests it under a free name.
func (m *Model) importOne(
	ctx context.Context, src ImportSource, nameMu *sync.Mutex,
) (*ingest.Report, error) {
	var (
		records []logparser.Record
		source  ingest.Source
		err     error
	)

	switch {
	case src.URL != "":
		records, err = m.ReadURL(ctx, src.URL)
		source = ingest.URLSource(src.URL)
	case src.Path != "":
		records, err = m.Read(ctx, src.Path)
		source = ingest.FileSource()
	default:
		return nil, fmt.Errorf("import source needs a path or url")
	}

	if err != nil {
		return nil, err
	}

	name := src.Name
	if name == "" {
		name = ingest.DefaultRunName(src.location())
	}

	return m.ImportRecords(ctx, records, name, source, nameMu)
}

// ImportRecords ingests crunched records under name, or under the first
// free "name (n)" when it is taken. nameMu serializes name selection
// between concurrent imports and may be nil.
func (m *Model) ImportRecords(
	ctx context.Context,
	records []logparser.Record,
	name string,
	source ingest.Source,
	nameMu *sync.Mutex,
) (*ingest.Report, error) {
	if nameMu == nil {
		nameMu = &sync.Mutex{}
	}

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		report, err := m.claimAndIngest(ctx, records, name, source, nameMu)

		var taken *ingest.RunNameTakenError
		if errors.As(err, &taken) {
			continue
		}

		return report, err
	}

	return nil, fmt.Errorf("no free run name for %q after %d attempts", name, maxNameAttempts)
}

func (m *Model) claimAndIngest(
	ctx context.Context,
	records []logparser.Record,
	name string,
	source ingest.Source,
	nameMu *sync.Mutex,
) (*ingest.Report, error) {
	nameMu.Lock()

	runs, err := m.GetRuns(ctx)
	if err != nil {
		nameMu.Unlock()

		return nil, fmt.Errorf("listing runs: %w", err)
	}

	taken := make([]string, 0, len(runs))
	for _, run := range runs {
		taken = append(taken, run.Name)
	}

	st, err := m.InsertTestRuns(ctx, records, ingest.UniqueRunName(name, taken), source, ingest.Options{})

	nameMu.Unlock()

	if err != nil {
		return nil, err
	}

	return m.completeIngest(ctx, st)
}

func anyImported(results []ImportResult) bool {
	for _, r := range results {
		if r.Report != nil {
			return true
		}
	}

	return false
}
