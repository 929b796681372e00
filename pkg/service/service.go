// Package service runs the storage and ingestion engines behind the
// worker channel and exposes them to callers through Model.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/ethpandaops/wptview/pkg/ingest"
	"github.com/ethpandaops/wptview/pkg/logparser"
	"github.com/ethpandaops/wptview/pkg/query"
	"github.com/ethpandaops/wptview/pkg/store"
	"github.com/ethpandaops/wptview/pkg/worker"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// channelBuffer is the capacity of each direction of the worker channel.
const channelBuffer = 64

// Service exposes the worker lifecycle.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	// Model returns the caller side of the worker channel. Only valid
	// after Start.
	Model() *Model
}

// Compile-time interface check.
var _ Service = (*service)(nil)

type service struct {
	log   logrus.FieldLogger
	cfg   *config.Config
	store store.Store
	model *Model

	cancel context.CancelFunc
	group  *errgroup.Group
	once   sync.Once
}

// New creates a new Service.
func New(log logrus.FieldLogger, cfg *config.Config) Service {
	return &service{
		log: log.WithField("component", "service"),
		cfg: cfg,
	}
}

// Start opens the store and launches the worker and its client.
func (s *service) Start(ctx context.Context) error {
	s.store = store.NewStore(s.log, &s.cfg.Database)

	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	reader, err := logparser.NewReader(s.log, &s.cfg.Fetch)
	if err != nil {
		_ = s.store.Stop()

		return fmt.Errorf("creating log reader: %w", err)
	}

	ingestEngine, err := ingest.NewEngine(s.log, s.store, s.cfg.Import.TestCacheSize)
	if err != nil {
		_ = s.store.Stop()

		return fmt.Errorf("creating ingest engine: %w", err)
	}

	h := &handlers{
		reader: reader,
		ingest: ingestEngine,
		query:  query.NewEngine(s.log, s.store, s.cfg.Query.PageLimit),
		store:  s.store,
	}

	requests, responses := worker.Pipe(channelBuffer)

	w := worker.NewWorker(s.log, requests, responses)
	h.register(w)

	client := worker.NewClient(s.log, requests, responses)
	s.model = NewModel(client)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.group, runCtx = errgroup.WithContext(runCtx)

	s.group.Go(func() error {
		return w.Serve(runCtx)
	})

	s.group.Go(func() error {
		return client.Run(runCtx)
	})

	s.log.WithField("driver", s.cfg.Database.Driver).Info("Service started")

	return nil
}

// Stop shuts down the worker and closes the store. It returns the error
// that stopped the worker channel early, if any.
func (s *service) Stop() error {
	var runErr error

	s.once.Do(func() {
		if s.cancel == nil {
			return
		}

		s.cancel()

		if err := s.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	})

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	return runErr
}

// Model returns the typed client of the worker.
func (s *service) Model() *Model {
	return s.model
}
