// Package api serves runs, results, comments and exports over HTTP.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/ethpandaops/wptview/pkg/service"
	"github.com/sirupsen/logrus"
)

const (
	shutdownTimeout = 10 * time.Second
	// maxUploadSize bounds raw log uploads.
	maxUploadSize = 512 << 20
)

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	model      *service.Model
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a new API server over a started service model.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	model *service.Model,
) Server {
	return &server{
		log:   log.WithField("component", "api"),
		cfg:   cfg,
		model: model,
		done:  make(chan struct{}),
	}
}

// Start binds the listener and serves requests in the background.
func (s *server) Start(_ context.Context) error {
	listen := s.cfg.API.Server.Listen

	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", listen).Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	s.log.Info("API server stopped")

	return nil
}
