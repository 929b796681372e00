package main

import (
	"context"

	"github.com/ethpandaops/wptview/pkg/api"
	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/ethpandaops/wptview/pkg/service"
	"github.com/spf13/cobra"
)

var listenAddr string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the wptview HTTP API for browsing, importing and annotating results.`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVar(&listenAddr, "listen", "",
		"listen address, overrides api.server.listen")
}

func runAPI(cmd *cobra.Command, args []string) error {
	return withModel(cmd, func(ctx context.Context, cfg *config.Config, m *service.Model) error {
		if listenAddr != "" {
			cfg.API.Server.Listen = listenAddr
		}

		srv := api.NewServer(log, cfg, m)

		if err := srv.Start(ctx); err != nil {
			return err
		}

		// Wait for shutdown signal.
		<-ctx.Done()
		log.Info("Shutting down API server")

		return srv.Stop()
	})
}
