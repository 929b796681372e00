package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/ethpandaops/wptview/pkg/export"
	"github.com/ethpandaops/wptview/pkg/service"
	"github.com/ethpandaops/wptview/pkg/upload"
	"github.com/spf13/cobra"
)

var (
	exportFilters filterFlags
	exportOutput  string
	exportUpload  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export filtered results of the compared runs as JSON",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportFilters.register(exportCmd, false)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"output file, defaults to stdout")
	exportCmd.Flags().StringVar(&exportUpload, "upload", "",
		"also upload the document to this s3://bucket/key")
}

func runExport(cmd *cobra.Command, _ []string) error {
	req, err := exportFilters.request()
	if err != nil {
		return err
	}

	return withModel(cmd, func(ctx context.Context, cfg *config.Config, m *service.Model) error {
		var uploader upload.Uploader

		if exportUpload != "" {
			u, err := upload.NewS3Uploader(log, &cfg.Fetch.S3)
			if err != nil {
				return err
			}

			uploader = u

			// Fail before walking every page.
			if err := uploader.Preflight(ctx, exportUpload); err != nil {
				return err
			}
		}

		doc, err := export.Build(ctx, m, req)
		if err != nil {
			return err
		}

		if uploader != nil {
			var buf bytes.Buffer
			if err := doc.Write(&buf); err != nil {
				return err
			}

			if err := uploader.Upload(ctx, exportUpload, bytes.NewReader(buf.Bytes())); err != nil {
				return err
			}
		}

		var out io.Writer = os.Stdout

		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("creating %s: %w", exportOutput, err)
			}
			defer f.Close()

			out = f
		}

		if err := doc.Write(out); err != nil {
			return err
		}

		log.WithField("tests", len(doc.Results)).
			WithField("runs", len(doc.Runs)).
			Info("Exported results")

		return nil
	})
}
