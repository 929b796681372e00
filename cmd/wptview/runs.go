package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/ethpandaops/wptview/pkg/service"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var forceDelete bool

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage imported runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsEnableCmd = &cobra.Command{
	Use:   "enable <id>...",
	Short: "Include runs in comparisons",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return switchRuns(cmd, args, true)
	},
}

var runsDisableCmd = &cobra.Command{
	Use:   "disable <id>...",
	Short: "Exclude runs from comparisons",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return switchRuns(cmd, args, false)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a run with its results and comments",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsEnableCmd, runsDisableCmd, runsDeleteCmd)
	runsDeleteCmd.Flags().BoolVarP(&forceDelete, "force", "f", false, "Skip confirmation prompt")
}

func parseIDs(args []string) ([]uint, error) {
	ids := make([]uint, 0, len(args))

	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid run id %q: %w", part, err)
			}

			ids = append(ids, uint(id))
		}
	}

	return ids, nil
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	return withModel(cmd, func(ctx context.Context, _ *config.Config, m *service.Model) error {
		runs, err := m.GetRuns(ctx)
		if err != nil {
			return err
		}

		tw := table.NewWriter()
		tw.AppendHeader(table.Row{"ID", "Name", "Enabled", "Source", "Created"})

		for _, run := range runs {
			source := run.SourceType
			if run.SourceURL != nil {
				source = *run.SourceURL
			}

			tw.AppendRow(table.Row{
				run.ID, run.Name, run.Enabled, source,
				run.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}

		fmt.Println(tw.Render())

		return nil
	})
}

func switchRuns(cmd *cobra.Command, args []string, enabled bool) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	return withModel(cmd, func(ctx context.Context, _ *config.Config, m *service.Model) error {
		if err := m.SwitchRuns(ctx, ids, enabled); err != nil {
			return err
		}

		log.WithField("runs", ids).WithField("enabled", enabled).Info("Updated runs")

		return nil
	})
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	if len(ids) != 1 {
		return fmt.Errorf("delete takes a single run id")
	}

	id := ids[0]

	// Prompt for confirmation if not forced.
	if !forceDelete {
		fmt.Printf("Delete run %d with all its results and comments? [y/N] ", id)

		reader := bufio.NewReader(os.Stdin)

		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading confirmation: %w", err)
		}

		if answer := strings.ToLower(strings.TrimSpace(response)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted")

			return nil
		}
	}

	return withModel(cmd, func(ctx context.Context, _ *config.Config, m *service.Model) error {
		return m.RemoveRun(ctx, id)
	})
}
