package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/ethpandaops/wptview/pkg/service"
	"github.com/spf13/cobra"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Annotate individual results",
}

var commentGetCmd = &cobra.Command{
	Use:   "get <result-id>",
	Short: "Print the comment of a result",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommentGet,
}

var commentSetCmd = &cobra.Command{
	Use:   "set <result-id> <text>...",
	Short: "Create or replace the comment of a result",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCommentSet,
}

var commentDeleteCmd = &cobra.Command{
	Use:   "delete <result-id>",
	Short: "Remove the comment of a result",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommentDelete,
}

func init() {
	rootCmd.AddCommand(commentCmd)
	commentCmd.AddCommand(commentGetCmd, commentSetCmd, commentDeleteCmd)
}

func parseResultID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid result id %q: %w", arg, err)
	}

	return uint(id), nil
}

func runCommentGet(cmd *cobra.Command, args []string) error {
	id, err := parseResultID(args[0])
	if err != nil {
		return err
	}

	return withModel(cmd, func(ctx context.Context, _ *config.Config, m *service.Model) error {
		comment, err := m.SelectComment(ctx, id)
		if err != nil {
			return err
		}

		if comment == nil {
			return fmt.Errorf("result %d has no comment", id)
		}

		fmt.Println(comment.Text)

		return nil
	})
}

func runCommentSet(cmd *cobra.Command, args []string) error {
	id, err := parseResultID(args[0])
	if err != nil {
		return err
	}

	text := strings.Join(args[1:], " ")

	return withModel(cmd, func(ctx context.Context, _ *config.Config, m *service.Model) error {
		existing, err := m.SelectComment(ctx, id)
		if err != nil {
			return err
		}

		if existing != nil {
			return m.UpdateComment(ctx, id, text)
		}

		return m.InsertComment(ctx, id, text)
	})
}

func runCommentDelete(cmd *cobra.Command, args []string) error {
	id, err := parseResultID(args[0])
	if err != nil {
		return err
	}

	return withModel(cmd, func(ctx context.Context, _ *config.Config, m *service.Model) error {
		return m.DeleteComment(ctx, id)
	})
}
