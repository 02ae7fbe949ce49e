package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelforge/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}
	cmd.AddCommand(
		newQueueListCommand(ctx),
		newQueueRetryCommand(ctx),
		newQueueRegenerateCommand(ctx),
		newQueueStatsCommand(ctx),
	)
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var stageFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			var stages []store.Stage
			if stageFilter != "" {
				stage, ok := store.ParseStage(stageFilter)
				if !ok {
					return fmt.Errorf("unknown stage %q", stageFilter)
				}
				stages = append(stages, stage)
			}
			items, err := rt.store.List(cmd.Context(), stages...)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					item.ID,
					item.ChannelID,
					string(item.Stage),
					truncate(item.Idea, 48),
					truncate(item.ErrorMessage, 40),
					item.UpdatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Channel", "Stage", "Idea", "Error", "Updated"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&stageFilter, "stage", "", "only show items at this stage")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <item-id>",
		Short: "Reset a failed item back one stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			reset, err := rt.store.RetryFailed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !reset {
				return fmt.Errorf("item %s is not in a failed stage", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "item %s queued for retry\n", args[0])
			return nil
		},
	}
}

func newQueueRegenerateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <item-id>",
		Short: "Re-run voice and video for an item, keeping its script",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.store.Regenerate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "item %s reset to content_ready\n", args[0])
			return nil
		},
		Args: cobra.ExactArgs(1),
	}
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show item counts per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := rt.store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(stats))
			total := 0
			for _, stage := range store.AllStages() {
				count, ok := stats[stage]
				if !ok || count == 0 {
					continue
				}
				rows = append(rows, []string{string(stage), fmt.Sprintf("%d", count)})
				total += count
			}
			if total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
				return nil
			}
			rows = append(rows, []string{"total", fmt.Sprintf("%d", total)})
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Stage", "Items"}, rows))
			return nil
		},
	}
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
