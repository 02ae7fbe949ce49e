package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// One-shot worker commands. A scheduler (cron, systemd timer) can invoke
// these instead of running the resident daemon.

func newAdvanceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "advance {content|voice|video}",
		Short:     "Run one stage advance pass",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"content", "voice", "video"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			eng := rt.engine()
			var processed int
			switch args[0] {
			case "content":
				processed, err = eng.AdvanceContent(cmd.Context())
			case "voice":
				processed, err = eng.AdvanceVoice(cmd.Context())
			case "video":
				processed, err = eng.AdvanceVideo(cmd.Context())
			default:
				return fmt.Errorf("unknown stage %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "advanced %d item(s)\n", processed)
			return nil
		},
	}
	return cmd
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "reconcile {voice|video}",
		Short:     "Run one reconciliation sweep over pending external tasks",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"voice", "video"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			rec := rt.reconciler()
			var resolved int
			switch args[0] {
			case "voice":
				resolved, err = rec.ReconcileVoice(cmd.Context())
			case "video":
				resolved, err = rec.ReconcileVideo(cmd.Context())
			default:
				return fmt.Errorf("unknown task kind %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d task(s)\n", resolved)
			return nil
		},
	}
}

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Relocate finished videos to durable storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			archiver, err := rt.archiver(cmd.Context())
			if err != nil {
				return err
			}
			archived, err := archiver.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived %d item(s)\n", archived)
			return nil
		},
	}
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Pull new ideas from configured subreddits",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			ingester, err := rt.ingester()
			if err != nil {
				return err
			}
			added, err := ingester.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d idea(s)\n", added)
			return nil
		},
	}
}
