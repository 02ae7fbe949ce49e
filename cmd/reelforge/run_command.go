package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reelforge/internal/daemon"
	"reelforge/internal/ingest"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline daemon",
		Long:  "Runs the stage advancer, reconcilers, archiver, and optional idea ingestion as a single locked background process until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(true)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			archiver, err := rt.archiver(runCtx)
			if err != nil {
				_ = rt.Close()
				return err
			}
			var ingester *ingest.Ingester
			if rt.cfg.Ingest.Enabled {
				ingester, err = rt.ingester()
				if err != nil {
					_ = rt.Close()
					return err
				}
			}

			d, err := daemon.New(rt.cfg, rt.store, rt.logger, rt.engine(), rt.reconciler(), archiver, ingester)
			if err != nil {
				_ = rt.Close()
				return err
			}
			defer d.Close()

			if err := d.Start(runCtx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reelforge daemon running; press Ctrl-C to stop")
			<-runCtx.Done()
			d.Stop()
			return nil
		},
	}
}
