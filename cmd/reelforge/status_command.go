package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline health",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			health, err := rt.store.Health(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{
				{"database", rt.store.Path()},
				{"total items", fmt.Sprintf("%d", health.Total)},
				{"waiting", fmt.Sprintf("%d", health.Waiting)},
				{"pending external", fmt.Sprintf("%d", health.Pending)},
				{"failed", fmt.Sprintf("%d", health.Failed)},
				{"archived", fmt.Sprintf("%d", health.Archived)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))
			return nil
		},
	}
}
