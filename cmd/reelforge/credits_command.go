package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCreditsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and set owner credit balances",
	}

	show := &cobra.Command{
		Use:   "show <owner-id>",
		Short: "Show an owner's credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			balance, err := rt.store.CreditBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", balance)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <owner-id> <balance>",
		Short: "Set an owner's credit balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			balance, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid balance %q", args[1])
			}
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.store.SetCreditBalance(cmd.Context(), args[0], balance); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "balance for %s set to %d\n", args[0], balance)
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}
