package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/account"
)

func newAccountsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage the chart of accounts",
	}
	cmd.AddCommand(newAccountsSeedCommand(e), newAccountsListCommand(e))
	return cmd
}

func newAccountsSeedCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the accounts listed in the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chart, err := e.cfg.ChartOfAccounts()
			if err != nil {
				return err
			}
			if len(chart) == 0 {
				return errors.New("no accounts configured")
			}
			return e.run(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				created, err := l.SeedAccounts(ctx, chart)
				fmt.Fprintf(cmd.OutOrStdout(), "created %d of %d accounts\n", created, len(chart))
				return err
			})
		},
	}
}

func newAccountsListCommand(e *env) *cobra.Command {
	var (
		category   string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts with their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := account.ListOpts{ActiveOnly: activeOnly}
			if category != "" {
				c, err := account.ParseCategory(category)
				if err != nil {
					return err
				}
				opts.Category = c
			}
			return e.run(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				lines, err := l.TrialBalance(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "CODE\tNAME\tCATEGORY\tACTIVE\tBALANCE")
				for _, line := range lines {
					if !opts.Match(line.Account) {
						continue
					}
					a := line.Account
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", a.Code, a.Name, a.Category, a.Active, line.Balance)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only list this category")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only list active accounts")

	return cmd
}
