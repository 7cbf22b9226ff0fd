package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/recurring"
	"github.com/rentbook/ledger/types"
)

func parseDate(flag, v string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return d, nil
}

func newSubjectsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "Manage billed subjects (leases)",
	}

	var (
		name       string
		receivable string
		status     string
		start      string
		end        string
	)
	set := &cobra.Command{
		Use:   "set <subject-id>",
		Short: "Create or update a billed subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &recurring.Subject{
				ID:                args[0],
				Name:              name,
				ReceivableAccount: receivable,
				Status:            recurring.SubjectStatus(status),
			}
			var err error
			if s.StartDate, err = parseDate("start", start); err != nil {
				return err
			}
			if end != "" {
				endDate, err := parseDate("end", end)
				if err != nil {
					return err
				}
				s.EndDate = &endDate
			}
			return e.run(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				if err := l.UpsertSubject(ctx, s); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "subject %s %s\n", s.ID, s.Status)
				return nil
			})
		},
	}
	set.Flags().StringVar(&name, "name", "", "display name")
	set.Flags().StringVar(&receivable, "receivable", "", "receivable account code (required)")
	set.Flags().StringVar(&status, "status", string(recurring.SubjectActive), "pending, active or terminated")
	set.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (required)")
	set.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD")
	_ = set.MarkFlagRequired("receivable")
	_ = set.MarkFlagRequired("start")

	cmd.AddCommand(set)
	return cmd
}

func newChargesCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charges",
		Short: "Manage recurring charge definitions",
	}

	var (
		subject     string
		description string
		amount      string
		income      string
		dueDay      int
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Define a monthly charge for a subject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := types.ParseMoney(amount, e.cfg.Currency)
			if err != nil {
				return err
			}
			d := &recurring.Definition{
				SubjectID:     subject,
				Description:   description,
				Amount:        m,
				IncomeAccount: income,
				DueDay:        dueDay,
				Active:        true,
			}
			return e.run(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				if err := l.CreateDefinition(ctx, d); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), d.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&subject, "subject", "", "billed subject (required)")
	add.Flags().StringVar(&description, "description", "Rent", "charge description")
	add.Flags().StringVar(&amount, "amount", "", "amount in major units (required)")
	add.Flags().StringVar(&income, "income", "", "income account code (required)")
	add.Flags().IntVar(&dueDay, "due-day", 1, "day of month the charge is due")
	for _, f := range []string{"subject", "amount", "income"} {
		_ = add.MarkFlagRequired(f)
	}

	var listSubject string
	list := &cobra.Command{
		Use:   "list",
		Short: "List charge definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				defs, err := l.ListDefinitions(ctx, recurring.ListOpts{SubjectID: listSubject})
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSUBJECT\tAMOUNT\tDUE\tACTIVE\tLAST CHARGED")
				for _, d := range defs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%s\n", d.ID, d.SubjectID, d.Amount, d.DueDay, d.Active, d.LastChargedPeriod)
				}
				return w.Flush()
			})
		},
	}
	list.Flags().StringVar(&listSubject, "subject", "", "only this subject")

	cmd.AddCommand(add, list)
	return cmd
}

func newBillCommand(e *env) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "bill",
		Short: "Run the monthly billing cycle",
		Long: `Post every due recurring charge for the period containing --as-of.
Running it again for the same period posts nothing new.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			at := time.Now()
			if asOf != "" {
				d, err := parseDate("as-of", asOf)
				if err != nil {
					return err
				}
				at = d
			}
			return e.run(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				report, err := l.RunBillingCycle(ctx, at)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
				return report.Err()
			})
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "billing date YYYY-MM-DD, default today")

	return cmd
}

var errOutOfBalance = errors.New("journal is out of balance")

func newCheckCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that total debits equal total credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				r, err := l.CheckIntegrity(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "entries %d  debits %s  credits %s  discrepancy %s\n",
					r.EntryCount, r.TotalDebits, r.TotalCredits, r.Discrepancy)
				if !r.Balanced {
					return errOutOfBalance
				}
				return nil
			})
		},
	}
}
