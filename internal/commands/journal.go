package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/types"
)

func newPostCommand(e *env) *cobra.Command {
	var (
		key       string
		memo      string
		subject   string
		effective string
		entries   []string
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a balanced group of entries",
		Long: `Post a balanced group of entries. Each --entry is
ACCOUNT:SIDE:AMOUNT[:SUBJECT], for example 1200:debit:500.00:L1.`,
		Example: `  ledgerctl post --key L1-rent-2025-01 --subject L1 \
    --entry 1200:debit:500.00 --entry 4000:credit:500.00`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var date time.Time
			if effective != "" {
				d, err := time.Parse(time.DateOnly, effective)
				if err != nil {
					return fmt.Errorf("--effective: %w", err)
				}
				date = d
			}

			req := &ledger.PostRequest{IdempotencyKey: key, Memo: memo}
			for _, raw := range entries {
				spec, err := parseEntry(raw, e.cfg.Currency)
				if err != nil {
					return err
				}
				if spec.SubjectID == "" {
					spec.SubjectID = subject
				}
				spec.EffectiveDate = date
				req.Entries = append(req.Entries, spec)
			}

			return e.run(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				res, err := l.Post(ctx, req)
				if err != nil {
					return err
				}
				verb := "posted"
				if res.Replayed {
					verb = "replayed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, res.Group.ID)
				for _, en := range res.Group.Entries {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %s %-6s %s\n", en.ID, en.AccountCode, en.Side, en.Amount)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "idempotency key")
	cmd.Flags().StringVar(&memo, "memo", "", "memo stored on the posting group")
	cmd.Flags().StringVar(&subject, "subject", "", "default subject for entries that name none")
	cmd.Flags().StringVar(&effective, "effective", "", "effective date (YYYY-MM-DD), default today")
	cmd.Flags().StringArrayVarP(&entries, "entry", "e", nil, "entry as ACCOUNT:SIDE:AMOUNT[:SUBJECT] (repeatable)")
	_ = cmd.MarkFlagRequired("entry")

	return cmd
}

// parseEntry reads ACCOUNT:SIDE:AMOUNT[:SUBJECT].
func parseEntry(raw, currency string) (journal.EntrySpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return journal.EntrySpec{}, fmt.Errorf("entry %q: want ACCOUNT:SIDE:AMOUNT[:SUBJECT]", raw)
	}
	side, err := types.ParseSide(parts[1])
	if err != nil {
		return journal.EntrySpec{}, fmt.Errorf("entry %q: %w", raw, err)
	}
	amount, err := types.ParseMoney(parts[2], currency)
	if err != nil {
		return journal.EntrySpec{}, fmt.Errorf("entry %q: %w", raw, err)
	}
	spec := journal.EntrySpec{AccountCode: parts[0], Side: side, Amount: amount}
	if len(parts) == 4 {
		spec.SubjectID = parts[3]
	}
	return spec, nil
}

func newVoidCommand(e *env) *cobra.Command {
	var (
		reason  string
		reverse bool
	)

	cmd := &cobra.Command{
		Use:   "void <entry-id>",
		Short: "Void the posting group that contains an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := id.ParseEntryID(args[0])
			if err != nil {
				return err
			}
			return e.run(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				res, err := l.Void(ctx, entryID, reason, reverse)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "voided %d entries\n", len(res.Voided))
				if res.Reversal != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "reversal %s\n", res.Reversal.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the entries are voided (required)")
	_ = cmd.MarkFlagRequired("reason")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "also write a mirror-image reversal group")

	return cmd
}

func newBalanceCommand(e *env) *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Print the balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				b, err := l.Balance(ctx, args[0], subject)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), b)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "restrict to one subject (lease, tenant)")

	return cmd
}
