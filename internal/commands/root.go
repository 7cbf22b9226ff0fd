// Package commands implements the ledgerctl command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/config"
	"github.com/rentbook/ledger/plugin"
)

// env holds what every subcommand needs once flags are parsed.
type env struct {
	configPath string
	actor      string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(version string) *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:     "ledgerctl",
		Short:   "Double-entry ledger for property management",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(e.configPath)
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = cfg.Logger(cmd.ErrOrStderr())
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&e.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "path to ledger.yaml")
	rootCmd.PersistentFlags().StringVar(&e.actor, "actor", "ledgerctl", "actor recorded on postings and voids")

	rootCmd.AddCommand(
		newMigrateCommand(e),
		newAccountsCommand(e),
		newPostCommand(e),
		newVoidCommand(e),
		newBalanceCommand(e),
		newSubjectsCommand(e),
		newChargesCommand(e),
		newBillCommand(e),
		newCheckCommand(e),
		newServeCommand(e),
	)

	return rootCmd
}

// open connects the configured store and starts a ledger over it. The
// caller must Stop the ledger.
func (e *env) open(ctx context.Context, plugins ...plugin.Plugin) (*ledger.Ledger, error) {
	s, err := config.OpenStore(ctx, e.cfg.Store)
	if err != nil {
		return nil, err
	}
	opts := e.cfg.LedgerOptions(e.logger)
	for _, p := range plugins {
		opts = append(opts, ledger.WithPlugin(p))
	}
	l := ledger.New(s, opts...)
	if err := l.Start(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("starting ledger: %w", err)
	}
	return l, nil
}

// run opens the ledger, calls fn with an actor-scoped context and stops the
// ledger afterwards.
func (e *env) run(cmd *cobra.Command, fn func(ctx context.Context, l *ledger.Ledger) error) error {
	ctx := ledger.WithActor(cmd.Context(), e.actor)
	l, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Stop(); err != nil {
			e.logger.Warn("closing store", "error", err)
		}
	}()
	return fn(ctx, l)
}

func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(context.Context, *ledger.Ledger) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", e.cfg.Store.Driver)
				return nil
			})
		},
	}
}
