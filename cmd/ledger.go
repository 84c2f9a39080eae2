package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bonosa/MarsLife/internal/config"
	"github.com/bonosa/MarsLife/internal/ledger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or adjust credit balances",
	}
	cmd.AddCommand(newLedgerBalanceCmd(), newLedgerCreditCmd())
	return cmd
}

func withLedger(configFile string, fn func(ctx context.Context, svc *ledger.Service) error) error {
	cfg, err := loadConfigQuiet(configFile)
	if err != nil {
		return err
	}
	log := zap.NewNop()
	if verbose {
		log, _ = zap.NewDevelopment()
	}
	ctx := context.Background()
	store, err := openStore(ctx, cfg.Ledger, log)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()
	return fn(ctx, ledger.NewService(store, cfg.Ledger.GenerationCost, log))
}

func newLedgerBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "balance <config.toml> <userId>",
		Short:        "Print a user's balance",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(args[0], func(ctx context.Context, svc *ledger.Service) error {
				balance, err := svc.Balance(ctx, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[1], balance)
				return nil
			})
		},
	}
}

func newLedgerCreditCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "credit <config.toml> <userId> <amount>",
		Short:        "Add credits to a user's balance",
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[2], err)
			}
			return withLedger(args[0], func(ctx context.Context, svc *ledger.Service) error {
				balance, err := svc.Credit(ctx, args[1], amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: +%d -> %d\n", args[1], amount, balance)
				return nil
			})
		},
	}
}

// loadConfigQuiet loads configFile for operator commands, which only need
// the ledger section.
func loadConfigQuiet(configFile string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.ValidateLedger(cfg.Ledger); err != nil {
		return nil, err
	}
	return cfg, nil
}
