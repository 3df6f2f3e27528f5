package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/spf13/cobra"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/dex"
)

func newPricesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Read every venue and print spot, conditional and synthetic prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			prices, snaps, err := a.markets().Prices(ctx, a.evaluator(a.cfg.Trading.MinProfitBps))
			printSnapshots(cmd.OutOrStdout(), snaps)
			if err != nil {
				return err
			}
			printPrices(cmd.OutOrStdout(), a.cfg.Futarchy.Company, a.cfg.Futarchy.Collateral, prices)
			return nil
		},
	}
}

func newBalancesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balances [address]",
		Short: "Print token balances of the configured wallet or the given address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			owner, err := a.owner(args)
			if err != nil {
				return err
			}
			if err := a.connect(ctx); err != nil {
				return err
			}

			tokens := a.tokens.GetAll()
			msgs := make([]ethereum.CallMsg, len(tokens))
			for i, t := range tokens {
				msgs[i] = dex.BalanceOfMsg(t.Address, owner)
			}
			results, err := a.chain.Multicall(ctx, msgs)
			if err != nil {
				return err
			}

			balances := make([]tokenBalance, 0, len(tokens))
			for i, t := range tokens {
				amount, err := dex.DecodeUint(results[i])
				if err != nil {
					return fmt.Errorf("failed to decode %s balance: %w", t, err)
				}
				balances = append(balances, tokenBalance{Token: t, Amount: amount})
			}
			printBalances(cmd.OutOrStdout(), owner, balances)
			return nil
		},
	}
}

func newSplitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "split <collateral> <amount>",
		Short: "Split collateral into equal YES and NO positions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.position(cmd, args, true)
		},
	}
}

func newMergeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <collateral> <amount>",
		Short: "Merge equal YES and NO positions back into collateral",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.position(cmd, args, false)
		},
	}
}

func (a *app) position(cmd *cobra.Command, args []string, split bool) error {
	ctx := cmd.Context()
	signer, err := a.signer()
	if err != nil {
		return err
	}
	if err := a.connect(ctx); err != nil {
		return err
	}

	positions := a.positions()
	set, err := positions.Set(args[0])
	if err != nil {
		return err
	}
	amount, err := parseAmount(set.Collateral, args[1])
	if err != nil {
		return err
	}

	var record *entities.ExecutionRecord
	if split {
		record, err = positions.Split(ctx, set, amount, signer)
	} else {
		record, err = positions.Merge(ctx, set, amount, signer)
	}
	if record != nil {
		printRecord(cmd.OutOrStdout(), record)
	}
	if err != nil {
		return err
	}
	if record.HasRevert() {
		return entities.ErrTransactionReverted
	}
	return nil
}

func newRecordCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "record <id>",
		Short: "Show a cached execution record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			record, err := a.records.GetRecord(ctx, args[0])
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("execution record %s not found or expired", args[0])
			}
			printRecord(cmd.OutOrStdout(), record)
			return nil
		},
	}
}
