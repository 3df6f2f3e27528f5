package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/domain/services"
)

func (a *app) strategy() *services.StrategyService {
	return services.NewStrategyService(
		a.markets(),
		a.routeBuilder(),
		a.simulator(),
		a.evaluator(a.cfg.Trading.MinProfitBps),
		a.orchestrator(),
		a.positions(),
		a.erc20,
		a.logger,
	)
}

// optionalSigner loads the wallet only when the command will send
func (a *app) optionalSigner(execute bool) (entities.TxSigner, error) {
	if !execute {
		return nil, nil
	}
	return a.signer()
}

func checkTrade(trade *services.Trade) error {
	if trade == nil || trade.Record == nil {
		return nil
	}
	if trade.Record.HasRevert() {
		return entities.ErrTransactionReverted
	}
	return nil
}

func newArbitrageCommand(a *app) *cobra.Command {
	var (
		diffBps int64
		amount  string
		execute bool
	)
	cmd := &cobra.Command{
		Use:   "arbitrage",
		Short: "Trade the YES/NO collateral spread when YES+NO drifts from one",
		Long: `arbitrage prices the YES and NO collateral tokens. When their sum deviates
from one collateral unit by more than --diff basis points it sells the rich
side for the cheap one through the collateral token. Without --execute the
trade is only simulated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			signer, err := a.optionalSigner(execute)
			if err != nil {
				return err
			}
			if err := a.connect(ctx); err != nil {
				return err
			}
			m := a.markets().Markets()
			units, err := parseAmount(m.YesCollateral, amount)
			if err != nil {
				return err
			}

			trade, err := a.strategy().TradeSpread(ctx, units, diffBps, execute, signer)
			if trade != nil {
				printTrade(cmd.OutOrStdout(), a.cfg.Futarchy.Company, a.cfg.Futarchy.Collateral, trade)
			}
			if err != nil {
				return err
			}
			return checkTrade(trade)
		},
	}
	cmd.Flags().Int64Var(&diffBps, "diff", 200, "minimum YES+NO deviation from one, in basis points")
	cmd.Flags().StringVar(&amount, "amount", "0.1", "amount of the rich side to sell")
	cmd.Flags().BoolVar(&execute, "execute", false, "submit the trade instead of only simulating it")
	return cmd
}

func newMonitorCommand(a *app) *cobra.Command {
	var (
		iterations int
		interval   time.Duration
		buyAbove   float64
		sellBelow  float64
		amount     string
		execute    bool
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the probability threshold strategy on an interval",
		Long: `monitor reads the markets every --interval. It buys YES company tokens
with YES collateral while the event probability is above --buy and sells
them while it is below --sell. Rounds that fail are reported and the loop
continues.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if buyAbove < sellBelow {
				return fmt.Errorf("--buy %.2f is below --sell %.2f", buyAbove, sellBelow)
			}
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
			signer, err := a.optionalSigner(execute)
			if err != nil {
				return err
			}
			if err := a.connect(ctx); err != nil {
				return err
			}
			units, err := parseAmount(a.markets().Markets().YesCollateral, amount)
			if err != nil {
				return err
			}

			params := services.ProbabilityParams{
				BuyAbove:  decimal.NewFromFloat(buyAbove),
				SellBelow: decimal.NewFromFloat(sellBelow),
				Amount:    units,
				Execute:   execute,
			}
			w := cmd.OutOrStdout()
			failed := 0
			err = a.strategy().Watch(ctx, iterations, interval, params, signer, func(round int, trade *services.Trade, err error) {
				fmt.Fprintf(w, "\nRound %d at %s\n", round, time.Now().UTC().Format(time.RFC3339))
				if trade != nil {
					printTrade(w, a.cfg.Futarchy.Company, a.cfg.Futarchy.Collateral, trade)
				}
				if err == nil {
					err = checkTrade(trade)
				}
				if err != nil {
					failed++
					a.logger.Error("monitor round failed", zap.Int("round", round), zap.Error(err))
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d rounds failed", failed, iterations)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 5, "number of rounds, 0 runs until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "time between rounds")
	cmd.Flags().Float64Var(&buyAbove, "buy", 0.7, "buy YES above this probability")
	cmd.Flags().Float64Var(&sellBelow, "sell", 0.3, "sell YES below this probability")
	cmd.Flags().StringVar(&amount, "amount", "0.1", "YES collateral spent when buying, YES company tokens sold when selling")
	cmd.Flags().BoolVar(&execute, "execute", false, "submit trades instead of only simulating them")
	return cmd
}

func newSyntheticCommand(a *app, direction string) *cobra.Command {
	var dryRun, force bool

	use, short := "sell-synthetic <amount>", "Buy spot GNO and sell it as YES and NO halves"
	if direction == services.BuySynthetic {
		use, short = "buy-synthetic <amount>", "Buy YES and NO halves, merge them and sell spot GNO"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: `The synthetic trades move collateral between spot GNO and the synthetic
GNO made of its YES and NO halves, using the futarchy router to split and
merge. The plan is priced leg by leg and checked against the minimum profit
margin before anything is sent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			signer, err := a.signer()
			if err != nil {
				return err
			}
			if err := a.connect(ctx); err != nil {
				return err
			}
			strategy := a.strategy()
			capital, err := parseAmount(a.markets().Markets().Collateral, args[0])
			if err != nil {
				return err
			}

			plan, err := strategy.PlanSynthetic(ctx, direction, capital, signer)
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), plan)
			if dryRun {
				return nil
			}
			if !plan.Verdict.Profitable && !force {
				return errors.New("synthetic trade is not profitable, use --force to execute anyway")
			}

			result, err := strategy.ExecuteSynthetic(ctx, plan, signer)
			if result != nil {
				printSyntheticResult(cmd.OutOrStdout(), result)
			}
			if err != nil {
				return err
			}
			if result.Record.HasRevert() {
				return entities.ErrTransactionReverted
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without sending")
	cmd.Flags().BoolVar(&force, "force", false, "execute even when the plan is unprofitable")
	return cmd
}
