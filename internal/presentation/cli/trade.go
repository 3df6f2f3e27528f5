package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/domain/services"
)

// tradeFlags are shared by quote, simulate and execute
type tradeFlags struct {
	slippageBps  uint64
	minProfitBps uint64
	via          string
	force        bool
}

func (f *tradeFlags) register(cmd *cobra.Command, a *app, withProfit bool) {
	cmd.Flags().Uint64Var(&f.slippageBps, "slippage-bps", 0, "slippage tolerance in basis points (default from config)")
	cmd.Flags().StringVar(&f.via, "via", "", "route through this token first; with <from> equal to <to> this builds a loop")
	if withProfit {
		cmd.Flags().Uint64Var(&f.minProfitBps, "min-profit-bps", 0, "minimum profit margin in basis points (default from config)")
	}
}

// buildRoute resolves the arguments <from> <to> <amount> and quotes a route
func (a *app) buildRoute(ctx context.Context, cmd *cobra.Command, args []string, f *tradeFlags) (*entities.Route, error) {
	if err := a.connect(ctx); err != nil {
		return nil, err
	}
	from, err := a.token(ctx, args[0])
	if err != nil {
		return nil, err
	}
	to, err := a.token(ctx, args[1])
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(from, args[2])
	if err != nil {
		return nil, err
	}

	var opts []services.RouteOption
	if cmd.Flags().Changed("slippage-bps") {
		opts = append(opts, services.WithSlippage(f.slippageBps))
	}

	b := a.routeBuilder()
	if f.via != "" {
		via, err := a.token(ctx, f.via)
		if err != nil {
			return nil, err
		}
		return b.BuildVia(ctx, from, via, to, amount, opts...)
	}
	return b.BuildRoute(ctx, from, to, amount, opts...)
}

// evaluate runs the profitability gate. It returns nil without error when
// the route cannot be valued because no venue prices its output directly in
// its input.
func (a *app) evaluate(ctx context.Context, cmd *cobra.Command, route *entities.Route, sim *entities.SimulationResult, f *tradeFlags) (*entities.ArbitrageOpportunity, error) {
	minProfit := a.cfg.Trading.MinProfitBps
	if cmd.Flags().Changed("min-profit-bps") {
		minProfit = f.minProfitBps
	}

	var reference *entities.Pool
	if route.TokenIn().Address != route.TokenOut().Address {
		var err error
		reference, err = a.routeBuilder().ReferencePool(ctx, route.TokenOut(), route.TokenIn())
		if err != nil {
			return nil, err
		}
		if reference == nil {
			a.logger.Debug("no reference venue, skipping profitability check",
				zap.String("route_id", route.ID))
			return nil, nil
		}
	}
	return a.evaluator(minProfit).Evaluate(route, sim, reference)
}

func newQuoteCommand(a *app) *cobra.Command {
	var f tradeFlags
	cmd := &cobra.Command{
		Use:   "quote <from> <to> <amount>",
		Short: "Quote a route from the local pricing curves",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			route, err := a.buildRoute(cmd.Context(), cmd, args, &f)
			if err != nil {
				return err
			}
			printRoute(cmd.OutOrStdout(), route)
			return nil
		},
	}
	f.register(cmd, a, false)
	return cmd
}

func newSimulateCommand(a *app) *cobra.Command {
	var f tradeFlags
	cmd := &cobra.Command{
		Use:   "simulate <from> <to> <amount>",
		Short: "Predict a route's output with read-only venue calls",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			route, err := a.buildRoute(ctx, cmd, args, &f)
			if err != nil {
				return err
			}
			printRoute(cmd.OutOrStdout(), route)

			sim, err := a.simulator().Simulate(ctx, route)
			if err != nil {
				return err
			}
			printSimulation(cmd.OutOrStdout(), route, sim)

			opp, err := a.evaluate(ctx, cmd, route, sim, &f)
			if err != nil {
				return err
			}
			printOpportunity(cmd.OutOrStdout(), route, opp)
			return nil
		},
	}
	f.register(cmd, a, true)
	return cmd
}

func newExecuteCommand(a *app) *cobra.Command {
	var f tradeFlags
	cmd := &cobra.Command{
		Use:   "execute <from> <to> <amount>",
		Short: "Simulate a route and submit it as signed transactions",
		Long: `execute builds and simulates the route, checks it against the minimum
profit margin and then submits each step in order. The command exits
non-zero if any step fails or reverts.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			signer, err := a.signer()
			if err != nil {
				return err
			}

			route, err := a.buildRoute(ctx, cmd, args, &f)
			if err != nil {
				return err
			}
			printRoute(cmd.OutOrStdout(), route)

			sim, err := a.simulator().Simulate(ctx, route)
			if err != nil {
				return err
			}
			printSimulation(cmd.OutOrStdout(), route, sim)
			if last := sim.Steps[len(sim.Steps)-1]; last.BelowMinimum && !f.force {
				return fmt.Errorf("%w: predicted output is below the route minimum", entities.ErrSlippageExceeded)
			}

			opp, err := a.evaluate(ctx, cmd, route, sim, &f)
			if err != nil {
				return err
			}
			printOpportunity(cmd.OutOrStdout(), route, opp)
			if opp != nil && !opp.Profitable && !f.force {
				return errors.New("route is not profitable, use --force to execute anyway")
			}

			record, err := a.orchestrator().Execute(ctx, route, signer)
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
		},
	}
	f.register(cmd, a, true)
	cmd.Flags().BoolVar(&f.force, "force", false, "execute even when the route is unprofitable or predicted below its minimum")
	return cmd
}
