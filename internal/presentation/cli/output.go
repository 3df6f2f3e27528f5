package cli

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/domain/services"
)

const displayPlaces = 6

type tokenBalance struct {
	Token  entities.Token
	Amount *big.Int
}

func amount(t entities.Token, units *big.Int) string {
	if units == nil {
		return "-"
	}
	return t.FromUnits(units).StringFixed(displayPlaces) + " " + t.Symbol
}

func bpsPercent(bps int64) string {
	return decimal.New(bps, -2).StringFixed(2) + "%"
}

func printRoute(w io.Writer, route *entities.Route) {
	fmt.Fprintf(w, "Route %s: %s -> %s\n", route.ID, amount(route.TokenIn(), route.AmountIn), amount(route.TokenOut(), route.AmountOut))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tVENUE\tIN\tOUT\tMIN OUT\tIMPACT\tPRICE")
	for i, s := range route.Steps {
		q := s.Quote
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			s.Venue().Label(),
			amount(s.TokenIn(), s.AmountIn),
			amount(s.TokenOut(), q.AmountOut),
			amount(s.TokenOut(), s.MinAmountOut),
			bpsPercent(int64(q.PriceImpactBps)),
			q.EffectivePrice.StringFixed(displayPlaces),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "Slippage %s, total impact %s\n", bpsPercent(int64(route.SlippageBps)), bpsPercent(int64(route.PriceImpactBps())))
}

func printSimulation(w io.Writer, route *entities.Route, sim *entities.SimulationResult) {
	fmt.Fprintf(w, "\nSimulation at block %d\n", sim.BlockNumber)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tVENUE\tIN\tPREDICTED OUT\tSOURCE\tCHECK")
	for i, p := range sim.Steps {
		source := "preview"
		if !p.Exact {
			source = "estimate"
		}
		check := "ok"
		if p.BelowMinimum {
			check = "BELOW MIN"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, p.Venue, amount(p.TokenIn, p.AmountIn), amount(p.TokenOut, p.AmountOut), source, check)
	}
	tw.Flush()
	fmt.Fprintf(w, "Predicted output %s\n", amount(route.TokenOut(), sim.AmountOut))
}

func printOpportunity(w io.Writer, route *entities.Route, opp *entities.ArbitrageOpportunity) {
	if opp == nil {
		fmt.Fprintln(w, "No reference venue for a profitability check")
		return
	}
	verdict := "NOT PROFITABLE"
	if opp.Profitable {
		verdict = "PROFITABLE"
	}
	in := route.TokenIn()
	fmt.Fprintf(w, "\n%s: capital %s, output worth %s, profit %s (margin %s)\n",
		verdict,
		amount(in, opp.Capital),
		amount(in, opp.OutputValue),
		amount(in, opp.ExpectedProfit),
		bpsPercent(int64(opp.MinProfitBps)),
	)
	if !opp.Exact {
		fmt.Fprintln(w, "Some steps were estimated locally; the result is approximate")
	}
}

func printRecord(w io.Writer, record *entities.ExecutionRecord) {
	fmt.Fprintf(w, "\nExecution %s: %s\n", record.ID, record.Status)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTEP\tSTATE\tTX\tGAS USED\tERROR")
	for i, s := range record.Steps {
		tx := "-"
		if s.TxHash != (common.Hash{}) {
			tx = s.TxHash.Hex()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", i+1, s.Label, s.State, tx, s.GasUsed, s.Error)
	}
	tw.Flush()
}

func printSnapshots(w io.Writer, snaps []services.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VENUE\tPAIR\tPRICE\tSTATUS")
	for _, s := range snaps {
		status := "ok"
		if s.Err != nil {
			status = s.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\n", s.Venue.Label(), s.Venue.Token0.Symbol, s.Venue.Token1.Symbol, s.Price.StringFixed(displayPlaces), status)
	}
	tw.Flush()
}

func printPrices(w io.Writer, company, collateral string, p *entities.MarketPrices) {
	fmt.Fprintf(w, "\n%s price in %s\n", company, collateral)
	fmt.Fprintf(w, "  YES:         %s\n", p.YesPrice.StringFixed(displayPlaces))
	fmt.Fprintf(w, "  NO:          %s\n", p.NoPrice.StringFixed(displayPlaces))
	fmt.Fprintf(w, "  Spot:        %s\n", p.SpotPrice.StringFixed(displayPlaces))
	fmt.Fprintf(w, "  Probability: %s\n", p.Probability.StringFixed(4))
	fmt.Fprintf(w, "  Synthetic:   %s (%s vs spot)\n", p.SyntheticPrice.StringFixed(displayPlaces), bpsPercent(p.GapBps))
	if s := p.Spread; s != nil {
		fmt.Fprintf(w, "  YES+NO %s: %s + %s = %s, deviation %s", collateral,
			s.YesPrice.StringFixed(4), s.NoPrice.StringFixed(4), s.Sum.StringFixed(4), bpsPercent(s.DeviationBps))
		if s.Profitable {
			fmt.Fprintf(w, ", opportunity: %s", s.Action)
		}
		fmt.Fprintln(w)
	}
}

func printBalances(w io.Writer, owner common.Address, balances []tokenBalance) {
	fmt.Fprintf(w, "Balances of %s\n", owner.Hex())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, b := range balances {
		fmt.Fprintf(tw, "%s\t%s\t\n", b.Token.Symbol, b.Token.FromUnits(b.Amount).StringFixed(displayPlaces))
	}
	tw.Flush()
}

func printTrade(w io.Writer, company, collateral string, trade *services.Trade) {
	printPrices(w, company, collateral, trade.Prices)
	if trade.Signal != "" {
		fmt.Fprintf(w, "Signal: %s\n", trade.Signal)
	}
	if trade.Route == nil {
		fmt.Fprintln(w, "No trade")
		return
	}
	if trade.Action != "" {
		fmt.Fprintf(w, "Action: %s\n", trade.Action)
	}
	fmt.Fprintln(w)
	printRoute(w, trade.Route)
	if trade.Simulation != nil {
		printSimulation(w, trade.Route, trade.Simulation)
	}
	if trade.Record != nil {
		printRecord(w, trade.Record)
	}
}

func printPlan(w io.Writer, plan *services.SyntheticPlan) {
	fmt.Fprintf(w, "Synthetic plan %s: %s\n", plan.ID, plan.Direction)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tLEG\tIN\tOUT\tSOURCE")
	for i, leg := range plan.Legs {
		source := "preview"
		if !leg.Exact {
			source = "estimate"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, leg.Label, amount(leg.TokenIn, leg.AmountIn), amount(leg.TokenOut, leg.AmountOut), source)
	}
	tw.Flush()
	for _, l := range plan.Leftovers {
		fmt.Fprintf(w, "Left over: %s\n", amount(l.Token, l.Amount))
	}

	v := plan.Verdict
	verdict := "NOT PROFITABLE"
	if v.Profitable {
		verdict = "PROFITABLE"
	}
	collateral := plan.Legs[0].TokenIn
	fmt.Fprintf(w, "\n%s: spend %s, returned %s, profit %s (margin %s)\n",
		verdict,
		amount(collateral, plan.Spend),
		amount(collateral, plan.Returned),
		amount(collateral, v.ExpectedProfit),
		bpsPercent(int64(v.MinProfitBps)),
	)
	if !v.Exact {
		fmt.Fprintln(w, "Some legs were estimated locally; the result is approximate")
	}
}

func printSyntheticResult(w io.Writer, r *services.SyntheticResult) {
	if r.Record != nil {
		printRecord(w, r.Record)
	}
	if r.RealizedProfit == nil {
		return
	}
	collateral := r.Plan.Legs[0].TokenIn
	fmt.Fprintf(w, "\n%s balance %s -> %s, realized %s on %s\n",
		collateral.Symbol,
		amount(collateral, r.CollateralBefore),
		amount(collateral, r.CollateralAfter),
		amount(collateral, r.RealizedProfit),
		amount(collateral, r.Plan.Spend),
	)
}
