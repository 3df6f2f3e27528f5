package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/services"
)

const version = "0.3.0"

// NewRootCommand builds the futarchy command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "futarchy",
		Short: "Quote, simulate and execute trades on futarchy conditional markets",
		Long: `futarchy routes trades across the conditional YES/NO pools, the
collateral pools and the wrap vaults of a futarchy proposal. Routes can be
quoted, simulated against live chain state and executed as signed
transactions.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "TOML config file (defaults apply when empty)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newQuoteCommand(a),
		newSimulateCommand(a),
		newExecuteCommand(a),
		newPricesCommand(a),
		newBalancesCommand(a),
		newSplitCommand(a),
		newMergeCommand(a),
		newRecordCommand(a),
		newArbitrageCommand(a),
		newMonitorCommand(a),
		newSyntheticCommand(a, services.SellSynthetic),
		newSyntheticCommand(a, services.BuySynthetic),
		newServeCommand(a),
	)
	return root
}

// Execute runs the CLI. A non-nil error means the process should exit
// non-zero.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
