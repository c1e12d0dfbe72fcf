package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/liability"
)

var liabilityCmd = &cobra.Command{
	Use:   "liability",
	Short: "Print the liability schedule",
	Long: `Print the persisted day buckets of scheduled redemption payouts, the
overdue bucket and the seven-day window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		n, err := openNode(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer n.close()

		dec := cfg.Vault.AssetDecimals
		out := cmd.OutOrStdout()
		today := liability.DayIndex(n.clock.Now())
		// The seven-day total rolls elapsed buckets into overdue first.
		seven := n.ledger.SevenDayLiability()
		state := n.ledger.Snapshot()
		for _, b := range state.Buckets {
			marker := ""
			if b.Day == today {
				marker = " (today)"
			}
			day := time.Unix(b.Day*liability.SecondsPerDay, 0).UTC().Format("2006-01-02")
			fmt.Fprintf(out, "%s\t%s%s\n", day, amount.FormatUnits(b.Amount, dec), marker)
		}
		fmt.Fprintf(out, "overdue\t%s\n", amount.FormatUnits(amount.Or(state.Overdue), dec))
		fmt.Fprintf(out, "7-day\t%s\n", amount.FormatUnits(seven, dec))
		fmt.Fprintf(out, "booked\t%s\n", amount.FormatUnits(n.ledger.TotalBooked(), dec))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(liabilityCmd)
}
