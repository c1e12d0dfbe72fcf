package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/redemption"
	"github.com/LeJamon/goVaultd/internal/rpc"
)

// snapshot takes a consistent status document under the engine lock.
func (n *node) snapshot(ctx context.Context) (*rpc.Info, error) {
	return rpc.Snapshot(ctx, n.serial, n.cfg.Vault.AssetDecimals)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted vault state",
	Long:  `Load the persisted vault state and print its liquidity snapshot as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx := cmd.Context()
		n, err := openNode(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer n.close()

		doc, err := n.snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List redemption requests awaiting approval",
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

		out := cmd.OutOrStdout()
		dec := cfg.Vault.AssetDecimals
		return n.serial.Do(func(e *redemption.Engine) error {
			ids := e.GetPendingApprovals()
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			for _, id := range ids {
				r, err := e.GetRequest(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d\t%s\t%s\tgross=%s\tshares=%s\trequested=%s\n",
					r.ID, r.Owner, r.Channel, amount.FormatUnits(r.GrossAmount, dec),
					amount.FormatUnits(r.Shares, dec), r.RequestTime.UTC().Format("2006-01-02T15:04:05Z"))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pendingCmd)
}
