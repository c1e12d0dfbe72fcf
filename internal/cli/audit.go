package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeJamon/goVaultd/internal/storage/audit"
	"github.com/LeJamon/goVaultd/internal/types"
)

var (
	auditActor  string
	auditAction string
	auditSince  time.Duration
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List privileged changes from the audit log",
	Long: `List admin, approval and liability-override records from the configured
audit database, oldest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		if !cfg.Audit.Enabled() {
			return errors.New("no audit database configured")
		}
		ctx := cmd.Context()
		log, err := audit.Open(ctx, audit.Config{Driver: cfg.Audit.Driver, DSN: cfg.Audit.DSN}, logger)
		if err != nil {
			return err
		}
		defer log.Close() //nolint:errcheck

		f := audit.Filter{
			Actor:  types.Address(auditActor),
			Action: auditAction,
			Limit:  auditLimit,
		}
		if auditSince > 0 {
			f.Since = time.Now().Add(-auditSince)
		}
		entries, err := log.List(ctx, f)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\t%q -> %q\n",
				e.At.UTC().Format(time.RFC3339), e.ID, e.Actor, e.Action, e.Target, e.Old, e.New)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditActor, "actor", "", "only entries by this address")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "only entries with this action")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "only entries newer than this (e.g. 24h)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 100, "maximum entries to print")
	rootCmd.AddCommand(auditCmd)
}
