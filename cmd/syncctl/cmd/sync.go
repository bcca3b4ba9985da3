package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/printshop/backend/internal/domain/accounting"
)

// syncKinds lists the accepted sync types
var syncKinds = []string{"all", "customers", "invoices", "orders", "pending"}

type runFunc func(ctx context.Context) (*accounting.SyncRun, error)

type syncRunner interface {
	SyncAll(ctx context.Context) (*accounting.SyncRun, error)
	SyncCustomers(ctx context.Context) (*accounting.SyncRun, error)
	SyncInvoices(ctx context.Context) (*accounting.SyncRun, error)
	SyncOrders(ctx context.Context) (*accounting.SyncRun, error)
	SyncPendingInvoices(ctx context.Context) (*accounting.SyncRun, error)
}

func runnerFor(s syncRunner, kind string) (runFunc, error) {
	switch kind {
	case "all":
		return s.SyncAll, nil
	case "customers":
		return s.SyncCustomers, nil
	case "invoices":
		return s.SyncInvoices, nil
	case "orders":
		return s.SyncOrders, nil
	case "pending":
		return s.SyncPendingInvoices, nil
	}
	return nil, fmt.Errorf("unknown sync type %q, expected one of %v", kind, syncKinds)
}

var syncCmd = &cobra.Command{
	Use:       "sync [all|customers|invoices|orders|pending]",
	Short:     "Run sync passes and print the run summary",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: syncKinds,
	Long: `Run one or more sync passes against the remote account.

Examples:
  syncctl sync
  syncctl sync customers
  syncctl sync pending --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := "all"
		if len(args) == 1 {
			kind = args[0]
		}
		run, err := runnerFor(app.Sync, kind)
		if err != nil {
			return err
		}
		result, err := run(cmd.Context())
		if err != nil {
			return err
		}
		if err := render(cmd.OutOrStdout(), result, func(w io.Writer) { printRun(w, result) }); err != nil {
			return err
		}
		// Partial and failed runs exit non-zero so cron wrappers notice
		if result.Status == accounting.RunStatusFailed {
			return fmt.Errorf("sync run %s failed: %s", result.ID, result.Message)
		}
		return result.Err()
	},
}

func printRun(w io.Writer, run *accounting.SyncRun) {
	fmt.Fprintf(w, "run %s  %s  %s\n", run.ID, run.Status, run.Duration().Round(time.Millisecond))
	if run.Message != "" {
		fmt.Fprintf(w, "  %s\n", run.Message)
	}

	entities := make([]string, 0, len(run.Counters))
	for e := range run.Counters {
		entities = append(entities, e.String())
	}
	sort.Strings(entities)
	for _, name := range entities {
		c := run.Counters[accounting.EntityType(name)]
		fmt.Fprintf(w, "  %-13s created=%d updated=%d skipped=%d failed=%d\n",
			name, c.Created, c.Updated, c.Skipped, c.Failed)
		if c.Error != "" {
			fmt.Fprintf(w, "  %-13s aborted: %s\n", "", c.Error)
		}
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
