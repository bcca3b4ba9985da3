package cmd

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	syncapp "github.com/printshop/backend/internal/application/accounting"
)

var pushCmd = &cobra.Command{
	Use:   "push <invoice-id>",
	Short: "Push one pending local invoice to the remote account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid invoice id %q: %w", args[0], err)
		}
		result, err := app.Sync.PushInvoice(cmd.Context(), id)
		if err != nil {
			return err
		}
		if err := render(cmd.OutOrStdout(), result, func(w io.Writer) { printPush(w, result) }); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("push rejected: %s", result.Message)
		}
		return nil
	},
}

func printPush(w io.Writer, r *syncapp.PushResult) {
	switch {
	case r.AlreadySynced:
		fmt.Fprintf(w, "invoice %s already synced as %s\n", r.InvoiceID, r.DocNumber)
	case r.Success:
		fmt.Fprintf(w, "invoice %s pushed as %s\n", r.InvoiceID, r.DocNumber)
	default:
		fmt.Fprintf(w, "invoice %s rejected: %s\n", r.InvoiceID, r.Message)
	}
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
