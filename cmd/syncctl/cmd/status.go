package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	syncapp "github.com/printshop/backend/internal/application/accounting"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last sync state and recent log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := app.Sync.Status(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), status, func(w io.Writer) { printStatus(w, status) })
	},
}

func printStatus(w io.Writer, s *syncapp.SyncStatus) {
	if s.State == nil || s.State.LastSyncAt == nil {
		fmt.Fprintln(w, "no sync has run yet")
	} else {
		fmt.Fprintf(w, "last sync  %s  %s\n", s.State.LastSyncAt.Format(time.RFC3339), s.State.LastStatus)
		if s.State.LastSuccessAt != nil {
			fmt.Fprintf(w, "last ok    %s\n", s.State.LastSuccessAt.Format(time.RFC3339))
		}
		if s.State.LastMessage != "" {
			fmt.Fprintf(w, "message    %s\n", s.State.LastMessage)
		}
	}
	for _, e := range s.RecentLogs {
		line := fmt.Sprintf("%s  %-12s %-8s %s", e.AttemptedAt.Format(time.RFC3339), e.EntityType, e.Outcome, e.ExternalKey)
		if e.Error != "" {
			line += "  " + e.Error
		}
		fmt.Fprintln(w, line)
	}
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Log in to the remote account and report the outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		result := app.Conn.Connect(cmd.Context(), app.Conn.MaxRetries())
		if err := render(cmd.OutOrStdout(), result, func(w io.Writer) {
			if result.Success {
				fmt.Fprintln(w, "connected:", result.Message)
				return
			}
			fmt.Fprintln(w, "connection failed:", result.Message)
		}); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("connection failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(connectCmd)
}
