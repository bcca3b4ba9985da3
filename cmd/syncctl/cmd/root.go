package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/printshop/backend/internal/bootstrap"
	"github.com/printshop/backend/internal/infrastructure/config"
	"github.com/printshop/backend/internal/infrastructure/logger"
)

var (
	logLevel   string
	jsonOutput bool
	app        *bootstrap.App
)

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "Operator CLI for the print shop accounting sync",
	Long: `syncctl runs sync passes and invoice pushes against the iCount
account configured for the sync service, using the same config.toml and
PRINTSHOP_* environment variables.

Only one run is active per process. Running syncctl next to the server
does not coordinate with the server's run guard.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		log, err := logger.New(&logger.Config{
			Level:  cfg.Log.Level,
			Format: "console",
			Output: "stderr",
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		app, err = bootstrap.New(cmd.Context(), cfg, log)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app == nil {
			return nil
		}
		defer func() { _ = logger.Sync(app.Logger) }()
		return app.Close(context.Background())
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// render prints v as indented JSON with --json, otherwise calls text
func render(w io.Writer, v any, text func(io.Writer)) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
