package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/siherrmann/resolver/model"
	"github.com/spf13/cobra"
)

var (
	configPath     string
	resolverConfig *model.ResolverConfig
)

var rootCmd = &cobra.Command{
	Use:   "resolver",
	Short: "Entity resolution for person, company and address mentions",
	Long: `resolver links extracted mentions to canonical entities.

Mentions carrying a valid personnummer or organisationsnummer are linked
through the identifier, all others are blocked, scored and decided against
the configured confidence bands.

The database is configured through DB_* environment variables (or a .env
file), resolver settings through --config and RESOLVER_* variables.

Examples:
  resolver batch --file mentions.json     # Resolve mentions from a file
  resolver ingest --file mentions.json    # Store mentions for later resolution
  resolver pending --limit 500            # Resolve stored unresolved mentions
  resolver review --mention ID --entity ID --match --reviewer anna
  resolver search --term "Acme" --type COMPANY
  resolver stats                          # Show blocking index statistics`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		resolverConfig = config
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (yaml, toml or json)")

	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
