// Command companytrigger runs the company creation trigger: as a Kafka
// consumer (serve), as a one-shot invocation (invoke), or as a tool that
// creates a company record and emits its creation event (create).
package main

import (
	"fmt"
	"os"

	"github.com/gartstein/companytrigger/internal/company/app"
	"github.com/gartstein/companytrigger/internal/company/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "companytrigger",
		Short: "Company creation trigger",
		Long: `companytrigger reacts to the creation of company records: it sets
nameInLowerCase and createdAt on the new record and increments the
counts/companies.totalCount aggregate.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default internal/company/config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(createCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads the configuration and builds the logger shared by all commands.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func syncLogger(logger *zap.Logger) {
	// Sync on stderr fails with EINVAL on some platforms; nothing to do about it.
	_ = logger.Sync()
}
