// Command chattask runs the chat task manager: the WhatsApp webhook, the
// reminder delivery workers and the sweeper.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/chattask/internal/logging"
	"github.com/nhle/chattask/internal/model"
)

var (
	configPath string
	verbose    bool

	cfg    *model.AppConfig
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chattask",
	Short: "Task manager and reminder service for WhatsApp",
	Long: `chattask turns WhatsApp messages into tasks and ideas, and reminds
you about them through the same chat.

Configuration is read from ~/.config/chattask/config.yaml; any key can be
overridden with a CHATTASK_ environment variable (database.dsn becomes
CHATTASK_DATABASE_DSN). Secrets are read from the environment or the OS
keyring; see "chattask secrets".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Log.Format)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, secretsCmd, queueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
