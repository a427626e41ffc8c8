package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"missionflow/internal/config"
	"missionflow/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "missionflow",
	Short: "missionflow - sequential agent pipelines for marketing automation",
	Long: `missionflow runs a named sequence of marketing agents (strategist, scraper,
writer, publisher, ...) against a language model, one step at a time.

Each agent's instructions are layered with the global mission, the business
profile, the marketing goals and the previous agent's output. Failed steps are
retried with a linear backoff; a step that exhausts its retries halts the run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if err := logging.Initialize(logging.Options{
			Level:      loaded.Logging.Level,
			Format:     loaded.Logging.Format,
			Dir:        loaded.Logging.Dir,
			Categories: loaded.Logging.Categories,
		}); err != nil {
			return err
		}
		cfg = loaded
		logger = logging.L().Named(string(logging.CategoryCLI))
		logger.Debug("Configuration loaded",
			zap.String("config", configPath),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("store", cfg.Store.Driver))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
		_ = logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall timeout per command")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(inboxCmd)
	rootCmd.AddCommand(runsCmd)
}

func defaultConfigPath() string {
	if v := os.Getenv("MISSIONFLOW_CONFIG"); v != "" {
		return v
	}
	return ".missionflow/config.yaml"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
