package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cnclabs/kbc/internal/config"
	"github.com/cnclabs/kbc/internal/progress"
	"github.com/cnclabs/kbc/pkg/utils"
)

var (
	configPath   string
	debugMode    bool
	showProgress bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kbc",
	Short: "Knowledge base completion with CP and ComplEx",
	Long: `kbc works with CP and ComplEx link prediction models stored as text snapshots.

Commands:
  init    - build a vocabulary from triples and write a randomly initialised snapshot
  eval    - filtered ranking evaluation (MRR, MR, Hits@k)
  query   - answer (head, relation, ?) by searching embedding space`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (defaults are used when empty)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&showProgress, "progress", false, "print a progress line to stderr")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debugMode {
		c.Debug = true
	}

	l, err := utils.NewLogger(c.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	cfg, logger = c, l

	logger.Debug("config loaded",
		zap.String("config_path", configPath),
		zap.String("variant", cfg.Model.Variant),
		zap.Bool("debug", cfg.Debug))
	return nil
}

func reporter(cmd *cobra.Command) progress.Reporter {
	switch {
	case showProgress:
		return progress.NewTerminalReporter(cmd.ErrOrStderr())
	case cfg.Debug:
		return progress.NewLogReporter(logger, 10)
	}
	return nil
}
