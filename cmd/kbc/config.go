package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cnclabs/kbc/internal/config"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the effective configuration",
	Long: `Write the configuration in effect after defaults are applied, as YAML.
The result can be edited and passed back with --config.

Examples:
  kbc config --output kbc.yaml
  kbc config --config kbc.yaml --output resolved.yaml`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringVar(&configOutput, "output", "", "file to write")
	_ = configCmd.MarkFlagRequired("output")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if err := config.Save(configOutput, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s model, rank %d\n", configOutput, cfg.Model.Variant, cfg.Model.Rank)
	return nil
}
