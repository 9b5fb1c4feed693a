package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/retrievolve/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config.yaml>",
	Short: "Validate a run configuration without starting a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("configuration valid: population=%d generations=%d models=%v\n",
			cfg.Run.PopulationSize, cfg.Run.MaxGenerations, cfg.Pools.EmbeddingModels)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
