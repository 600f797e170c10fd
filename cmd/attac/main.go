// Package main provides the CLI entry point for the EWC continual
// learning toolkit.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BoyuanWangMust/ATTAC/cmd/attac/commands"
)

var version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "attac",
	Short: "ATTAC - continual learning with elastic weight consolidation",
	Long: `ATTAC trains a multi-head classifier over a sequence of tasks while
mitigating catastrophic forgetting with elastic weight consolidation:
after each task a diagonal Fisher information estimate is fused into a
persistent importance map, and later tasks are penalized for drifting
important parameters away from their consolidated values.`,
	Version: version,
}

func main() {
	rootCmd.AddCommand(commands.TrainCmd)
	rootCmd.AddCommand(commands.InspectCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
