package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cwbudde/hypertune/history"
)

var bestCmd = &cobra.Command{
	Use:   "best <run-dir>",
	Short: "Show the best trial of a saved run",
	Args:  cobra.ExactArgs(1),
	RunE:  showBest,
}

func init() {
	rootCmd.AddCommand(bestCmd)
}

func showBest(cmd *cobra.Command, args []string) error {
	runDir := args[0]

	record, err := history.Load(filepath.Join(runDir, history.HistoryFile))
	if err != nil {
		return fmt.Errorf("failed to load run history: %w", err)
	}
	entry, ok := record.Best()
	if !ok {
		return fmt.Errorf("run %s has no trials", runDir)
	}

	// The manifest is optional here: a bare history file is still
	// enough to answer the question.
	if m, err := loadManifest(runDir); err == nil {
		fmt.Printf("Objective:  %s\n", m.Objective)
		fmt.Printf("Algorithm:  %s/%s\n", m.Algorithm, m.Backend)
	}
	fmt.Printf("Trials:     %d\n", record.Len())
	fmt.Printf("Best value: %.6g\n", entry.Value)
	fmt.Printf("Parameters: %s\n", entry.Params.String())
	return nil
}
