package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cwbudde/hypertune/history"
)

var (
	runsDir        string
	cleanKeepLast  int
	cleanOlderThan int
	cleanForce     bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage saved run directories",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs",
	RunE:  listRuns,
}

var runsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old runs",
	Long: `Deletes run directories by age, count or both. Runs older than
--older-than days and runs beyond the --keep-last most recent are
removed after confirmation.`,
	RunE: cleanRuns,
}

func init() {
	runsCmd.PersistentFlags().StringVar(&runsDir, "dir", "runs", "Directory holding run subdirectories")
	runsCleanCmd.Flags().IntVar(&cleanKeepLast, "keep-last", 0, "Keep the N most recent runs")
	runsCleanCmd.Flags().IntVar(&cleanOlderThan, "older-than", 0, "Delete runs older than N days")
	runsCleanCmd.Flags().BoolVarP(&cleanForce, "force", "f", false, "Skip the confirmation prompt")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsCleanCmd)
	rootCmd.AddCommand(runsCmd)
}

// runInfo describes one run directory for listing and cleanup.
type runInfo struct {
	Name      string
	Dir       string
	Manifest  runManifest
	Trials    int
	BestValue float64
	HasBest   bool
	Size      int64
}

// collectRuns scans dir for subdirectories carrying a run manifest.
// Directories without one are skipped, so stray files never break the
// listing. A missing dir just means no runs yet.
func collectRuns(dir string) ([]runInfo, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var runs []runInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		m, err := loadManifest(path)
		if err != nil {
			slog.Debug("skipping directory without run manifest", "dir", path)
			continue
		}

		info := runInfo{Name: entry.Name(), Dir: path, Manifest: m}
		if record, err := history.Load(filepath.Join(path, history.HistoryFile)); err == nil {
			info.Trials = record.Len()
			if best, ok := record.Best(); ok {
				info.BestValue = best.Value
				info.HasBest = true
			}
		}
		if size, err := getDirSize(path); err == nil {
			info.Size = size
		}
		runs = append(runs, info)
	}
	return runs, nil
}

func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := collectRuns(runsDir)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	slices.SortFunc(runs, func(a, b runInfo) int {
		return b.Manifest.CreatedAt.Compare(a.Manifest.CreatedAt)
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tOBJECTIVE\tALGORITHM\tTRIALS\tBEST\tSIZE\tCREATED")
	fmt.Fprintln(w, "----\t---------\t---------\t------\t----\t----\t-------")
	var total int64
	for _, r := range runs {
		best := "-"
		if r.HasBest {
			best = fmt.Sprintf("%.6g", r.BestValue)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.Name, r.Manifest.Objective, r.Manifest.Algorithm, r.Trials,
			best, humanize.Bytes(uint64(r.Size)), humanize.Time(r.Manifest.CreatedAt))
		total += r.Size
	}
	w.Flush()
	fmt.Printf("\nTotal: %d run(s), %s\n", len(runs), humanize.Bytes(uint64(total)))
	return nil
}

// selectRunsForDeletion unions the age and count criteria: runs older
// than olderThanDays days plus runs beyond the keepLast most recent,
// without listing any run twice.
func selectRunsForDeletion(runs []runInfo, keepLast, olderThanDays int) []runInfo {
	var doomed []runInfo
	seen := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, r := range runs {
			if r.Manifest.CreatedAt.Before(cutoff) {
				doomed = append(doomed, r)
				seen[r.Name] = true
			}
		}
	}

	if keepLast > 0 && len(runs) > keepLast {
		sorted := slices.Clone(runs)
		slices.SortFunc(sorted, func(a, b runInfo) int {
			return b.Manifest.CreatedAt.Compare(a.Manifest.CreatedAt)
		})
		for _, r := range sorted[keepLast:] {
			if !seen[r.Name] {
				doomed = append(doomed, r)
				seen[r.Name] = true
			}
		}
	}
	return doomed
}

func cleanRuns(cmd *cobra.Command, args []string) error {
	if cleanKeepLast == 0 && cleanOlderThan == 0 {
		return errors.New("specify --keep-last and/or --older-than")
	}

	runs, err := collectRuns(runsDir)
	if err != nil {
		return err
	}
	doomed := selectRunsForDeletion(runs, cleanKeepLast, cleanOlderThan)
	if len(doomed) == 0 {
		fmt.Println("Nothing to delete.")
		return nil
	}

	fmt.Printf("Will delete %d run(s):\n", len(doomed))
	for _, r := range doomed {
		fmt.Printf("  %s (%s, %s)\n", r.Name, humanize.Bytes(uint64(r.Size)), humanize.Time(r.Manifest.CreatedAt))
	}

	if !cleanForce {
		var response string
		fmt.Print("\nProceed with deletion? [y/N]: ")
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	var freed int64
	for _, r := range doomed {
		if err := os.RemoveAll(r.Dir); err != nil {
			slog.Warn("failed to delete run", "name", r.Name, "error", err)
			continue
		}
		deleted++
		freed += r.Size
	}
	fmt.Printf("Deleted %d run(s), freed %s.\n", deleted, humanize.Bytes(uint64(freed)))
	return nil
}
