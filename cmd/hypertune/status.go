package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusServerURL string

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Inspect jobs on a running server",
	Long: `Without arguments, lists the jobs known to the server. With a job ID,
shows that job's state, progress and best result.`,
	Args: cobra.MaximumNArgs(1),
	RunE: checkStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServerURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func checkStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs()
	}
	return showJob(args[0])
}

func listJobs() error {
	resp, err := http.Get(statusServerURL + "/api/v1/jobs")
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var jobs []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode job list: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tOBJECTIVE\tALGORITHM\tTRIALS\tBEST")
	fmt.Fprintln(w, "--\t-----\t---------\t---------\t------\t----")
	for _, job := range jobs {
		id, _ := job["id"].(string)
		if len(id) > 12 {
			id = id[:12] + "..."
		}
		state, _ := job["state"].(string)
		objective := "-"
		algorithm := "-"
		if config, ok := job["config"].(map[string]any); ok {
			if v, ok := config["objective"].(string); ok {
				objective = v
			}
			if v, ok := config["algorithm"].(string); ok {
				algorithm = v
			}
		}
		trials, _ := job["trials"].(float64)
		best := "-"
		if v, ok := job["bestValue"].(float64); ok && trials > 0 {
			best = fmt.Sprintf("%.6g", v)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\t%s\n", id, state, objective, algorithm, trials, best)
	}
	w.Flush()
	return nil
}

func showJob(jobID string) error {
	resp, err := http.Get(statusServerURL + "/api/v1/jobs/" + jobID)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var job map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return fmt.Errorf("failed to decode job status: %w", err)
	}

	fmt.Printf("Job:        %v\n", job["id"])
	fmt.Printf("State:      %v\n", job["state"])
	if config, ok := job["config"].(map[string]any); ok {
		fmt.Printf("Objective:  %v\n", config["objective"])
		fmt.Printf("Algorithm:  %v/%v\n", config["algorithm"], config["backend"])
	}
	trials, _ := job["trials"].(float64)
	fmt.Printf("Trials:     %.0f\n", trials)
	if trials > 0 {
		if v, ok := job["bestValue"].(float64); ok {
			fmt.Printf("Best:       %.6g\n", v)
		}
		if params, ok := job["bestParams"].(map[string]any); ok && len(params) > 0 {
			fmt.Printf("Params:     %v\n", params)
		}
	}
	if sec, ok := job["elapsed"].(float64); ok {
		fmt.Printf("Elapsed:    %s\n", time.Duration(sec*float64(time.Second)).Round(time.Millisecond))
	}
	if tps, ok := job["tps"].(float64); ok && tps > 0 {
		fmt.Printf("Rate:       %.1f trials/sec\n", tps)
	}
	if msg, ok := job["error"].(string); ok && msg != "" {
		fmt.Printf("Error:      %s\n", msg)
	}
	return nil
}
