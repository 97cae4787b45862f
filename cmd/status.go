package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

// jobSummary holds the fields of a job the status command prints
type jobSummary struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	InitialCost float64    `json:"initialCost"`
	BestCost    float64    `json:"bestCost"`
	Evaluations int        `json:"evaluations"`
	Iterations  int        `json:"iterations"`
	Converged   bool       `json:"converged"`
	RunID       string     `json:"runId"`
	Elapsed     float64    `json:"elapsed"`
	EPS         float64    `json:"eps"`
	Error       string     `json:"error"`
	Config      jobOptions `json:"config"`
}

type jobOptions struct {
	Optimizer string  `json:"optimizer"`
	Budget    int     `json:"budget"`
	Threshold float64 `json:"threshold"`
	Landscape struct {
		Seed        int64 `json:"seed"`
		SingleShape []int `json:"single_shape"`
		TwoShape    []int `json:"two_shape"`
		Terms       int   `json:"terms"`
	} `json:"landscape"`
}

func fetchJSON(url string, v interface{}) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(out io.Writer, url string) error {
	var jobs []jobSummary
	if _, err := fetchJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Optimizer: %s\n", job.Config.Optimizer)
		fmt.Fprintf(out, "  Budget: %d\n", job.Config.Budget)
		if job.Evaluations > 0 {
			fmt.Fprintf(out, "  Cost: %.6f -> %.6f\n", job.InitialCost, job.BestCost)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func getJobStatus(out io.Writer, url, jobID string) error {
	var status jobSummary
	code, err := fetchJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintln(out)

	config := status.Config
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Optimizer: %s\n", config.Optimizer)
	fmt.Fprintf(out, "  Budget: %d\n", config.Budget)
	fmt.Fprintf(out, "  Threshold: %g\n", config.Threshold)
	fmt.Fprintf(out, "  Landscape: seed %d, single %v, two %v, %d terms\n",
		config.Landscape.Seed, config.Landscape.SingleShape, config.Landscape.TwoShape, config.Landscape.Terms)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Evaluations: %d\n", status.Evaluations)
	if status.Evaluations > 0 {
		fmt.Fprintf(out, "  Initial Cost: %.6f\n", status.InitialCost)
		fmt.Fprintf(out, "  Best Cost: %.6f\n", status.BestCost)
		fmt.Fprintf(out, "  Improvement: %.6f\n", status.InitialCost-status.BestCost)
	}
	if status.Iterations > 0 {
		fmt.Fprintf(out, "  Iterations: %d (converged: %t)\n", status.Iterations, status.Converged)
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.EPS > 0 {
		fmt.Fprintf(out, "  Throughput: %.0f evals/sec\n", status.EPS)
	}

	if status.RunID != "" {
		fmt.Fprintf(out, "  Saved as run: %s\n", status.RunID)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}

	return nil
}
