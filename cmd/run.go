package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cwbudde/crotosolve/internal/config"
	"github.com/cwbudde/crotosolve/internal/landscape"
	"github.com/cwbudde/crotosolve/internal/metrics"
	"github.com/cwbudde/crotosolve/internal/opt"
	"github.com/cwbudde/crotosolve/internal/store"
)

var (
	optimizers   []string
	budget       int
	threshold    float64
	patience     int
	seed         int64
	paramsSeed   int64
	singleShape  []int
	twoShape     []int
	terms        int
	parallelism  int
	learningRate float64
	popSize      int
	saveRun      bool
	runDataDir   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run optimizers on a synthetic landscape",
	Long: `Builds a seeded landscape, runs every selected optimizer from the same
random initial parameters with the same evaluation budget, and prints a summary.
With --save the run and its traces are written to the data directory.`,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringSliceVar(&optimizers, "optimizers", []string{"crotosolve"}, "Optimizers to run: "+fmt.Sprint(opt.Names()))
	runCmd.Flags().IntVar(&budget, "budget", 1000, "Cost-evaluation budget per optimizer")
	runCmd.Flags().Float64Var(&threshold, "threshold", 1e-6, "Convergence threshold")
	runCmd.Flags().IntVar(&patience, "patience", 1, "Consecutive stale sweeps before stopping")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Landscape and optimizer random seed")
	runCmd.Flags().Int64Var(&paramsSeed, "params-seed", 0, "Seed for the initial parameters (0 = same as --seed)")
	runCmd.Flags().IntSliceVar(&singleShape, "single-shape", []int{4}, "Shape of the SingleFrequency parameter array")
	runCmd.Flags().IntSliceVar(&twoShape, "two-shape", []int{2}, "Shape of the TwoFrequency parameter array")
	runCmd.Flags().IntVar(&terms, "terms", 8, "Number of product terms in the landscape")
	runCmd.Flags().IntVar(&parallelism, "parallelism", 1, "Concurrent sample evaluations during reconstruction")
	runCmd.Flags().Float64Var(&learningRate, "lr", 0.01, "Learning rate for gradient baselines")
	runCmd.Flags().IntVar(&popSize, "pop", 20, "Population size for mayfly")
	runCmd.Flags().BoolVar(&saveRun, "save", false, "Persist the run and its traces")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Base directory for saved runs (default from config)")

	rootCmd.AddCommand(runCmd)
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(flags *pflag.FlagSet, c *config.Config) {
	if flags.Changed("optimizers") {
		c.Optimizers = optimizers
	}
	if flags.Changed("budget") {
		c.Budget = budget
	}
	if flags.Changed("threshold") {
		c.Threshold = threshold
	}
	if flags.Changed("patience") {
		c.Patience = patience
	}
	if flags.Changed("seed") {
		c.Seed = seed
	}
	if flags.Changed("single-shape") {
		c.Landscape.SingleShape = singleShape
	}
	if flags.Changed("two-shape") {
		c.Landscape.TwoShape = twoShape
	}
	if flags.Changed("terms") {
		c.Landscape.Terms = terms
	}
	if flags.Changed("parallelism") {
		c.Parallelism = parallelism
	}
	if flags.Changed("lr") {
		c.LearningRate = learningRate
	}
	if flags.Changed("pop") {
		c.PopSize = popSize
	}
	if flags.Changed("data-dir") {
		c.DataDir = runDataDir
	}
}

func runOptimization(cmd *cobra.Command, args []string) error {
	c, err := currentConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd.Flags(), c)

	initialSeed := paramsSeed
	if initialSeed == 0 {
		initialSeed = c.Seed
	}

	run, err := benchmark(c, initialSeed)
	if err != nil {
		return err
	}

	printSummary(os.Stdout, run)

	if saveRun {
		if err := persistRun(c.DataDir, run); err != nil {
			return err
		}
		fmt.Printf("\nSaved run %s to %s\n", run.ID, c.DataDir)
	}
	return nil
}

// benchmark runs every configured optimizer from the same initial vector and
// collects the results in a single run record.
func benchmark(c *config.Config, initialSeed int64) (*store.Run, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := landscape.New(c.LandscapeConfig())
	if err != nil {
		return nil, err
	}
	initial := l.RandomParams(initialSeed)
	run := store.NewRun(c.LandscapeConfig(), initial, c.Budget, c.Threshold)

	slog.Info("Starting benchmark",
		"run_id", run.ID,
		"optimizers", c.Optimizers,
		"budget", c.Budget,
		"single_shape", c.Landscape.SingleShape,
		"two_shape", c.Landscape.TwoShape,
	)

	for _, name := range c.Optimizers {
		optimizer, err := opt.New(name, c.Settings())
		if err != nil {
			return nil, err
		}

		task := opt.Task{
			Function:  l,
			Initial:   initial,
			Budget:    c.Budget,
			Threshold: c.Threshold,
		}

		start := time.Now()
		result, err := optimizer.Run(task)
		elapsed := time.Since(start)
		if err != nil {
			metrics.RecordFailure(name, metrics.OutcomeFailed)
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		final, _ := result.Trace.Final()
		metrics.RecordRun(name, result.Evaluations, final.Cost, result.Converged, elapsed)
		run.AddResult(name, result, elapsed)
	}
	return run, nil
}

// persistRun saves the run record and one trace file per optimizer.
func persistRun(dataDir string, run *store.Run) error {
	fs, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	if err := fs.SaveRun(run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	for _, name := range run.Optimizers() {
		if err := store.WriteTrace(fs.BaseDir(), run.ID, name, run.Results[name].Trace); err != nil {
			return fmt.Errorf("failed to write trace for %s: %w", name, err)
		}
	}
	return nil
}

// printSummary writes one row per optimizer.
func printSummary(out io.Writer, run *store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPTIMIZER\tEVALS\tITERS\tINITIAL\tFINAL\tBEST\tCONVERGED\tTIME")
	fmt.Fprintln(w, "---------\t-----\t-----\t-------\t-----\t----\t---------\t----")

	for _, name := range run.Optimizers() {
		o := run.Results[name]
		initial := o.Trace[0].Cost
		final, _ := o.Trace.Final()
		best, _ := o.Trace.Best()
		fmt.Fprintf(w, "%s\t%d\t%d\t%.6f\t%.6f\t%.6f\t%t\t%s\n",
			name,
			o.Evaluations,
			o.Iterations,
			initial,
			final.Cost,
			best.Cost,
			o.Converged,
			o.Duration.Round(time.Microsecond),
		)
	}
	w.Flush()

	if name, cost, ok := run.Best(); ok {
		fmt.Fprintf(out, "\nBest: %s (%.6f)\n", name, cost)
	}
}
