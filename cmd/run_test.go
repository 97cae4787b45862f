package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/cwbudde/crotosolve/internal/config"
	"github.com/cwbudde/crotosolve/internal/opt"
	"github.com/cwbudde/crotosolve/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	c.Budget = 300
	c.Landscape.SingleShape = []int{3}
	c.Landscape.TwoShape = []int{1}
	c.Landscape.Terms = 4
	return c
}

func TestBenchmark_AllOptimizers(t *testing.T) {
	c := testConfig(t)
	c.Optimizers = opt.Names()

	run, err := benchmark(c, 5)
	if err != nil {
		t.Fatalf("benchmark failed: %v", err)
	}

	if len(run.Results) != len(c.Optimizers) {
		t.Fatalf("Expected %d results, got %d", len(c.Optimizers), len(run.Results))
	}

	var initial float64
	for i, name := range run.Optimizers() {
		o := run.Results[name]
		if final, _ := o.Trace.Final(); final.Evaluations > c.Budget {
			t.Errorf("%s: trace ends at %d evaluations, budget %d", name, final.Evaluations, c.Budget)
		}
		// Every optimizer starts from the same point
		if i == 0 {
			initial = o.Trace[0].Cost
		} else if o.Trace[0].Cost != initial {
			t.Errorf("%s: initial cost %g differs from %g", name, o.Trace[0].Cost, initial)
		}
	}

	if err := run.Validate(); err != nil {
		t.Errorf("Benchmark run should validate: %v", err)
	}

	var buf bytes.Buffer
	printSummary(&buf, run)
	for _, name := range c.Optimizers {
		if !strings.Contains(buf.String(), name) {
			t.Errorf("Summary should mention %s:\n%s", name, buf.String())
		}
	}
}

func TestBenchmark_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Optimizers = []string{"simplex"}

	if _, err := benchmark(c, 1); err == nil {
		t.Error("Expected error for unknown optimizer")
	}
}

func TestPersistRun(t *testing.T) {
	c := testConfig(t)
	run, err := benchmark(c, 5)
	if err != nil {
		t.Fatalf("benchmark failed: %v", err)
	}

	dir := t.TempDir()
	if err := persistRun(dir, run); err != nil {
		t.Fatalf("persistRun failed: %v", err)
	}

	runStore, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	loaded, err := runStore.LoadRun(run.ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.Budget != c.Budget {
		t.Errorf("Expected budget %d, got %d", c.Budget, loaded.Budget)
	}
	if _, err := os.Stat(store.TracePath(dir, run.ID, "crotosolve")); err != nil {
		t.Errorf("Trace file should exist: %v", err)
	}
}

func TestApplyRunFlags(t *testing.T) {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.AddFlagSet(runCmd.Flags())

	c := testConfig(t)
	if err := flags.Parse([]string{"--budget", "77", "--optimizers", "adam,mayfly", "--single-shape", "2,2", "--patience", "3"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	defer func() {
		budget = 1000
		optimizers = []string{"crotosolve"}
		singleShape = []int{4}
		patience = 1
	}()

	applyRunFlags(flags, c)

	if c.Budget != 77 {
		t.Errorf("Expected budget 77, got %d", c.Budget)
	}
	if strings.Join(c.Optimizers, ",") != "adam,mayfly" {
		t.Errorf("Expected optimizers adam,mayfly, got %v", c.Optimizers)
	}
	if c.Patience != 3 {
		t.Errorf("Expected patience 3, got %d", c.Patience)
	}
	if len(c.Landscape.SingleShape) != 2 {
		t.Errorf("Expected single shape [2 2], got %v", c.Landscape.SingleShape)
	}
	// Unset flags leave the config alone
	if c.Landscape.Terms != 4 {
		t.Errorf("Expected terms to stay 4, got %d", c.Landscape.Terms)
	}
}
