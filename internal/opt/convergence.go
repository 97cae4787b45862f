package opt

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when successive cost values count as converged
type ConvergenceConfig struct {
	// Threshold is the largest absolute cost change that still counts as stale
	Threshold float64

	// Patience is the number of consecutive stale steps before stopping.
	// Values below 1 are treated as 1.
	Patience int
}

// ConvergenceTracker tracks the best cost and detects when optimization has converged
type ConvergenceTracker struct {
	config     ConvergenceConfig
	bestCost   float64
	staleCount int
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	if config.Patience < 1 {
		config.Patience = 1
	}
	return &ConvergenceTracker{
		config:   config,
		bestCost: math.Inf(1),
	}
}

// Check records the cost after a step and reports whether the change from the
// cost before the step marks convergence.
func (c *ConvergenceTracker) Check(before, after float64) bool {
	if after < c.bestCost {
		c.bestCost = after
	}

	change := math.Abs(after - before)
	if change > c.config.Threshold {
		c.staleCount = 0
		slog.Debug("Cost still changing",
			"cost", after,
			"change", change,
		)
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"change", change,
			"threshold", c.config.Threshold,
			"best_cost", c.bestCost,
		)
		return true
	}
	return false
}

// BestCost returns the best cost seen so far
func (c *ConvergenceTracker) BestCost() float64 {
	return c.bestCost
}
