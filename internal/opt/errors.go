package opt

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFiniteCost is returned when the cost function yields NaN or ±Inf.
// No strategy can make progress from such a value, so the run stops.
var ErrNonFiniteCost = errors.New("cost is not finite")

func finite(c float64) bool {
	return !math.IsNaN(c) && !math.IsInf(c, 0)
}

// InvalidArgumentError is returned when a strategy is configured with an
// out-of-range hyper-parameter.
type InvalidArgumentError struct {
	Name    string      // name of the argument, e.g. "eta"
	Value   interface{} // the rejected value
	Message string      // optional explanation
}

func (err *InvalidArgumentError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for argument %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for argument %q; %s", err.Value, err.Name, err.Message)
}

// UnknownOptimizerError is returned by New for a name with no registered strategy.
type UnknownOptimizerError struct {
	Name string
}

func (err *UnknownOptimizerError) Error() string {
	return fmt.Sprintf("unknown optimizer %q", err.Name)
}
