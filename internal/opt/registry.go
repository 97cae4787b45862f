package opt

import "sort"

// Settings configures any registered strategy. Fields a strategy does not use are ignored.
type Settings struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	PopSize      int
	Seed         int64
	Parallelism  int
	Patience     int
	OnWarning    WarningHandler
	Observer     Observer
}

// DefaultSettings returns the hyper-parameters the baselines are usually compared with.
func DefaultSettings() Settings {
	return Settings{
		LearningRate: 0.01,
		Beta1:        0.9,
		Beta2:        0.99,
		PopSize:      mayflyMinPop,
		Seed:         42,
		Patience:     1,
	}
}

type factory func(Settings) (Optimizer, error)

var registry = map[string]factory{
	"crotosolve": func(s Settings) (Optimizer, error) {
		return &Crotosolve{Parallelism: s.Parallelism, Patience: s.Patience, OnWarning: s.OnWarning, Observer: s.Observer}, nil
	},
	"rotosolve": func(s Settings) (Optimizer, error) {
		return &Rotosolve{Parallelism: s.Parallelism, Patience: s.Patience, OnWarning: s.OnWarning, Observer: s.Observer}, nil
	},
	"gradient-descent": func(s Settings) (Optimizer, error) {
		g, err := NewGradientDescent(s.LearningRate)
		if err != nil {
			return nil, err
		}
		g.Patience = s.Patience
		g.Observer = s.Observer
		return g, nil
	},
	"adam": func(s Settings) (Optimizer, error) {
		g, err := NewAdamOptimizer(s.LearningRate, s.Beta1, s.Beta2)
		if err != nil {
			return nil, err
		}
		g.Patience = s.Patience
		g.Observer = s.Observer
		return g, nil
	},
	"adagrad": func(s Settings) (Optimizer, error) {
		g, err := NewAdagradOptimizer(s.LearningRate)
		if err != nil {
			return nil, err
		}
		g.Patience = s.Patience
		g.Observer = s.Observer
		return g, nil
	},
	"mayfly": func(s Settings) (Optimizer, error) {
		m, err := NewMayfly(s.PopSize, s.Seed)
		if err != nil {
			return nil, err
		}
		m.Observer = s.Observer
		return m, nil
	},
}

// New creates the named strategy.
func New(name string, s Settings) (Optimizer, error) {
	f, ok := registry[name]
	if !ok {
		return nil, &UnknownOptimizerError{Name: name}
	}
	return f(s)
}

// Names lists the registered strategies in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
