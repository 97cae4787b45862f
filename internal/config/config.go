// Package config loads run and server defaults from a YAML file and
// CROTOSOLVE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/cwbudde/crotosolve/internal/landscape"
	"github.com/cwbudde/crotosolve/internal/opt"
)

// Config holds everything the CLI and server need to build an optimization.
type Config struct {
	Optimizers   []string  `mapstructure:"optimizers"`
	Budget       int       `mapstructure:"budget"`
	Threshold    float64   `mapstructure:"threshold"`
	Patience     int       `mapstructure:"patience"`
	Seed         int64     `mapstructure:"seed"`
	Parallelism  int       `mapstructure:"parallelism"`
	LearningRate float64   `mapstructure:"learning_rate"`
	PopSize      int       `mapstructure:"pop_size"`
	Landscape    Landscape `mapstructure:"landscape"`
	DataDir      string    `mapstructure:"data_dir"`
	Addr         string    `mapstructure:"addr"`
	LogLevel     string    `mapstructure:"log_level"`
}

// Landscape mirrors landscape.Config without its seed, which comes from Config.Seed.
type Landscape struct {
	SingleShape []int `mapstructure:"single_shape"`
	TwoShape    []int `mapstructure:"two_shape"`
	Terms       int   `mapstructure:"terms"`
}

// LandscapeConfig returns the landscape the config describes.
func (c *Config) LandscapeConfig() landscape.Config {
	return landscape.Config{
		Seed:        c.Seed,
		SingleShape: c.Landscape.SingleShape,
		TwoShape:    c.Landscape.TwoShape,
		Terms:       c.Landscape.Terms,
	}
}

// Settings returns strategy settings for opt.New.
func (c *Config) Settings() opt.Settings {
	s := opt.DefaultSettings()
	s.LearningRate = c.LearningRate
	s.PopSize = c.PopSize
	s.Seed = c.Seed
	s.Parallelism = c.Parallelism
	s.Patience = c.Patience
	return s
}

// Validate checks the values that can be checked without building anything.
func (c *Config) Validate() error {
	if len(c.Optimizers) == 0 {
		return fmt.Errorf("no optimizers configured")
	}
	for _, name := range c.Optimizers {
		if _, err := opt.New(name, c.Settings()); err != nil {
			return err
		}
	}
	if c.Budget < 0 {
		return fmt.Errorf("budget cannot be negative: %d", c.Budget)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("threshold cannot be negative: %g", c.Threshold)
	}
	if c.Patience < 1 {
		return fmt.Errorf("patience must be at least 1: %d", c.Patience)
	}
	return c.LandscapeConfig().Validate()
}

// setDefaults installs the built-in defaults on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("optimizers", []string{"crotosolve"})
	v.SetDefault("budget", 1000)
	v.SetDefault("threshold", 1e-6)
	v.SetDefault("patience", 1)
	v.SetDefault("seed", 42)
	v.SetDefault("parallelism", 1)
	v.SetDefault("learning_rate", 0.01)
	v.SetDefault("pop_size", 20)
	v.SetDefault("landscape.single_shape", []int{4})
	v.SetDefault("landscape.two_shape", []int{2})
	v.SetDefault("landscape.terms", 8)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("addr", "localhost:8080")
	v.SetDefault("log_level", "info")
}

// New returns a viper instance with defaults and environment binding, and
// reads path when it is not empty.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CROTOSOLVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals v into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &c, nil
}

// Load reads defaults, the optional file at path and the environment.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}
