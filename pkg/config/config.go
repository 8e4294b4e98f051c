package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Interaction modes.
const (
	InteractionOff      = 0
	InteractionDistinct = 1 // only pairs of distinct exposures
	InteractionAll      = 2 // including self-pairs
)

// Shrinkage modes.
const (
	ShrinkageOff      = 0
	ShrinkageExposure = 1 // per-exposure and per-pair-of-exposures scales only
	ShrinkageTreePair = 2 // per-tree-pair scale only
	ShrinkageAll      = 3
)

type TreePrior struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
	Beta  float64 `json:"beta" yaml:"beta"`
}

// Config holds every tunable of one sampler run.
type Config struct {
	Iterations int `json:"iterations" yaml:"iterations"`
	Burn       int `json:"burn" yaml:"burn"`
	Thin       int `json:"thin" yaml:"thin"`
	Trees      int `json:"trees" yaml:"trees"`

	// Proposal probabilities over grow, prune, change, switch-exposure.
	StepProb [4]float64 `json:"stepProb" yaml:"stepProb"`

	TreePrior TreePrior `json:"treePrior" yaml:"treePrior"`

	// gaussian, binomial or zinb.
	Family string `json:"family" yaml:"family"`

	Interaction int `json:"interaction" yaml:"interaction"`
	Shrinkage   int `json:"shrinkage" yaml:"shrinkage"`

	// Dirichlet concentration for the exposure-selection update. Negative
	// switches to adaptive mode (starts at 1).
	MixKappa float64 `json:"mixKappa" yaml:"mixKappa"`

	Seed uint64 `json:"seed" yaml:"seed"`

	Verbose     bool `json:"verbose" yaml:"verbose"`
	Diagnostics bool `json:"diagnostics" yaml:"diagnostics"`
}

// Default returns a runnable configuration for a Gaussian model.
func Default() Config {
	return Config{
		Iterations: 2000,
		Burn:       1000,
		Thin:       2,
		Trees:      20,
		StepProb:   [4]float64{0.25, 0.25, 0.25, 0.25},
		TreePrior:  TreePrior{Alpha: 0.95, Beta: 2},
		Family:     "gaussian",
		MixKappa:   1,
		Seed:       1,
	}
}

func (c *Config) Validate() error {
	var err error
	if c.Iterations <= 0 {
		err = multierr.Append(err, errors.New("iterations must be positive"))
	}
	if c.Burn < 0 {
		err = multierr.Append(err, errors.New("burn must be non-negative"))
	}
	if c.Thin <= 0 || (c.Iterations > 0 && c.Iterations%c.Thin != 0) {
		err = multierr.Append(err, errors.New("thin must be positive and divide iterations"))
	}
	if c.Trees <= 0 {
		err = multierr.Append(err, errors.New("trees must be positive"))
	}

	sum := 0.0
	for _, p := range c.StepProb {
		if p < 0 {
			err = multierr.Append(err, errors.New("step probabilities must be non-negative"))
			break
		}
		sum += p
	}
	if sum <= 0 {
		err = multierr.Append(err, errors.New("step probabilities must have positive mass"))
	}

	if c.TreePrior.Alpha <= 0 || c.TreePrior.Alpha >= 1 {
		err = multierr.Append(err, errors.New("tree prior alpha must be in (0, 1)"))
	}
	if c.TreePrior.Beta < 0 {
		err = multierr.Append(err, errors.New("tree prior beta must be non-negative"))
	}

	switch c.Family {
	case "gaussian", "binomial", "zinb":
	default:
		err = multierr.Append(err, errors.Errorf("unknown family %q", c.Family))
	}

	if c.Interaction < InteractionOff || c.Interaction > InteractionAll {
		err = multierr.Append(err, errors.Errorf("interaction mode must be 0, 1 or 2, got %d", c.Interaction))
	}
	if c.Shrinkage < ShrinkageOff || c.Shrinkage > ShrinkageAll {
		err = multierr.Append(err, errors.Errorf("shrinkage mode must be 0..3, got %d", c.Shrinkage))
	}
	return err
}

// Load reads a YAML/JSON config file, with defaults applied for unset keys.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	c := Default()
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
