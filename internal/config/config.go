// Package config loads run configurations for the CLI and client.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"phylon/internal/evo"
	"phylon/internal/objective"
	"phylon/internal/species"
	"phylon/internal/storage"
)

const EnvPrefix = "PHYLON_"

type OperatorConfig struct {
	Name   string     `yaml:"name" json:"name"`
	Rate   float64    `yaml:"rate,omitempty" json:"rate,omitempty"`
	Params evo.Params `yaml:"params,omitempty" json:"params,omitempty"`
}

type SpeciationConfig struct {
	// Distance is hamming, euclidean, cosine or default; empty disables
	// speciation.
	Distance  string  `yaml:"distance,omitempty" json:"distance,omitempty"`
	Threshold float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	MaxAge    int     `yaml:"max_age,omitempty" json:"max_age,omitempty"`
}

type FrontConfig struct {
	Min int `yaml:"min,omitempty" json:"min,omitempty"`
	Max int `yaml:"max,omitempty" json:"max,omitempty"`
}

type StopConfig struct {
	Generations int           `yaml:"generations" json:"generations"`
	Target      *float64      `yaml:"target,omitempty" json:"target,omitempty"`
	Duration    time.Duration `yaml:"duration,omitempty" json:"duration,omitempty"`
	Window      int           `yaml:"converge_window,omitempty" json:"converge_window,omitempty"`
	Epsilon     float64       `yaml:"converge_epsilon,omitempty" json:"converge_epsilon,omitempty"`
}

// RunConfig is the file and environment view of one engine run.
type RunConfig struct {
	Problem           string           `yaml:"problem" json:"problem"`
	Dimensions        int              `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
	Population        int              `yaml:"population" json:"population"`
	OffspringFraction float64          `yaml:"offspring_fraction" json:"offspring_fraction"`
	Seed              int64            `yaml:"seed" json:"seed"`
	Workers           int              `yaml:"workers" json:"workers"`
	MaxPhenotypeAge   int              `yaml:"max_phenotype_age,omitempty" json:"max_phenotype_age,omitempty"`
	SurvivorSelector  OperatorConfig   `yaml:"survivor_selector,omitempty" json:"survivor_selector,omitempty"`
	OffspringSelector OperatorConfig   `yaml:"offspring_selector,omitempty" json:"offspring_selector,omitempty"`
	Alterers          []OperatorConfig `yaml:"alterers,omitempty" json:"alterers,omitempty"`
	Replacement       string           `yaml:"replacement" json:"replacement"`
	Speciation        SpeciationConfig `yaml:"speciation,omitempty" json:"speciation,omitempty"`
	Front             FrontConfig      `yaml:"front,omitempty" json:"front,omitempty"`
	Stop              StopConfig       `yaml:"stop" json:"stop"`
	Store             string           `yaml:"store" json:"store"`
	DBPath            string           `yaml:"db_path,omitempty" json:"db_path,omitempty"`
}

func Default() RunConfig {
	return RunConfig{
		Problem:           "onemax",
		Population:        100,
		OffspringFraction: 0.8,
		Seed:              1,
		Workers:           1,
		Replacement:       "encode",
		Stop:              StopConfig{Generations: 100},
		Store:             storage.DefaultStoreKind(),
		DBPath:            "phylon.db",
	}
}

// Load applies defaults, then the file at path when path is not empty, then
// PHYLON_* environment overrides, and validates the result.
func Load(path string) (RunConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return RunConfig{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return RunConfig{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return RunConfig{}, fmt.Errorf("apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c RunConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides fields from PHYLON_* variables found by lookup.
func (c *RunConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"POPULATION", &c.Population},
		{"WORKERS", &c.Workers},
		{"GENERATIONS", &c.Stop.Generations},
		{"DIMENSIONS", &c.Dimensions},
	}
	for _, item := range ints {
		raw, ok := lookup(EnvPrefix + item.key)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, item.key, err)
		}
		*item.dst = v
	}

	if raw, ok := lookup(EnvPrefix + "SEED"); ok && raw != "" {
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("%sSEED: %w", EnvPrefix, err)
		}
		c.Seed = v
	}
	if raw, ok := lookup(EnvPrefix + "PROBLEM"); ok && raw != "" {
		c.Problem = raw
	}
	if raw, ok := lookup(EnvPrefix + "STORE"); ok && raw != "" {
		c.Store = raw
	}
	if raw, ok := lookup(EnvPrefix + "DB_PATH"); ok && raw != "" {
		c.DBPath = raw
	}
	return nil
}

func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.Problem) == "" {
		return fmt.Errorf("problem is required")
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("dimensions must be >= 0")
	}
	if c.Population <= 0 {
		return fmt.Errorf("population must be > 0")
	}
	if c.OffspringFraction <= 0 || c.OffspringFraction > 1 {
		return fmt.Errorf("offspring fraction must be in (0,1], got %f", c.OffspringFraction)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.MaxPhenotypeAge < 0 {
		return fmt.Errorf("max phenotype age must be >= 0")
	}
	for i, a := range c.Alterers {
		if a.Name == "" {
			return fmt.Errorf("alterer %d: name is required", i)
		}
		if a.Rate < 0 || a.Rate > 1 {
			return fmt.Errorf("alterer %s: rate must be in [0,1]", a.Name)
		}
	}
	if c.Speciation.Distance != "" {
		if _, err := c.distance(nil); err != nil {
			return err
		}
		if c.Speciation.Threshold < 0 || c.Speciation.Threshold > 1 {
			return fmt.Errorf("species threshold must be in [0,1]")
		}
	}
	if c.Speciation.MaxAge < 0 {
		return fmt.Errorf("species max age must be >= 0")
	}
	if c.Front != (FrontConfig{}) && (c.Front.Min <= 0 || c.Front.Max < c.Front.Min) {
		return fmt.Errorf("front range [%d,%d] is invalid", c.Front.Min, c.Front.Max)
	}
	if c.Stop.Generations <= 0 && c.Stop.Target == nil && c.Stop.Duration <= 0 && c.Stop.Window <= 0 {
		return fmt.Errorf("at least one stop condition is required")
	}
	if c.Stop.Generations < 0 || c.Stop.Duration < 0 || c.Stop.Window < 0 || c.Stop.Epsilon < 0 {
		return fmt.Errorf("stop conditions must be >= 0")
	}
	switch c.Store {
	case "", "memory":
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("db path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store)
	}
	return nil
}

// Operators are the engine components named by a RunConfig. Nil fields
// leave the choice to the caller's defaults.
type Operators struct {
	SurvivorSelector  evo.Selector
	OffspringSelector evo.Selector
	Alterers          []evo.Alterer
	Replacement       evo.Replacement
	Distance          species.Distance
}

// Operators resolves every named operator through the evo registries.
// fallbackDistance is used when speciation asks for the default distance.
func (c RunConfig) Operators(fallbackDistance species.Distance) (Operators, error) {
	var ops Operators
	var err error
	if c.SurvivorSelector.Name != "" {
		if ops.SurvivorSelector, err = evo.ResolveSelector(c.SurvivorSelector.Name, c.SurvivorSelector.Params); err != nil {
			return Operators{}, fmt.Errorf("survivor selector: %w", err)
		}
	}
	if c.OffspringSelector.Name != "" {
		if ops.OffspringSelector, err = evo.ResolveSelector(c.OffspringSelector.Name, c.OffspringSelector.Params); err != nil {
			return Operators{}, fmt.Errorf("offspring selector: %w", err)
		}
	}
	for _, a := range c.Alterers {
		alterer, err := evo.ResolveAlterer(a.Name, a.Rate, a.Params)
		if err != nil {
			return Operators{}, fmt.Errorf("alterer: %w", err)
		}
		ops.Alterers = append(ops.Alterers, alterer)
	}
	if c.Replacement != "" {
		if ops.Replacement, err = evo.ResolveReplacement(c.Replacement); err != nil {
			return Operators{}, fmt.Errorf("replacement: %w", err)
		}
	}
	if ops.Distance, err = c.distance(fallbackDistance); err != nil {
		return Operators{}, err
	}
	return ops, nil
}

func (c RunConfig) distance(fallback species.Distance) (species.Distance, error) {
	switch strings.ToLower(c.Speciation.Distance) {
	case "":
		return nil, nil
	case "default":
		return fallback, nil
	case "hamming":
		return species.HammingDistance{}, nil
	case "euclidean":
		return species.EuclideanDistance{}, nil
	case "cosine":
		return species.CosineDistance{}, nil
	default:
		return nil, fmt.Errorf("unknown distance: %s", c.Speciation.Distance)
	}
}

// Limits turns the stop section into engine limits for a first score
// channel optimized in direction.
func (c RunConfig) Limits(direction objective.Optimize) []evo.Limit {
	var limits []evo.Limit
	if c.Stop.Generations > 0 {
		limits = append(limits, evo.UntilGeneration(c.Stop.Generations))
	}
	if c.Stop.Target != nil {
		limits = append(limits, evo.UntilScore(direction, *c.Stop.Target))
	}
	if c.Stop.Duration > 0 {
		limits = append(limits, evo.UntilDuration(c.Stop.Duration))
	}
	if c.Stop.Window > 0 {
		limits = append(limits, evo.UntilConverged(c.Stop.Window, c.Stop.Epsilon))
	}
	return limits
}
