// Package config provides configuration loading and structs for the kbc CLI.
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cnclabs/kbc/internal/inverse"
	"github.com/cnclabs/kbc/internal/models"
	"github.com/cnclabs/kbc/internal/nearest"
	"github.com/cnclabs/kbc/internal/ranking"
	"github.com/cnclabs/kbc/internal/regularizers"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Model   ModelConfig   `yaml:"model"`
	Ranking RankingConfig `yaml:"ranking"`
	Inverse InverseConfig `yaml:"inverse"`
}

// ModelConfig holds settings for freshly initialised models.
type ModelConfig struct {
	Variant  string  `yaml:"variant"`
	Rank     int     `yaml:"rank"`
	InitSize float64 `yaml:"init_size"`
	Seed     int64   `yaml:"seed"`
}

// RankingConfig holds filtered ranking settings.
type RankingConfig struct {
	BatchSize int `yaml:"batch_size"`
	// ChunkSize <= 0 scores all candidates at once.
	ChunkSize int `yaml:"chunk_size"`
	// MaskValue defaults to -Inf when unset; write -.inf for it explicitly.
	MaskValue *float64 `yaml:"mask_value"`
	Hits      []int    `yaml:"hits"`
	Direction string   `yaml:"direction"`
}

// InverseConfig holds inverse query settings. Tolerance and
// RegularizerWeight are pointers so that an explicit 0 survives defaulting.
type InverseConfig struct {
	MaxSteps          int      `yaml:"max_steps"`
	StepSize          float64  `yaml:"step_size"`
	Candidates        int      `yaml:"candidates"`
	Metric            string   `yaml:"metric"`
	Strategy          string   `yaml:"strategy"`
	Tolerance         *float64 `yaml:"tolerance"`
	InitScale         float64  `yaml:"init_scale"`
	Placement         string   `yaml:"placement"`
	MaxCopyBytes      int64    `yaml:"max_copy_bytes"`
	Regularizer       string   `yaml:"regularizer"`
	RegularizerWeight *float64 `yaml:"regularizer_weight"`
	CacheSize         int      `yaml:"cache_size"`
	Seed              int64    `yaml:"seed"`
}

// Load reads and parses the config file at path, applies defaults and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate parses every named setting once so that bad names fail at load time.
func (c *Config) Validate() error {
	if _, err := models.ParseVariant(c.Model.Variant); err != nil {
		return fmt.Errorf("model.variant: %w", err)
	}
	if c.Model.Rank <= 0 {
		return fmt.Errorf("model.rank must be positive, got %d", c.Model.Rank)
	}
	if c.Ranking.BatchSize <= 0 {
		return fmt.Errorf("ranking.batch_size must be positive, got %d", c.Ranking.BatchSize)
	}
	if _, err := ranking.ParseDirection(c.Ranking.Direction); err != nil {
		return fmt.Errorf("ranking.direction: %w", err)
	}
	if _, err := c.Solver(); err != nil {
		return err
	}
	if _, err := c.Penalty(); err != nil {
		return fmt.Errorf("inverse.regularizer: %w", err)
	}
	if c.Inverse.CacheSize <= 0 {
		return fmt.Errorf("inverse.cache_size must be positive, got %d", c.Inverse.CacheSize)
	}
	return nil
}

// Variant returns the configured model variant.
func (c *Config) Variant() (models.Variant, error) {
	return models.ParseVariant(c.Model.Variant)
}

// Solver converts the inverse section into solver settings.
func (c *Config) Solver() (inverse.Config, error) {
	in := c.Inverse
	metric, err := nearest.ParseMetric(in.Metric)
	if err != nil {
		return inverse.Config{}, fmt.Errorf("inverse.metric: %w", err)
	}
	strategy, err := nearest.ParseStrategy(in.Strategy)
	if err != nil {
		return inverse.Config{}, fmt.Errorf("inverse.strategy: %w", err)
	}
	placement, err := inverse.ParsePlacement(in.Placement)
	if err != nil {
		return inverse.Config{}, fmt.Errorf("inverse.placement: %w", err)
	}
	return inverse.Config{
		MaxSteps:     in.MaxSteps,
		StepSize:     in.StepSize,
		Candidates:   in.Candidates,
		Metric:       metric,
		Strategy:     strategy,
		Tolerance:    valueOr(in.Tolerance, 0),
		InitScale:    in.InitScale,
		Placement:    placement,
		MaxCopyBytes: in.MaxCopyBytes,
		Seed:         in.Seed,
	}, nil
}

// Penalty builds the regularizer applied during the inverse search.
func (c *Config) Penalty() (regularizers.Regularizer, error) {
	return regularizers.New(c.Inverse.Regularizer, valueOr(c.Inverse.RegularizerWeight, 0))
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// NewRanker builds a ranker from the ranking section.
func (c *Config) NewRanker(logger *zap.Logger) *ranking.Ranker {
	r := ranking.NewRanker(logger)
	r.BatchSize = c.Ranking.BatchSize
	r.ChunkSize = c.Ranking.ChunkSize
	r.MaskValue = valueOr(c.Ranking.MaskValue, r.MaskValue)
	return r
}
