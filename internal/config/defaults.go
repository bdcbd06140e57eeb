package config

import (
	"github.com/cnclabs/kbc/internal/inverse"
	"github.com/cnclabs/kbc/internal/ranking"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Model.Variant == "" {
		cfg.Model.Variant = "complex"
	}
	if cfg.Model.Rank == 0 {
		cfg.Model.Rank = 100
	}
	if cfg.Model.InitSize == 0 {
		cfg.Model.InitSize = 1e-3
	}
	if cfg.Model.Seed == 0 {
		cfg.Model.Seed = 1
	}

	if cfg.Ranking.BatchSize == 0 {
		cfg.Ranking.BatchSize = ranking.DefaultBatchSize
	}
	if cfg.Ranking.ChunkSize == 0 {
		cfg.Ranking.ChunkSize = -1
	}
	if cfg.Ranking.Hits == nil {
		cfg.Ranking.Hits = append([]int(nil), ranking.DefaultHits...)
	}
	if cfg.Ranking.Direction == "" {
		cfg.Ranking.Direction = "both"
	}

	def := inverse.DefaultConfig()
	in := &cfg.Inverse
	if in.MaxSteps == 0 {
		in.MaxSteps = def.MaxSteps
	}
	if in.StepSize == 0 {
		in.StepSize = def.StepSize
	}
	if in.Candidates == 0 {
		in.Candidates = def.Candidates
	}
	if in.Metric == "" {
		in.Metric = def.Metric.String()
	}
	if in.Strategy == "" {
		in.Strategy = def.Strategy.String()
	}
	if in.Tolerance == nil {
		in.Tolerance = &def.Tolerance
	}
	if in.InitScale == 0 {
		in.InitScale = def.InitScale
	}
	if in.Placement == "" {
		in.Placement = def.Placement.String()
	}
	if in.Regularizer == "" {
		in.Regularizer = "n3"
	}
	if in.RegularizerWeight == nil {
		weight := 1e-2
		in.RegularizerWeight = &weight
	}
	if in.CacheSize == 0 {
		in.CacheSize = 128
	}
	if in.Seed == 0 {
		in.Seed = def.Seed
	}
}
