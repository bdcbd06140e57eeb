package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cnclabs/kbc/internal/inverse"
)

var (
	queryHeads     []string
	queryRelations []string
	querySnapshot  string
	queryTop       int
	queryMetric    string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Answer (head, relation, ?) by inverse search",
	Long: `Search embedding space for the object that maximises the model score of
(head, relation, object) and report the nearest known entities.

--head and --relation are paired in order and may be repeated.

Examples:
  kbc query --snapshot fb15k.kbc --head /m/02mjmr --relation /people/person/nationality
  kbc query --snapshot wn18.kbc --head dog.n.01 --relation _hypernym --top 5 --metric cosine`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&querySnapshot, "snapshot", "", "snapshot to query")
	queryCmd.Flags().StringArrayVar(&queryHeads, "head", nil, "head entity name (repeatable)")
	queryCmd.Flags().StringArrayVar(&queryRelations, "relation", nil, "relation name (repeatable)")
	queryCmd.Flags().IntVar(&queryTop, "top", 0, "entities reported per query (overrides inverse.candidates)")
	queryCmd.Flags().StringVar(&queryMetric, "metric", "", "l2 or cosine (overrides inverse.metric)")
	_ = queryCmd.MarkFlagRequired("snapshot")
	_ = queryCmd.MarkFlagRequired("head")
	_ = queryCmd.MarkFlagRequired("relation")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if len(queryHeads) != len(queryRelations) {
		return fmt.Errorf("%w: %d heads for %d relations", inverse.ErrInvalidQuery, len(queryHeads), len(queryRelations))
	}
	if queryTop > 0 {
		cfg.Inverse.Candidates = queryTop
	}
	if queryMetric != "" {
		cfg.Inverse.Metric = queryMetric
	}
	settings, err := cfg.Solver()
	if err != nil {
		return err
	}
	penalty, err := cfg.Penalty()
	if err != nil {
		return err
	}

	model, snap, err := loadModel(querySnapshot)
	if err != nil {
		return err
	}
	entities := make(map[string]int64, len(snap.Entities))
	for i, name := range snap.Entities {
		entities[name] = int64(i)
	}
	relations := make(map[string]int64, len(snap.Relations))
	for i, name := range snap.Relations {
		relations[name] = int64(i)
	}

	solver := inverse.NewSolver(model, penalty, settings, logger)
	solver.Reporter = reporter(cmd)
	used := solver.Config()
	logger.Debug("inverse search",
		zap.Stringer("variant", model.Variant()),
		zap.Int("max_steps", used.MaxSteps),
		zap.Float64("step_size", used.StepSize),
		zap.Stringer("metric", used.Metric),
		zap.Stringer("strategy", used.Strategy),
		zap.Stringer("placement", used.Placement))
	cache, err := inverse.NewCache(solver, cfg.Inverse.CacheSize)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, headName := range queryHeads {
		relName := queryRelations[i]
		head, ok := entities[headName]
		if !ok {
			return fmt.Errorf("%w: unknown entity %q", inverse.ErrInvalidQuery, headName)
		}
		rel, ok := relations[relName]
		if !ok {
			return fmt.Errorf("%w: unknown relation %q", inverse.ErrInvalidQuery, relName)
		}

		res, hit, err := cache.Solve(head, rel)
		if err != nil {
			return err
		}
		logger.Debug("query answered",
			zap.String("head", headName),
			zap.String("relation", relName),
			zap.Bool("cached", hit),
			zap.Int("steps", res.Steps),
			zap.Stringer("placement", res.Placement))

		fmt.Fprintf(out, "%s %s ?\tsteps: %d\tconverged: %t\n", headName, relName, res.Steps, res.Converged)
		for rank, match := range res.Matches[0] {
			fmt.Fprintf(out, "  %d\t%s\t%.6f\n", rank+1, snap.Entities[match.Index], match.Distance)
		}
	}
	return nil
}
