package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cnclabs/kbc/internal/ranking"
	"github.com/cnclabs/kbc/pkg/knowledge"
)

var (
	evalSnapshot  string
	evalTest      string
	evalFilters   []string
	evalDirection string
	evalChunkSize int
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Filtered ranking evaluation",
	Long: `Rank the true answer of every test triple among all entities, ignoring
answers known from the test file and every --filter file.

Examples:
  kbc eval --snapshot fb15k.kbc --test fb15k/test.txt \
    --filter fb15k/train.txt --filter fb15k/valid.txt
  kbc eval --snapshot fb15k.kbc --test fb15k/test.txt --direction rhs --chunk-size 2000`,
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringVar(&evalSnapshot, "snapshot", "", "snapshot to evaluate")
	evalCmd.Flags().StringVar(&evalTest, "test", "", "test triples file")
	evalCmd.Flags().StringArrayVar(&evalFilters, "filter", nil, "triples whose tails are filtered (repeatable)")
	evalCmd.Flags().StringVar(&evalDirection, "direction", "", "rhs, lhs or both (overrides ranking.direction)")
	evalCmd.Flags().IntVar(&evalChunkSize, "chunk-size", 0, "candidates scored together (overrides ranking.chunk_size)")
	_ = evalCmd.MarkFlagRequired("snapshot")
	_ = evalCmd.MarkFlagRequired("test")
}

func runEval(cmd *cobra.Command, args []string) error {
	if evalDirection != "" {
		cfg.Ranking.Direction = evalDirection
	}
	if evalChunkSize != 0 {
		cfg.Ranking.ChunkSize = evalChunkSize
	}
	direction, err := ranking.ParseDirection(cfg.Ranking.Direction)
	if err != nil {
		return err
	}

	model, snap, err := loadModel(evalSnapshot)
	if err != nil {
		return err
	}

	if direction != ranking.Tails && !snap.HasReciprocals() {
		if cmd.Flags().Changed("direction") {
			return fmt.Errorf("%w: %s has no reciprocal relations for head prediction, use --direction rhs",
				ranking.ErrInvalidQuery, evalSnapshot)
		}
		logger.Warn("snapshot has no reciprocal relations, evaluating tails only",
			zap.String("snapshot", evalSnapshot))
		direction = ranking.Tails
	}

	test, err := loadFrozen(snap.Entities, snap.Relations, evalTest)
	if err != nil {
		return err
	}
	numRelations := int64(snap.NumBaseRelations())

	splits := [][]knowledge.Triple{test, knowledge.Reciprocal(test, numRelations)}
	for _, path := range evalFilters {
		known, err := loadFrozen(snap.Entities, snap.Relations, path)
		if err != nil {
			return err
		}
		splits = append(splits, known, knowledge.Reciprocal(known, numRelations))
	}
	filters := knowledge.BuildFilters(splits...)

	ranker := cfg.NewRanker(logger)
	ranker.Reporter = reporter(cmd)

	results, err := ranker.Evaluate(model, test, filters, numRelations, direction, cfg.Ranking.Hits)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sides := make([]string, 0, len(results))
	for side := range results {
		sides = append(sides, side)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(sides)))
	for _, side := range sides {
		m := results[side]
		fmt.Fprintf(out, "%s\tMRR: %.4f\tMR: %.2f", side, m.MRR, m.MR)
		for _, k := range cfg.Ranking.Hits {
			fmt.Fprintf(out, "\tHits@%d: %.4f", k, m.Hits[k])
		}
		fmt.Fprintln(out)
		logger.Debug("evaluated",
			zap.String("side", side),
			zap.Float64("mrr", m.MRR),
			zap.Float64("mr", m.MR))
	}
	return nil
}

// loadFrozen reads triples against the snapshot vocabulary.
func loadFrozen(entities, relations []string, path string) ([]knowledge.Triple, error) {
	kg := knowledge.NewKnowledgeGraphWithVocab(entities, relations)
	if err := kg.LoadTriples(path); err != nil {
		return nil, err
	}
	if kg.Skipped > 0 {
		logger.Warn("skipped triples outside the snapshot vocabulary",
			zap.String("path", path),
			zap.Int64("skipped", kg.Skipped))
	}
	return kg.Triples, nil
}
