package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cnclabs/kbc/internal/models"
	complex_embeddings "github.com/cnclabs/kbc/internal/models/complex"
	"github.com/cnclabs/kbc/internal/models/cp"
	"github.com/cnclabs/kbc/pkg/knowledge"
)

var (
	initTrain      string
	initOutput     string
	initVariant    string
	initRank       int
	initReciprocal bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a randomly initialised snapshot",
	Long: `Build the entity and relation vocabulary from a triples file and write a
snapshot with N(0, 1) * init_size embeddings.

Input format, one triple per line:
  head relation tail

Examples:
  kbc init --train fb15k/train.txt --output fb15k.kbc
  kbc init --train wn18/train.txt --model cp --rank 50 --output wn18.kbc`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initTrain, "train", "", "training triples file")
	initCmd.Flags().StringVar(&initOutput, "output", "", "snapshot to write")
	initCmd.Flags().StringVar(&initVariant, "model", "", "cp or complex (overrides model.variant)")
	initCmd.Flags().IntVar(&initRank, "rank", 0, "embedding rank (overrides model.rank)")
	initCmd.Flags().BoolVar(&initReciprocal, "reciprocal", true, "add a reciprocal of every relation for head prediction")
	_ = initCmd.MarkFlagRequired("train")
	_ = initCmd.MarkFlagRequired("output")
}

func runInit(cmd *cobra.Command, args []string) error {
	if initVariant != "" {
		cfg.Model.Variant = initVariant
	}
	if initRank > 0 {
		cfg.Model.Rank = initRank
	}
	variant, err := cfg.Variant()
	if err != nil {
		return err
	}

	kg := knowledge.NewKnowledgeGraph()
	if err := kg.LoadTriples(initTrain); err != nil {
		return err
	}
	if kg.NumTriples == 0 {
		return fmt.Errorf("%s: no triples", initTrain)
	}

	relations := append([]string(nil), kg.RelationKeys...)
	if initReciprocal {
		for _, name := range kg.RelationKeys {
			relations = append(relations, name+reverseSuffix)
		}
	}

	rng := rand.New(rand.NewSource(cfg.Model.Seed))
	sizes := models.Sizes{int(kg.NumEntities), len(relations), int(kg.NumEntities)}
	var model models.Model
	switch variant {
	case models.VariantCP:
		model = cp.New(sizes, cfg.Model.Rank, cfg.Model.InitSize, rng)
	default:
		model = complex_embeddings.New(sizes, cfg.Model.Rank, cfg.Model.InitSize, rng)
	}

	snap, err := snapshotOf(model, kg.EntityKeys, relations, len(kg.RelationKeys))
	if err != nil {
		return err
	}
	if err := snap.Save(initOutput); err != nil {
		return err
	}

	logger.Info("snapshot written",
		zap.String("path", initOutput),
		zap.Stringer("variant", variant),
		zap.Int64("entities", kg.NumEntities),
		zap.Int("relations", len(relations)),
		zap.Int("rank", cfg.Model.Rank))
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entities, %d relations, %s rank %d\n",
		initOutput, kg.NumEntities, len(relations), variant, cfg.Model.Rank)
	return nil
}
