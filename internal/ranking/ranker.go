// Package ranking computes filtered ranks of true answers among all candidate
// entities, streaming candidates in chunks to bound peak memory.
package ranking

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kbc/internal/models"
	"github.com/cnclabs/kbc/internal/progress"
	"github.com/cnclabs/kbc/pkg/embedding"
	"github.com/cnclabs/kbc/pkg/knowledge"
)

// ErrInvalidQuery is returned for unusable query batches or ranker settings.
var ErrInvalidQuery = errors.New("invalid ranking query")

const (
	DefaultBatchSize = 1000
)

// Ranker computes filtered ranks.
type Ranker struct {
	// BatchSize is the number of queries scored together.
	BatchSize int
	// ChunkSize is the number of candidates scored together; <= 0 means all of them.
	ChunkSize int
	// MaskValue replaces the scores of filtered candidates.
	MaskValue float64

	Reporter progress.Reporter
	logger   *zap.Logger
}

// NewRanker returns a ranker with the default batch size, no chunking and a
// -Inf mask. A nil logger disables logging.
func NewRanker(logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{
		BatchSize: DefaultBatchSize,
		ChunkSize: -1,
		MaskValue: math.Inf(-1),
		logger:    logger,
	}
}

// Rank returns, for every query triple, 1 + the number of candidates scoring
// at least as high as the true tail, ignoring the tails listed in filters for
// the query's (head, relation) and the true tail itself.
func (r *Ranker) Rank(model models.Model, queries []knowledge.Triple, filters knowledge.Filters) ([]int, error) {
	if r.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidQuery, r.BatchSize)
	}
	if err := models.CheckTriples(model, queries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	ranks := make([]int, len(queries))
	for i := range ranks {
		ranks[i] = 1
	}
	if len(queries) == 0 {
		return ranks, nil
	}

	reporter := progress.OrNop(r.Reporter)
	numCandidates := model.Sizes()[2]
	spans := embedding.Partition(numCandidates, r.ChunkSize)

	r.logger.Debug("ranking",
		zap.Int("queries", len(queries)),
		zap.Int("candidates", numCandidates),
		zap.Int("chunks", len(spans)),
		zap.Int("batch_size", r.BatchSize))

	for c, span := range spans {
		rhs := model.RHS(span.Begin, span.Len())

		for begin := 0; begin < len(queries); begin += r.BatchSize {
			end := begin + r.BatchSize
			if end > len(queries) {
				end = len(queries)
			}
			batch := queries[begin:end]

			var scores mat.Dense
			scores.Mul(model.Queries(batch), rhs)
			targets := model.Score(batch)

			for i, query := range batch {
				row := scores.RawRowView(i)
				r.mask(row, span, filters.Get(query.Head, query.Relation))
				r.mask(row, span, []int64{query.Tail})

				for _, s := range row {
					if s >= targets[i] {
						ranks[begin+i]++
					}
				}
			}
		}

		reporter.Report(progress.Status{Stage: "rank", Step: c + 1, Total: len(spans), Loss: math.NaN()})
	}

	return ranks, nil
}

// mask overwrites the scores of tails that fall inside span, translating
// global candidate IDs to chunk-local columns.
func (r *Ranker) mask(row []float64, span embedding.Span, tails []int64) {
	for _, tail := range tails {
		if span.Contains(tail) {
			row[tail-int64(span.Begin)] = r.MaskValue
		}
	}
}
