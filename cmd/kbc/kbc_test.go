package main

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnclabs/kbc/internal/config"
	"github.com/cnclabs/kbc/internal/models"
	complex_embeddings "github.com/cnclabs/kbc/internal/models/complex"
	"github.com/cnclabs/kbc/internal/ranking"
	"github.com/cnclabs/kbc/pkg/embedding"
	"github.com/cnclabs/kbc/pkg/knowledge"
)

const trainTriples = `alice knows bob
bob knows carol
carol likes alice
alice likes carol
dave knows alice
`

// run executes the CLI with flags reset to their defaults, since cobra keeps
// flag values between executions of the same command tree.
func run(args ...string) (string, error) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	for _, sub := range rootCmd.Commands() {
		sub.Flags().VisitAll(reset)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(args...)
	require.NoError(t, err, out)
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestCLI_InitEvalQuery(t *testing.T) {
	dir := t.TempDir()
	train := filepath.Join(dir, "train.txt")
	test := filepath.Join(dir, "test.txt")
	snapshot := filepath.Join(dir, "model.kbc")
	require.NoError(t, os.WriteFile(train, []byte(trainTriples), 0600))
	require.NoError(t, os.WriteFile(test, []byte("alice knows carol\nmallory knows bob\n"), 0600))

	out := execute(t, "init", "--train", train, "--output", snapshot, "--model", "cp", "--rank", "3")
	assert.Contains(t, out, "4 entities, 4 relations, cp rank 3")

	snap, err := embedding.LoadSnapshot(snapshot)
	require.NoError(t, err)
	assert.Equal(t, []string{"knows", "likes", "knows_reverse", "likes_reverse"}, snap.Relations)
	require.NotNil(t, snap.ObjectTable)

	out = execute(t, "eval", "--snapshot", snapshot, "--test", test, "--filter", train, "--chunk-size", "2")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "rhs\tMRR: "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "lhs\tMRR: "), lines[1])
	assert.Contains(t, lines[0], "Hits@10: 1.0000")

	out = execute(t, "query", "--snapshot", snapshot, "--head", "alice", "--relation", "knows", "--top", "2")
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "alice knows ?\tsteps: "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  1\t"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "  2\t"), lines[2])
}

func TestSnapshotOf_ComplExRoundTrip(t *testing.T) {
	model := complex_embeddings.New(models.Sizes{3, 2, 3}, 2, 1, rand.New(rand.NewSource(5)))
	snap, err := snapshotOf(model, []string{"a", "b", "c"}, []string{"r", "r" + reverseSuffix}, 1)
	require.NoError(t, err)
	assert.Equal(t, "complex", snap.Variant)
	assert.Nil(t, snap.ObjectTable)

	var buf bytes.Buffer
	require.NoError(t, snap.Write(&buf))
	loaded, err := embedding.ReadSnapshot(&buf)
	require.NoError(t, err)

	restored, err := modelOf(loaded)
	require.NoError(t, err)
	assert.Equal(t, models.VariantComplEx, restored.Variant())
	assert.Equal(t, model.Sizes(), restored.Sizes())
}

func TestModelOf_Errors(t *testing.T) {
	_, err := modelOf(&embedding.Snapshot{Variant: "transe"})
	assert.ErrorIs(t, err, models.ErrUnknownVariant)

	entities, err := embedding.FromRows([][]float64{{1, 2}})
	require.NoError(t, err)
	_, err = modelOf(&embedding.Snapshot{Variant: "cp", EntityTable: entities, RelationTable: entities})
	assert.ErrorIs(t, err, models.ErrShape)
}

func TestCLI_RelationNamedLikeReciprocal(t *testing.T) {
	dir := t.TempDir()
	train := writeFile(t, dir, "train.txt", "a x_reverse b\nb y c\n")
	test := writeFile(t, dir, "test.txt", "a x_reverse b\n")
	snapshot := filepath.Join(dir, "model.kbc")

	execute(t, "init", "--train", train, "--output", snapshot, "--model", "complex", "--rank", "2")

	snap, err := embedding.LoadSnapshot(snapshot)
	require.NoError(t, err)
	assert.Equal(t, []string{"x_reverse", "y", "x_reverse_reverse", "y_reverse"}, snap.Relations)
	assert.Equal(t, 2, snap.NumBaseRelations())
	assert.True(t, snap.HasReciprocals())

	out := execute(t, "eval", "--snapshot", snapshot, "--test", test, "--direction", "both")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	// head queries must go through x_reverse_reverse (ID 2), not y_reverse
	model, err := modelOf(snap)
	require.NoError(t, err)
	triples := []knowledge.Triple{{Head: 0, Relation: 0, Tail: 1}}
	filters := knowledge.BuildFilters(triples, knowledge.Reciprocal(triples, 2))
	want, err := ranking.NewRanker(nil).Evaluate(model, triples, filters, 2, ranking.Heads, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(lines[1], fmt.Sprintf("lhs\tMRR: %.4f\t", want["lhs"].MRR)), lines[1])
}

func TestCLI_EvalWithoutReciprocals(t *testing.T) {
	dir := t.TempDir()
	train := writeFile(t, dir, "train.txt", trainTriples)
	snapshot := filepath.Join(dir, "model.kbc")

	execute(t, "init", "--train", train, "--output", snapshot, "--reciprocal=false", "--rank", "2")

	// the default direction falls back to tails
	out := execute(t, "eval", "--snapshot", snapshot, "--test", train)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "rhs\t"), lines[0])

	out, err := run("eval", "--snapshot", snapshot, "--test", train, "--direction", "lhs")
	assert.ErrorIs(t, err, ranking.ErrInvalidQuery)
	assert.Contains(t, out, "--direction rhs")
}

func TestCLI_ConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "kbc.yaml", "model:\n  variant: cp\n  rank: 7\ninverse:\n  tolerance: 0\n")
	resolved := filepath.Join(dir, "resolved.yaml")

	out := execute(t, "config", "--config", src, "--output", resolved)
	assert.Contains(t, out, "cp model, rank 7")

	loaded, err := config.Load(resolved)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Model.Rank)
	require.NotNil(t, loaded.Inverse.Tolerance)
	assert.Equal(t, 0.0, *loaded.Inverse.Tolerance)
	assert.Equal(t, []int{1, 3, 10}, loaded.Ranking.Hits)
}

func TestSnapshotOf_KeepsBaseRelationCount(t *testing.T) {
	model := complex_embeddings.New(models.Sizes{2, 2, 2}, 1, 1, rand.New(rand.NewSource(2)))
	snap, err := snapshotOf(model, []string{"a", "b"}, []string{"r", "r" + reverseSuffix}, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, snap.Write(&buf))
	loaded, err := embedding.ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.NumBaseRelations())
	assert.True(t, loaded.HasReciprocals())
}
