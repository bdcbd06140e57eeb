package main

import (
	"fmt"

	"github.com/cnclabs/kbc/internal/models"
	complex_embeddings "github.com/cnclabs/kbc/internal/models/complex"
	"github.com/cnclabs/kbc/internal/models/cp"
	"github.com/cnclabs/kbc/pkg/embedding"
)

// reverseSuffix names the reciprocal of a relation in a snapshot vocabulary.
// Only init uses it; readers rely on the base relation count in the header.
const reverseSuffix = "_reverse"

func loadModel(path string) (models.Model, *embedding.Snapshot, error) {
	snap, err := embedding.LoadSnapshot(path)
	if err != nil {
		return nil, nil, err
	}
	model, err := modelOf(snap)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, snap, nil
}

func modelOf(snap *embedding.Snapshot) (models.Model, error) {
	variant, err := models.ParseVariant(snap.Variant)
	if err != nil {
		return nil, err
	}
	switch variant {
	case models.VariantCP:
		m, err := cp.FromTables(snap.EntityTable, snap.RelationTable, snap.ObjectTable)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		m, err := complex_embeddings.FromTables(snap.EntityTable, snap.RelationTable)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func snapshotOf(model models.Model, entities, relations []string, baseRelations int) (*embedding.Snapshot, error) {
	snap := &embedding.Snapshot{
		Variant:       model.Variant().String(),
		Entities:      entities,
		Relations:     relations,
		BaseRelations: baseRelations,
	}
	switch m := model.(type) {
	case *cp.CP:
		snap.EntityTable, snap.RelationTable, snap.ObjectTable = m.Tables()
	case *complex_embeddings.ComplEx:
		snap.EntityTable, snap.RelationTable = m.Tables()
	default:
		return nil, fmt.Errorf("%w: cannot snapshot %T", models.ErrUnknownVariant, model)
	}
	return snap, nil
}
