package knowledge

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Triple represents a knowledge graph triple (head, relation, tail)
type Triple struct {
	Head     int64
	Relation int64
	Tail     int64
}

// KnowledgeGraph maps entity and relation names to dense IDs and holds the triples read so far
type KnowledgeGraph struct {
	// Entity and relation mappings
	EntityHash   map[string]int64
	RelationHash map[string]int64
	EntityKeys   []string
	RelationKeys []string

	// Triples
	Triples []Triple

	// Statistics
	NumEntities  int64
	NumRelations int64
	NumTriples   int64

	// Lines dropped because a name was not in a frozen vocabulary
	Skipped int64

	frozen bool
}

// NewKnowledgeGraph creates a new knowledge graph instance whose vocabulary grows while loading
func NewKnowledgeGraph() *KnowledgeGraph {
	return &KnowledgeGraph{
		EntityHash:   make(map[string]int64),
		RelationHash: make(map[string]int64),
		EntityKeys:   make([]string, 0),
		RelationKeys: make([]string, 0),
		Triples:      make([]Triple, 0),
	}
}

// NewKnowledgeGraphWithVocab creates a knowledge graph over a fixed vocabulary.
// Triples naming unknown entities or relations are skipped, so IDs always match
// the rows of embedding tables built for that vocabulary.
func NewKnowledgeGraphWithVocab(entities, relations []string) *KnowledgeGraph {
	kg := NewKnowledgeGraph()
	for _, name := range entities {
		kg.getOrCreateEntity(name)
	}
	for _, name := range relations {
		kg.getOrCreateRelation(name)
	}
	kg.NumEntities = int64(len(kg.EntityKeys))
	kg.NumRelations = int64(len(kg.RelationKeys))
	kg.frozen = true
	return kg
}

// LoadTriples loads knowledge graph triples from a file
// Format: head relation tail
// Example: "Barack_Obama born_in Hawaii"
func (kg *KnowledgeGraph) LoadTriples(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	if err := kg.ReadTriples(file); err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	return nil
}

// ReadTriples reads whitespace separated triples, one per line. Lines with
// fewer than three fields are ignored.
func (kg *KnowledgeGraph) ReadTriples(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			continue
		}

		triple, ok := kg.resolve(parts[0], parts[1], parts[2])
		if !ok {
			kg.Skipped++
			continue
		}
		kg.Triples = append(kg.Triples, triple)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading triples: %w", err)
	}

	kg.NumTriples = int64(len(kg.Triples))
	kg.NumEntities = int64(len(kg.EntityKeys))
	kg.NumRelations = int64(len(kg.RelationKeys))
	return nil
}

func (kg *KnowledgeGraph) resolve(head, relation, tail string) (Triple, bool) {
	if kg.frozen {
		h, okH := kg.EntityHash[head]
		r, okR := kg.RelationHash[relation]
		t, okT := kg.EntityHash[tail]
		return Triple{Head: h, Relation: r, Tail: t}, okH && okR && okT
	}
	return Triple{
		Head:     kg.getOrCreateEntity(head),
		Relation: kg.getOrCreateRelation(relation),
		Tail:     kg.getOrCreateEntity(tail),
	}, true
}

// getOrCreateEntity gets or creates an entity ID
func (kg *KnowledgeGraph) getOrCreateEntity(name string) int64 {
	if id, exists := kg.EntityHash[name]; exists {
		return id
	}

	id := int64(len(kg.EntityKeys))
	kg.EntityHash[name] = id
	kg.EntityKeys = append(kg.EntityKeys, name)
	return id
}

// getOrCreateRelation gets or creates a relation ID
func (kg *KnowledgeGraph) getOrCreateRelation(name string) int64 {
	if id, exists := kg.RelationHash[name]; exists {
		return id
	}

	id := int64(len(kg.RelationKeys))
	kg.RelationHash[name] = id
	kg.RelationKeys = append(kg.RelationKeys, name)
	return id
}

// EntityID returns the ID of a named entity
func (kg *KnowledgeGraph) EntityID(name string) (int64, bool) {
	id, ok := kg.EntityHash[name]
	return id, ok
}

// RelationID returns the ID of a named relation
func (kg *KnowledgeGraph) RelationID(name string) (int64, bool) {
	id, ok := kg.RelationHash[name]
	return id, ok
}

// GetEntityName returns the name of an entity by ID
func (kg *KnowledgeGraph) GetEntityName(id int64) string {
	if id < 0 || id >= int64(len(kg.EntityKeys)) {
		return ""
	}
	return kg.EntityKeys[id]
}

// GetRelationName returns the name of a relation by ID
func (kg *KnowledgeGraph) GetRelationName(id int64) string {
	if id < 0 || id >= int64(len(kg.RelationKeys)) {
		return ""
	}
	return kg.RelationKeys[id]
}

// GetTriple returns the triple at the given index
func (kg *KnowledgeGraph) GetTriple(idx int64) Triple {
	if idx < 0 || idx >= int64(len(kg.Triples)) {
		return Triple{}
	}
	return kg.Triples[idx]
}
