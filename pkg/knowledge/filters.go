package knowledge

// FilterKey identifies a (head, relation) query
type FilterKey struct {
	Head     int64
	Relation int64
}

// Filters maps a (head, relation) query to every tail known to complete it.
// Those tails are excluded from competition when ranking the true answer.
type Filters map[FilterKey][]int64

// BuildFilters collects known-true tails from every given split
func BuildFilters(splits ...[]Triple) Filters {
	seen := make(map[Triple]bool)
	filters := make(Filters)
	for _, split := range splits {
		for _, t := range split {
			if seen[t] {
				continue
			}
			seen[t] = true
			key := FilterKey{Head: t.Head, Relation: t.Relation}
			filters[key] = append(filters[key], t.Tail)
		}
	}
	return filters
}

// Get returns the known tails for (head, relation), or nil. The returned slice must not be modified.
func (f Filters) Get(head, relation int64) []int64 {
	return f[FilterKey{Head: head, Relation: relation}]
}

// Reciprocal returns (tail, relation+numRelations, head) for every triple.
// Models trained with reciprocal relations answer head queries through these.
func Reciprocal(triples []Triple, numRelations int64) []Triple {
	out := make([]Triple, len(triples))
	for i, t := range triples {
		out[i] = Triple{Head: t.Tail, Relation: t.Relation + numRelations, Tail: t.Head}
	}
	return out
}
