package inverse

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cnclabs/kbc/pkg/knowledge"
)

// Key identifies a single (head, relation, ?) query.
type Key struct {
	Head     int64
	Relation int64
}

// Cache memoises single-query results of a Solver, evicting the least
// recently used entries beyond its size.
type Cache struct {
	solver  *Solver
	results *lru.Cache[Key, *Result]
}

// NewCache wraps solver with an LRU cache holding up to size results.
func NewCache(solver *Solver, size int) (*Cache, error) {
	results, err := lru.New[Key, *Result](size)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return &Cache{solver: solver, results: results}, nil
}

// Solve returns the cached result for (head, relation) or runs the search.
// hit reports whether the result came from the cache. Failed searches are not cached.
func (c *Cache) Solve(head, relation int64) (res *Result, hit bool, err error) {
	key := Key{Head: head, Relation: relation}
	if res, ok := c.results.Get(key); ok {
		return res, true, nil
	}

	res, err = c.solver.SolveTriples([]knowledge.Triple{{Head: head, Relation: relation}})
	if err != nil {
		return nil, false, err
	}
	c.results.Add(key, res)
	return res, false, nil
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	return c.results.Len()
}

// Purge drops every cached result.
func (c *Cache) Purge() {
	c.results.Purge()
}
