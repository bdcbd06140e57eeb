// Package embedding holds dense embedding tables and the chunked views used to
// stream candidates through bulk scoring.
package embedding

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Table is a dense rows × width embedding matrix, one row per entity or relation ID.
type Table struct {
	weights *mat.Dense
}

// NewTable wraps an existing matrix without copying it.
func NewTable(weights *mat.Dense) *Table {
	return &Table{weights: weights}
}

// NewNormal returns a table drawn from N(0, 1) and scaled by scale.
func NewNormal(rows, width int, scale float64, rng *rand.Rand) *Table {
	data := make([]float64, rows*width)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return &Table{weights: mat.NewDense(rows, width, data)}
}

// FromRows copies rows into a new table. All rows must share one width.
func FromRows(rows [][]float64) (*Table, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("embedding table needs at least one non-empty row")
	}
	width := len(rows[0])
	data := make([]float64, 0, len(rows)*width)
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("row %d has width %d, expected %d", i, len(r), width)
		}
		data = append(data, r...)
	}
	return &Table{weights: mat.NewDense(len(rows), width, data)}, nil
}

// Rows returns the number of rows.
func (t *Table) Rows() int {
	r, _ := t.weights.Dims()
	return r
}

// Width returns the embedding width.
func (t *Table) Width() int {
	_, c := t.weights.Dims()
	return c
}

// Dense exposes the backing matrix. Callers must treat it as read-only.
func (t *Table) Dense() *mat.Dense {
	return t.weights
}

// Row returns row id. The slice aliases the table.
func (t *Table) Row(id int64) []float64 {
	return t.weights.RawRowView(int(id))
}

// SetRow overwrites row id with v.
func (t *Table) SetRow(id int64, v []float64) {
	t.weights.SetRow(int(id), v)
}

// Gather copies the rows named by ids into a len(ids) × width matrix.
func (t *Table) Gather(ids []int64) *mat.Dense {
	out := mat.NewDense(len(ids), t.Width(), nil)
	for i, id := range ids {
		out.SetRow(i, t.weights.RawRowView(int(id)))
	}
	return out
}

// Chunk returns a view of rows [begin, begin+size), clipped to the table.
func (t *Table) Chunk(begin, size int) *mat.Dense {
	end := begin + size
	if end > t.Rows() {
		end = t.Rows()
	}
	return t.weights.Slice(begin, end, 0, t.Width()).(*mat.Dense)
}

// Span is the half-open candidate range [Begin, End).
type Span struct {
	Begin int
	End   int
}

// Len returns the number of candidates in the span.
func (s Span) Len() int {
	return s.End - s.Begin
}

// Contains reports whether the global candidate id falls inside the span.
func (s Span) Contains(id int64) bool {
	return id >= int64(s.Begin) && id < int64(s.End)
}

// Partition splits [0, n) into consecutive spans of at most size candidates.
// A non-positive size yields a single span covering everything.
func Partition(n, size int) []Span {
	if n <= 0 {
		return nil
	}
	if size <= 0 || size > n {
		size = n
	}
	spans := make([]Span, 0, (n+size-1)/size)
	for begin := 0; begin < n; begin += size {
		end := begin + size
		if end > n {
			end = n
		}
		spans = append(spans, Span{Begin: begin, End: end})
	}
	return spans
}
