package inverse

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Placement decides where the search keeps its copies of the query embeddings.
type Placement int

const (
	// PlacementDetached copies lhs and rel into matrices private to the search.
	PlacementDetached Placement = iota
	// PlacementShared reads the caller's matrices in place.
	PlacementShared
)

func (p Placement) String() string {
	if p == PlacementShared {
		return "shared"
	}
	return "detached"
}

// ParsePlacement accepts "detached" or "shared".
func ParsePlacement(name string) (Placement, error) {
	switch strings.ToLower(name) {
	case "detached", "":
		return PlacementDetached, nil
	case "shared":
		return PlacementShared, nil
	}
	return 0, fmt.Errorf("unknown placement %q (choose detached or shared)", name)
}

// ResolvePlacement picks the placement for one search. A detached request
// whose copies would exceed maxBytes falls back to shared; this is the only
// fallback and it is decided once, before the search starts.
func ResolvePlacement(requested Placement, lhs, rel *mat.Dense, maxBytes int64, logger *zap.Logger) Placement {
	if requested != PlacementDetached || maxBytes <= 0 {
		return requested
	}
	lr, lc := lhs.Dims()
	rr, rc := rel.Dims()
	need := int64(lr*lc+rr*rc) * 8
	if need <= maxBytes {
		return PlacementDetached
	}
	logger.Warn("not enough memory to detach query embeddings, searching in place",
		zap.Int64("need_bytes", need),
		zap.Int64("max_bytes", maxBytes))
	return PlacementShared
}

func (p Placement) place(lhs, rel *mat.Dense) (*mat.Dense, *mat.Dense) {
	if p == PlacementShared {
		return lhs, rel
	}
	return mat.DenseCopyOf(lhs), mat.DenseCopyOf(rel)
}
