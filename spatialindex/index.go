package spatialindex

import "github.com/golang/geo/r3"

// Kind tags which concrete nearest-neighbor structure an Index wraps.
type Kind int

const (
	// KindExact wraps a KDTree.
	KindExact Kind = iota
	// KindApproximate wraps a SpatialGrid.
	KindApproximate
)

// Index is a tagged variant over the two nearest-neighbor substrates, with
// a single query operation. ICP, RANSAC, and Metrics never branch on the
// concrete type; they call Nearest and treat an ErrApproximateMiss or
// ErrInvalidQuery as "drop this correspondence."
type Index struct {
	Kind Kind
	kd   *KDTree
	grid *SpatialGrid
}

// DefaultKDTreeThreshold is the point count at or above which Build switches from
// KDTree to SpatialGrid by default (spec: kdtree_threshold, default 60000).
const DefaultKDTreeThreshold = 60000

// Build chooses KDTree vs SpatialGrid by cloud size (n >= kdtreeThreshold
// selects the grid) and constructs the chosen structure over buf/n.
func Build(buf []float32, n int, kdtreeThreshold int, gridCellSize float64) (Index, error) {
	if kdtreeThreshold <= 0 {
		kdtreeThreshold = DefaultKDTreeThreshold
	}
	if n >= kdtreeThreshold {
		g, err := BuildSpatialGrid(buf, n, gridCellSize)
		if err != nil {
			return Index{}, err
		}
		return Index{Kind: KindApproximate, grid: g}, nil
	}
	kd, err := BuildKDTree(buf, n)
	if err != nil {
		return Index{}, err
	}
	return Index{Kind: KindExact, kd: kd}, nil
}

// Nearest queries whichever structure this Index wraps.
func (idx Index) Nearest(q r3.Vector) (i int, sqDistance float64, err error) {
	switch idx.Kind {
	case KindApproximate:
		return idx.grid.ApproximateNearest(q)
	default:
		return idx.kd.Nearest(q)
	}
}
