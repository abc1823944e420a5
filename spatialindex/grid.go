package spatialindex

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrApproximateMiss marks a SpatialGrid query that found no candidate
// within the capped shell-expansion radius. ICP treats this the same as
// ErrInvalidQuery: drop the correspondence for this iteration.
var ErrApproximateMiss = errors.New("approximate nearest neighbor search found no candidate within the shell radius cap")

// packedMin and packedMax bound the signed range representable in the
// 10-bit packed field ([-512, 511]); maxShell caps the shell-expansion
// radius of a query, in cells.
const (
	packedMin = -512
	packedMax = 511
	maxShell  = 8
)

type cellCoord struct{ ix, iy, iz int32 }

// SpatialGrid is an approximate nearest-neighbor index: points are hashed
// into uniform cells, and a query expands outward from the query point's
// cell until a candidate is found. It holds a read-only reference to the
// cloud's flat buffer; only the index map is owned by the grid.
type SpatialGrid struct {
	buf      []float32
	cellSize float64
	origin   r3.Vector
	packed   map[uint32][]int32
	overflow map[cellCoord][]int32
}

// BuildSpatialGrid builds a grid over the n points in buf. If cellSize <= 0
// a value yielding roughly 75 points per occupied cell is derived from the
// cloud's bounding-box volume.
func BuildSpatialGrid(buf []float32, n int, cellSize float64) (*SpatialGrid, error) {
	if n == 0 {
		return nil, ErrEmptyIndex
	}
	minV := r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	maxV := r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for i := 0; i < n; i++ {
		o := 3 * i
		x, y, z := float64(buf[o]), float64(buf[o+1]), float64(buf[o+2])
		minV.X, maxV.X = math.Min(minV.X, x), math.Max(maxV.X, x)
		minV.Y, maxV.Y = math.Min(minV.Y, y), math.Max(maxV.Y, y)
		minV.Z, maxV.Z = math.Min(minV.Z, z), math.Max(maxV.Z, z)
	}

	if cellSize <= 0 {
		dx, dy, dz := maxV.X-minV.X, maxV.Y-minV.Y, maxV.Z-minV.Z
		volume := math.Max(dx, 1e-9) * math.Max(dy, 1e-9) * math.Max(dz, 1e-9)
		cellsWanted := math.Max(float64(n)/75.0, 1)
		cellSize = math.Cbrt(volume / cellsWanted)
		if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
			cellSize = 1
		}
	}

	g := &SpatialGrid{
		buf:      buf,
		cellSize: cellSize,
		origin:   minV,
		packed:   make(map[uint32][]int32),
		overflow: make(map[cellCoord][]int32),
	}

	for i := 0; i < n; i++ {
		o := 3 * i
		x, y, z := float64(buf[o]), float64(buf[o+1]), float64(buf[o+2])
		c := g.cellOf(r3.Vector{X: x, Y: y, Z: z})
		g.insert(c, int32(i))
	}
	return g, nil
}

func (g *SpatialGrid) cellOf(p r3.Vector) cellCoord {
	ix := int32(math.Floor((p.X - g.origin.X) / g.cellSize))
	iy := int32(math.Floor((p.Y - g.origin.Y) / g.cellSize))
	iz := int32(math.Floor((p.Z - g.origin.Z) / g.cellSize))
	return cellCoord{ix, iy, iz}
}

func packable(c cellCoord) bool {
	return c.ix >= packedMin && c.ix <= packedMax &&
		c.iy >= packedMin && c.iy <= packedMax &&
		c.iz >= packedMin && c.iz <= packedMax
}

func packKey(c cellCoord) uint32 {
	return (uint32(c.ix)&0x3FF)<<20 | (uint32(c.iy)&0x3FF)<<10 | (uint32(c.iz) & 0x3FF)
}

func (g *SpatialGrid) insert(c cellCoord, idx int32) {
	if packable(c) {
		key := packKey(c)
		g.packed[key] = append(g.packed[key], idx)
		return
	}
	g.overflow[c] = append(g.overflow[c], idx)
}

func (g *SpatialGrid) cellPoints(c cellCoord) []int32 {
	if packable(c) {
		return g.packed[packKey(c)]
	}
	return g.overflow[c]
}

func (g *SpatialGrid) pointAt(idx int32) r3.Vector {
	o := int(idx) * 3
	return r3.Vector{X: float64(g.buf[o]), Y: float64(g.buf[o+1]), Z: float64(g.buf[o+2])}
}

// shellCells calls visit for every cell at Chebyshev distance exactly s from
// center (s==1 covers the full inner 3x3x3 cube per spec).
func shellCells(center cellCoord, s int32, visit func(cellCoord)) {
	for dx := -s; dx <= s; dx++ {
		for dy := -s; dy <= s; dy++ {
			for dz := -s; dz <= s; dz++ {
				if s > 1 {
					m := dx
					if abs32(dy) > abs32(m) {
						m = dy
					}
					if abs32(dz) > abs32(m) {
						m = dz
					}
					if abs32(m) < s {
						continue
					}
				}
				visit(cellCoord{center.ix + dx, center.iy + dy, center.iz + dz})
			}
		}
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// ApproximateNearest searches outward from q's cell, returning the closest
// point found in the first non-empty shell (capped at radius 8 cells). It
// is not guaranteed to return the true nearest neighbor: if the true
// nearest lies within cellSize of q it is guaranteed to be returned;
// otherwise the closest point encountered in the searched shells is
// returned, which ICP's iterative refinement tolerates.
func (g *SpatialGrid) ApproximateNearest(q r3.Vector) (idx int, sqDistance float64, err error) {
	if !validQuery(q) {
		return 0, 0, ErrInvalidQuery
	}
	center := g.cellOf(q)
	bestIdx := int32(-1)
	bestDist := math.Inf(1)

	for s := int32(1); s <= maxShell; s++ {
		shellCells(center, s, func(c cellCoord) {
			for _, pi := range g.cellPoints(c) {
				d := sqDist(g.pointAt(pi), q)
				if d < bestDist || (d == bestDist && (bestIdx == -1 || pi < bestIdx)) {
					bestDist = d
					bestIdx = pi
				}
			}
		})
		if bestIdx != -1 {
			return int(bestIdx), bestDist, nil
		}
	}
	return 0, 0, ErrApproximateMiss
}
