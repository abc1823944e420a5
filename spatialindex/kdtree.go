// Package spatialindex provides nearest-neighbor structures over a static
// 3D point set: an exact KD-tree for moderate clouds and an approximate
// uniform-grid hash for very large ones, selected automatically by the
// Index variant in index.go.
package spatialindex

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrEmptyIndex marks construction of a nearest-neighbor structure over an
// empty point set.
var ErrEmptyIndex = errors.New("nearest-neighbor index built on empty point set")

// ErrInvalidQuery marks a query point with a non-finite coordinate.
var ErrInvalidQuery = errors.New("query point has a non-finite coordinate")

type kdNode struct {
	idx         int32
	axis        uint8
	left, right int32 // -1 means no child
}

// KDTree is an exact nearest-neighbor index over a static cloud. It holds a
// read-only reference to the cloud's flat buffer; no point data is copied.
type KDTree struct {
	buf   []float32
	nodes []kdNode
	root  int32
}

type kdWorkItem struct {
	lo, hi int
	depth  int
	parent int32
	isLeft bool
}

// BuildKDTree builds a tree over the n points packed in buf (len(buf) ==
// 3*n). Construction is iterative: an explicit work stack replaces
// recursion so clouds up to at least 200,000 points build without
// exhausting any bounded call-stack resource.
func BuildKDTree(buf []float32, n int) (*KDTree, error) {
	if n == 0 {
		return nil, ErrEmptyIndex
	}
	perm := make([]int32, n)
	for i := range perm {
		perm[i] = int32(i)
	}
	nodes := make([]kdNode, n)
	coord := func(pointIdx int32, axis int) float32 { return buf[int(pointIdx)*3+axis] }

	stack := make([]kdWorkItem, 0, 64)
	stack = append(stack, kdWorkItem{lo: 0, hi: n, depth: 0, parent: -1})
	nextFree := 0
	root := int32(-1)

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if item.lo >= item.hi {
			continue
		}
		axis := item.depth % 3
		mid := item.lo + (item.hi-item.lo)/2
		quickselectByAxis(perm, item.lo, item.hi, mid, axis, coord)
		// Move elements equal to the median coordinate out of the left range
		// so ties on the split coordinate go to the right subtree.
		split := coord(perm[mid], axis)
		store := item.lo
		for i := item.lo; i < mid; i++ {
			if coord(perm[i], axis) < split {
				perm[i], perm[store] = perm[store], perm[i]
				store++
			}
		}
		perm[store], perm[mid] = perm[mid], perm[store]
		mid = store

		nodeIdx := int32(nextFree)
		nextFree++
		nodes[nodeIdx] = kdNode{idx: perm[mid], axis: uint8(axis), left: -1, right: -1}

		switch {
		case item.parent == -1:
			root = nodeIdx
		case item.isLeft:
			nodes[item.parent].left = nodeIdx
		default:
			nodes[item.parent].right = nodeIdx
		}

		stack = append(stack, kdWorkItem{lo: item.lo, hi: mid, depth: item.depth + 1, parent: nodeIdx, isLeft: true})
		stack = append(stack, kdWorkItem{lo: mid + 1, hi: item.hi, depth: item.depth + 1, parent: nodeIdx, isLeft: false})
	}

	return &KDTree{buf: buf, nodes: nodes, root: root}, nil
}

// quickselectByAxis iteratively partitions perm[lo:hi] so that perm[k] holds
// the element that would occupy position k if the range were sorted by
// coord(.,axis), with elements <= it to its left and elements >= it to its
// right. Elements equal to it may remain on the left; BuildKDTree moves them
// to the right afterwards. No recursion is used.
func quickselectByAxis(perm []int32, lo, hi, k, axis int, coord func(int32, int) float32) {
	for hi-lo > 1 {
		pivotPos := lo + (hi-lo)/2
		pivotVal := coord(perm[pivotPos], axis)
		perm[pivotPos], perm[hi-1] = perm[hi-1], perm[pivotPos]
		store := lo
		for i := lo; i < hi-1; i++ {
			if coord(perm[i], axis) < pivotVal {
				perm[i], perm[store] = perm[store], perm[i]
				store++
			}
		}
		perm[store], perm[hi-1] = perm[hi-1], perm[store]
		switch {
		case store == k:
			return
		case store < k:
			lo = store + 1
		default:
			hi = store
		}
	}
}

func (t *KDTree) pointAt(idx int32) r3.Vector {
	o := int(idx) * 3
	return r3.Vector{X: float64(t.buf[o]), Y: float64(t.buf[o+1]), Z: float64(t.buf[o+2])}
}

func sqDist(a, b r3.Vector) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}

func validQuery(q r3.Vector) bool {
	return isFinite(q.X) && isFinite(q.Y) && isFinite(q.Z)
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func axisCoord(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Nearest returns the exact nearest neighbor's point index and squared
// distance. Ties are broken by the smaller point index.
func (t *KDTree) Nearest(q r3.Vector) (idx int, sqDistance float64, err error) {
	if !validQuery(q) {
		return 0, 0, ErrInvalidQuery
	}
	bestIdx := int32(-1)
	bestDist := math.Inf(1)

	stack := make([]int32, 0, 64)
	stack = append(stack, t.root)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == -1 {
			continue
		}
		node := t.nodes[n]
		p := t.pointAt(node.idx)
		d := sqDist(p, q)
		if d < bestDist || (d == bestDist && (bestIdx == -1 || node.idx < bestIdx)) {
			bestDist = d
			bestIdx = node.idx
		}
		axis := int(node.axis)
		diff := axisCoord(q, axis) - axisCoord(p, axis)

		near, far := node.left, node.right
		if diff > 0 {
			near, far = node.right, node.left
		}
		stack = append(stack, near)
		if diff*diff <= bestDist {
			stack = append(stack, far)
		}
	}
	if bestIdx == -1 {
		return 0, 0, ErrEmptyIndex
	}
	return int(bestIdx), bestDist, nil
}

// Neighbor is one result of a bounded nearest-neighbor query.
type Neighbor struct {
	Index      int
	SqDistance float64
}

// NearestK returns the k nearest neighbors, ascending by squared distance,
// ties broken by smaller index.
func (t *KDTree) NearestK(q r3.Vector, k int) ([]Neighbor, error) {
	if !validQuery(q) {
		return nil, ErrInvalidQuery
	}
	if k <= 0 {
		return nil, nil
	}
	var found []Neighbor

	stack := make([]int32, 0, 64)
	stack = append(stack, t.root)
	worstKept := math.Inf(1)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == -1 {
			continue
		}
		node := t.nodes[n]
		p := t.pointAt(node.idx)
		d := sqDist(p, q)
		if len(found) < k || d < worstKept || (d == worstKept && int(node.idx) < found[len(found)-1].Index) {
			found = insertNeighbor(found, Neighbor{Index: int(node.idx), SqDistance: d}, k)
			if len(found) >= k {
				worstKept = found[len(found)-1].SqDistance
			}
		}
		axis := int(node.axis)
		diff := axisCoord(q, axis) - axisCoord(p, axis)
		near, far := node.left, node.right
		if diff > 0 {
			near, far = node.right, node.left
		}
		stack = append(stack, near)
		if len(found) < k || diff*diff <= worstKept {
			stack = append(stack, far)
		}
	}
	return found, nil
}

func insertNeighbor(found []Neighbor, cand Neighbor, k int) []Neighbor {
	pos := sort.Search(len(found), func(i int) bool {
		if found[i].SqDistance != cand.SqDistance {
			return found[i].SqDistance > cand.SqDistance
		}
		return found[i].Index > cand.Index
	})
	found = append(found, Neighbor{})
	copy(found[pos+1:], found[pos:])
	found[pos] = cand
	if len(found) > k {
		found = found[:k]
	}
	return found
}

// WithinRadius returns all indices within squared distance r2 of q, in
// arbitrary order.
func (t *KDTree) WithinRadius(q r3.Vector, r2 float64) ([]int, error) {
	if !validQuery(q) {
		return nil, ErrInvalidQuery
	}
	var out []int
	stack := make([]int32, 0, 64)
	stack = append(stack, t.root)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == -1 {
			continue
		}
		node := t.nodes[n]
		p := t.pointAt(node.idx)
		if d := sqDist(p, q); d <= r2 {
			out = append(out, int(node.idx))
		}
		axis := int(node.axis)
		diff := axisCoord(q, axis) - axisCoord(p, axis)
		near, far := node.left, node.right
		if diff > 0 {
			near, far = node.right, node.left
		}
		stack = append(stack, near)
		if diff*diff <= r2 {
			stack = append(stack, far)
		}
	}
	return out, nil
}
