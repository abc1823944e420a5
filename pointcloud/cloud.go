// Package pointcloud holds the flat-buffer point cloud representation and
// the rigid transform algebra the rest of the registration core operates on.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PointCloud is an immutable view over a contiguous f32 coordinate buffer.
// buf[3i], buf[3i+1], buf[3i+2] hold the x, y, z of point i. The buffer is
// owned by the caller; PointCloud never mutates it.
type PointCloud struct {
	buf []float32
	n   int
}

// New wraps buf as a PointCloud. buf must have length 3*n for some n>=1.
func New(buf []float32) (*PointCloud, error) {
	if len(buf) == 0 || len(buf)%3 != 0 {
		return nil, errors.Errorf("pointcloud: buffer length %d is not a positive multiple of 3", len(buf))
	}
	n := len(buf) / 3
	for i := 0; i < len(buf); i++ {
		if !isFinite32(buf[i]) {
			return nil, errors.Wrapf(ErrNonFiniteInput, "coordinate at buffer offset %d", i)
		}
	}
	return &PointCloud{buf: buf, n: n}, nil
}

// N returns the point count.
func (c *PointCloud) N() int { return c.n }

// Buf returns the underlying flat buffer. Callers must not mutate it.
func (c *PointCloud) Buf() []float32 { return c.buf }

// At returns point i as a value-type vector. Single points are the only
// place this package allocates an object per point; bulk operations stay on
// the flat buffer.
func (c *PointCloud) At(i int) r3.Vector {
	o := 3 * i
	return r3.Vector{X: float64(c.buf[o]), Y: float64(c.buf[o+1]), Z: float64(c.buf[o+2])}
}

// Centroid returns the double-precision mean of all points.
func (c *PointCloud) Centroid() r3.Vector {
	var sx, sy, sz float64
	for i := 0; i < c.n; i++ {
		o := 3 * i
		sx += float64(c.buf[o])
		sy += float64(c.buf[o+1])
		sz += float64(c.buf[o+2])
	}
	inv := 1 / float64(c.n)
	return r3.Vector{X: sx * inv, Y: sy * inv, Z: sz * inv}
}

// Covariance returns the mean-centered 3x3 covariance matrix Sigma =
// (P-c)^T(P-c)/n, as a row-major [3][3]float64, using centroid c.
func (c *PointCloud) Covariance(centroid r3.Vector) [3][3]float64 {
	var sigma [3][3]float64
	for i := 0; i < c.n; i++ {
		p := c.At(i)
		dx, dy, dz := p.X-centroid.X, p.Y-centroid.Y, p.Z-centroid.Z
		sigma[0][0] += dx * dx
		sigma[0][1] += dx * dy
		sigma[0][2] += dx * dz
		sigma[1][1] += dy * dy
		sigma[1][2] += dy * dz
		sigma[2][2] += dz * dz
	}
	inv := 1 / float64(c.n)
	sigma[0][0] *= inv
	sigma[0][1] *= inv
	sigma[0][2] *= inv
	sigma[1][1] *= inv
	sigma[1][2] *= inv
	sigma[2][2] *= inv
	sigma[1][0] = sigma[0][1]
	sigma[2][0] = sigma[0][2]
	sigma[2][1] = sigma[1][2]
	return sigma
}

// Clone allocates a new PointCloud backed by a fresh copy of the buffer.
func (c *PointCloud) Clone() *PointCloud {
	buf := make([]float32, len(c.buf))
	copy(buf, c.buf)
	return &PointCloud{buf: buf, n: c.n}
}

// StrideIndices returns a deterministic every-k-th-point index set covering
// [0,n), with k = n/target (integer division), so it holds between target
// and 2*target indices when 0 < target < n; otherwise every index is
// returned. Stride selection (not random sampling) keeps downsampled ICP
// passes reproducible.
func StrideIndices(n, target int) []int {
	if target <= 0 || target >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	stride := n / target
	if stride < 1 {
		stride = 1
	}
	idx := make([]int, 0, target+1)
	for i := 0; i < n; i += stride {
		idx = append(idx, i)
	}
	return idx
}

func isFinite32(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
