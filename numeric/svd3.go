// Package numeric implements the fixed-size 3x3 singular value decomposition
// used by PCA axis extraction and the Kabsch step inside ICP. A general SVD
// routine is not used here: these matrices are decomposed up to hundreds of
// times per registration call, so a closed-form, allocation-light Jacobi
// routine keeps the cost O(1) per call instead of pulling a general-purpose
// solver into the ICP inner loop.
package numeric

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNumericBreakdown marks a Jacobi sweep that produced non-finite entries.
var ErrNumericBreakdown = errors.New("numeric breakdown: SVD3 sweep produced non-finite values")

const (
	jacobiMaxSweeps  = 30
	jacobiConvergeSq = 1e-14
	singularFloor    = 1e-12
)

type mat3 [3][3]float64

func toMat3(m *mat.Dense) mat3 {
	var a mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a[i][j] = m.At(i, j)
		}
	}
	return a
}

func (a mat3) toDense() *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.Set(i, j, a[i][j])
		}
	}
	return d
}

func identity3() mat3 {
	return mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

func (a mat3) transpose() mat3 {
	var b mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b[j][i] = a[i][j]
		}
	}
	return b
}

func (a mat3) mul(b mat3) mat3 {
	var c mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += a[i][k] * b[k][j]
			}
			c[i][j] = s
		}
	}
	return c
}

func (a mat3) col(j int) [3]float64 {
	return [3]float64{a[0][j], a[1][j], a[2][j]}
}

func (a *mat3) setCol(j int, v [3]float64) {
	a[0][j], a[1][j], a[2][j] = v[0], v[1], v[2]
}

func dot3(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func norm3(a [3]float64) float64 { return math.Sqrt(dot3(a, a)) }

func scale3(a [3]float64, s float64) [3]float64 {
	return [3]float64{a[0] * s, a[1] * s, a[2] * s}
}

func sub3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func matVec3(m mat3, v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

func isFiniteMat3(a mat3) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.IsNaN(a[i][j]) || math.IsInf(a[i][j], 0) {
				return false
			}
		}
	}
	return true
}

// jacobiEigenSymmetric3 runs cyclic Jacobi rotations on a symmetric 3x3
// matrix b, returning eigenvalues (unsorted, matching the columns of the
// returned eigenvector matrix v).
func jacobiEigenSymmetric3(b mat3) (eigvals [3]float64, v mat3, err error) {
	v = identity3()
	pairs := [3][2]int{{0, 1}, {0, 2}, {1, 2}}
	for sweep := 0; sweep < jacobiMaxSweeps; sweep++ {
		var offSq float64
		for _, pq := range pairs {
			p, q := pq[0], pq[1]
			offSq += b[p][q] * b[p][q]
		}
		if offSq < jacobiConvergeSq {
			break
		}
		for _, pq := range pairs {
			p, q := pq[0], pq[1]
			if b[p][q] == 0 {
				continue
			}
			theta := 0.5 * math.Atan2(2*b[p][q], b[q][q]-b[p][p])
			c, s := math.Cos(theta), math.Sin(theta)

			bpp := c*c*b[p][p] - 2*s*c*b[p][q] + s*s*b[q][q]
			bqq := s*s*b[p][p] + 2*s*c*b[p][q] + c*c*b[q][q]
			b[p][p], b[q][q] = bpp, bqq
			b[p][q], b[q][p] = 0, 0

			for k := 0; k < 3; k++ {
				if k == p || k == q {
					continue
				}
				bkp := c*b[k][p] - s*b[k][q]
				bkq := s*b[k][p] + c*b[k][q]
				b[k][p], b[p][k] = bkp, bkp
				b[k][q], b[q][k] = bkq, bkq
			}

			for k := 0; k < 3; k++ {
				vkp := c*v[k][p] - s*v[k][q]
				vkq := s*v[k][p] + c*v[k][q]
				v[k][p], v[k][q] = vkp, vkq
			}

			if !isFiniteMat3(b) || !isFiniteMat3(v) {
				return eigvals, v, ErrNumericBreakdown
			}
		}
	}
	eigvals = [3]float64{b[0][0], b[1][1], b[2][2]}
	return eigvals, v, nil
}

// SVD3 decomposes a as U * diag(S) * V^T with S descending and U, V
// orthonormal. It fails with ErrNumericBreakdown if a Jacobi sweep produces
// non-finite entries.
func SVD3(a *mat.Dense) (u, s, v *mat.Dense, err error) {
	am := toMat3(a)
	if !isFiniteMat3(am) {
		return nil, nil, nil, ErrNumericBreakdown
	}
	ata := am.transpose().mul(am)

	eigvals, vm, err := jacobiEigenSymmetric3(ata)
	if err != nil {
		return nil, nil, nil, err
	}

	type es struct {
		val float64
		vec [3]float64
	}
	entries := make([]es, 3)
	for i := 0; i < 3; i++ {
		ev := eigvals[i]
		if ev < 0 {
			ev = 0
		}
		entries[i] = es{val: ev, vec: vm.col(i)}
	}
	// Descending sort, 3 elements: insertion sort is exact and allocation-free.
	for i := 1; i < 3; i++ {
		j := i
		for j > 0 && entries[j-1].val < entries[j].val {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}

	var vOut mat3
	sOut := [3]float64{}
	for i, e := range entries {
		sOut[i] = math.Sqrt(e.val)
		vOut.setCol(i, e.vec)
	}

	var uOut mat3
	for i := 0; i < 3; i++ {
		col := matVec3(am, vOut.col(i))
		if sOut[i] > singularFloor {
			// Project out the columns already placed: a tiny singular value
			// leaves A*v_i dominated by rounding error, and a column that
			// collapses under the projection takes the replacement below.
			col = scale3(col, 1/sOut[i])
			for k := 0; k < i; k++ {
				col = sub3(col, scale3(uOut.col(k), dot3(uOut.col(k), col)))
			}
			if n := norm3(col); n > 0.5 {
				uOut.setCol(i, scale3(col, 1/n))
				continue
			}
		}
		// Singular value below the safeguard threshold (or a column lost to
		// the projection above): pick an orthonormal replacement column via
		// Gram-Schmidt against the columns already placed in U.
		candidate := gramSchmidtReplacement(uOut, i)
		uOut.setCol(i, candidate)
	}

	if !isFiniteMat3(uOut) || !isFiniteMat3(vOut) {
		return nil, nil, nil, ErrNumericBreakdown
	}

	return uOut.toDense(), mat.NewDense(3, 1, sOut[:]), vOut.toDense(), nil
}

// gramSchmidtReplacement returns a unit vector orthogonal to the first
// `upto` columns of u, trying the standard basis vectors in turn.
func gramSchmidtReplacement(u mat3, upto int) [3]float64 {
	basis := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for _, e := range basis {
		v := e
		for k := 0; k < upto; k++ {
			uk := u.col(k)
			v = sub3(v, scale3(uk, dot3(uk, v)))
		}
		if n := norm3(v); n > 1e-8 {
			return scale3(v, 1/n)
		}
	}
	return basis[0]
}
