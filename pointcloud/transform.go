package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// rigidDetEpsilon bounds how far det(R) may stray from +1 for a Transform
// to still count as rigid, per spec: |det(R)-1| < 1e-4 after an ICP/PCA
// step, 1e-6 for a Transform the core itself just produced.
const rigidDetEpsilon = 1e-4

// Transform is a 4x4 rigid transform [R|t; 0 0 0 1]. R is stored as a 3x3
// gonum matrix; the bottom row is never materialized since it is always
// exactly [0 0 0 1] for every Transform this package produces.
type Transform struct {
	R *mat.Dense // 3x3
	T r3.Vector
}

// Identity returns the identity rigid transform.
func Identity() Transform {
	return Transform{
		R: mat.NewDense(3, 3, []float64{
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		}),
		T: r3.Vector{},
	}
}

// Det3 returns det(R) for a 3x3 matrix.
func Det3(r *mat.Dense) float64 {
	return mat.Det(r)
}

// IsRigid reports whether det(r) lies within epsilon of +1. Orthonormality
// of r is not checked.
func IsRigid(r *mat.Dense, epsilon float64) bool {
	d := Det3(r)
	return d > 1-epsilon && d < 1+epsilon
}

func mulMat3(a, b *mat.Dense) *mat.Dense {
	var c mat.Dense
	c.Mul(a, b)
	return &c
}

func mulMat3Vec(r *mat.Dense, v r3.Vector) r3.Vector {
	r00, r01, r02 := r.At(0, 0), r.At(0, 1), r.At(0, 2)
	r10, r11, r12 := r.At(1, 0), r.At(1, 1), r.At(1, 2)
	r20, r21, r22 := r.At(2, 0), r.At(2, 1), r.At(2, 2)
	return r3.Vector{
		X: r00*v.X + r01*v.Y + r02*v.Z,
		Y: r10*v.X + r11*v.Y + r12*v.Z,
		Z: r20*v.X + r21*v.Y + r22*v.Z,
	}
}

// Compose returns the transform equivalent to applying b then a: p' =
// a(b(p)). If both inputs are rigid the result is rigid.
func Compose(a, b Transform) Transform {
	r := mulMat3(a.R, b.R)
	t := mulMat3Vec(a.R, b.T)
	t = t.Add(a.T)
	return Transform{R: r, T: t}
}

// InvertRigid returns the inverse of a rigid transform: [R^T | -R^T t].
// Fails with ErrNonRigidInput if det(R) is not within rigidDetEpsilon of +1.
func InvertRigid(t Transform) (Transform, error) {
	if !IsRigid(t.R, rigidDetEpsilon) {
		return Transform{}, errors.Wrapf(ErrNonRigidInput, "det(R)=%g", Det3(t.R))
	}
	rt := mat.DenseCopyOf(t.R.T())
	inv := mulMat3Vec(rt, t.T)
	return Transform{R: rt, T: r3.Vector{X: -inv.X, Y: -inv.Y, Z: -inv.Z}}, nil
}

// ApplyToPoint returns R*p + t.
func ApplyToPoint(t Transform, p r3.Vector) r3.Vector {
	return mulMat3Vec(t.R, p).Add(t.T)
}

// ApplyToCloud returns a newly allocated transformed cloud.
func ApplyToCloud(t Transform, c *PointCloud) (*PointCloud, error) {
	out := make([]float32, len(c.buf))
	if err := applyInto(t, c, out); err != nil {
		return nil, err
	}
	return &PointCloud{buf: out, n: c.n}, nil
}

// ApplyToCloudInPlace writes the transformed cloud into a caller-owned
// scratch buffer of matching length. It never allocates.
func ApplyToCloudInPlace(t Transform, c *PointCloud, scratch []float32) error {
	if len(scratch) != len(c.buf) {
		return errors.Errorf("pointcloud: scratch buffer length %d does not match cloud buffer length %d", len(scratch), len(c.buf))
	}
	return applyInto(t, c, scratch)
}

func applyInto(t Transform, c *PointCloud, dst []float32) error {
	r00, r01, r02 := t.R.At(0, 0), t.R.At(0, 1), t.R.At(0, 2)
	r10, r11, r12 := t.R.At(1, 0), t.R.At(1, 1), t.R.At(1, 2)
	r20, r21, r22 := t.R.At(2, 0), t.R.At(2, 1), t.R.At(2, 2)
	tx, ty, tz := t.T.X, t.T.Y, t.T.Z
	for i := 0; i < c.n; i++ {
		o := 3 * i
		x, y, z := float64(c.buf[o]), float64(c.buf[o+1]), float64(c.buf[o+2])
		nx := r00*x + r01*y + r02*z + tx
		ny := r10*x + r11*y + r12*z + ty
		nz := r20*x + r21*y + r22*z + tz
		if !isFinite(nx) || !isFinite(ny) || !isFinite(nz) {
			return errors.Wrapf(ErrNonFiniteInput, "transformed point %d became non-finite", i)
		}
		dst[o] = float32(nx)
		dst[o+1] = float32(ny)
		dst[o+2] = float32(nz)
	}
	return nil
}
