package registration

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/viamrobotics/pcregister/numeric"
	"github.com/viamrobotics/pcregister/pointcloud"
)

// kabschNearIdentityBound is the tolerance spec.md §4.6 step 4 uses to
// decide a candidate rotation is "near identity": diagonal within this of
// 1, off-diagonal within this of 0.
const kabschNearIdentityBound = 0.5

// kabschRotationEntryBound mirrors PCA's per-entry sanity bound.
const kabschRotationEntryBound = 10.0

// kabschLargeRMSEFloor is the interpretation of spec.md §4.6 step 4's
// "current RMSE is still large" qualifier for the translation-only
// fallback: the fallback only engages while the running RMSE estimate
// exceeds this floor, so a well-converged alignment is never discarded in
// favor of a translation-only guess.
const kabschLargeRMSEFloor = 1e-2

// kabsch returns the optimal incremental rigid transform aligning paired
// point sets src -> dst (Kabsch algorithm via SVD3 of the cross-covariance).
func kabsch(src, dst []r3.Vector) (pointcloud.Transform, error) {
	n := len(src)
	var cs, cd r3.Vector
	for i := 0; i < n; i++ {
		cs = cs.Add(src[i])
		cd = cd.Add(dst[i])
	}
	inv := 1 / float64(n)
	cs = cs.Mul(inv)
	cd = cd.Mul(inv)

	var h [3][3]float64
	for i := 0; i < n; i++ {
		sx, sy, sz := src[i].X-cs.X, src[i].Y-cs.Y, src[i].Z-cs.Z
		dx, dy, dz := dst[i].X-cd.X, dst[i].Y-cd.Y, dst[i].Z-cd.Z
		h[0][0] += sx * dx
		h[0][1] += sx * dy
		h[0][2] += sx * dz
		h[1][0] += sy * dx
		h[1][1] += sy * dy
		h[1][2] += sy * dz
		h[2][0] += sz * dx
		h[2][1] += sz * dy
		h[2][2] += sz * dz
	}

	hDense := mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})

	u, _, v, err := numeric.SVD3(hDense)
	if err != nil {
		return pointcloud.Transform{}, err
	}

	var r mat.Dense
	r.Mul(v, u.T())
	rr := mat.DenseCopyOf(&r)
	if pointcloud.Det3(rr) < 0 {
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(v, u.T())
		rr = mat.DenseCopyOf(&r)
	}

	t := cd.Sub(applyRotation(rr, cs))
	return pointcloud.Transform{R: rr, T: t}, nil
}

// kabschWithFallback runs kabsch and, if the resulting rotation looks
// numerically unsafe or degenerate while the alignment is still far from
// converged, substitutes a translation-only transform (spec.md §4.6 step
// 4). currentRMSE is the RMSE from the previous iteration (+Inf on the
// first call).
func kabschWithFallback(src, dst []r3.Vector, currentRMSE float64) (pointcloud.Transform, error) {
	tr, err := kabsch(src, dst)
	if err != nil {
		return tr, err
	}
	if !rotationEntriesBounded(tr.R, kabschRotationEntryBound) ||
		(isNearIdentity(tr.R) && currentRMSE > kabschLargeRMSEFloor) {
		return translationOnly(src, dst), nil
	}
	return tr, nil
}

func isNearIdentity(r *mat.Dense) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(r.At(i, j)-want) > kabschNearIdentityBound {
				return false
			}
		}
	}
	return true
}

func translationOnly(src, dst []r3.Vector) pointcloud.Transform {
	var sum r3.Vector
	for i := range src {
		sum = sum.Add(dst[i].Sub(src[i]))
	}
	t := sum.Mul(1 / float64(len(src)))
	return pointcloud.Transform{
		R: mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		T: t,
	}
}

func rmseOf(src, dst []r3.Vector, tr pointcloud.Transform) float64 {
	var sumSq float64
	for i := range src {
		p := pointcloud.ApplyToPoint(tr, src[i])
		d := p.Sub(dst[i])
		sumSq += d.Dot(d)
	}
	return math.Sqrt(sumSq / float64(len(src)))
}
