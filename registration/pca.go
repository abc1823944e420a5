package registration

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/viamrobotics/pcregister/numeric"
	"github.com/viamrobotics/pcregister/pointcloud"
)

// pcaSampleSize is the target size of the point sample used to sanity-check
// a candidate PCA rotation, per spec.md §4.5 step 6 ("e.g. 32 points");
// StrideIndices returns between 32 and 64 points for clouds larger than it.
// Sampling is deterministic stride, not PRNG-random, so the check is
// reproducible for a given cloud.
const pcaSampleSize = 32

// pcaRotationEntryBound is the per-entry bound spec.md §4.5 step 6 checks
// a candidate rotation against before trusting it.
const pcaRotationEntryBound = 10.0

// pcaSpectrumRatioFloor bounds how small a covariance singular value may
// be relative to the largest before the axis assignment is considered
// unreliable. Clouds concentrated on a line or plane fall below it and
// take the centroid-only fallback.
const pcaSpectrumRatioFloor = 1e-6

func cov3ToDense(sigma [3][3]float64) *mat.Dense {
	flat := make([]float64, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			flat[3*i+j] = sigma[i][j]
		}
	}
	return mat.NewDense(3, 3, flat)
}

// PCADiagnostics reports non-fatal notes from PCAAlign.
type PCADiagnostics struct {
	DegenerateAxes bool
}

// PCAAlign computes a coarse rigid alignment from the principal axes of s
// and t (spec.md §4.5). It never fails the pipeline: a degenerate
// covariance spectrum falls back to a centroid-only translation and sets
// DegenerateAxes in the returned diagnostics.
func PCAAlign(s, t *pointcloud.PointCloud, sink EventSink) (pointcloud.Transform, PCADiagnostics) {
	cs := s.Centroid()
	ct := t.Centroid()

	sigmaS := cov3ToDense(s.Covariance(cs))
	sigmaT := cov3ToDense(t.Covariance(ct))

	_, specS, vS, errS := numeric.SVD3(sigmaS)
	_, specT, vT, errT := numeric.SVD3(sigmaT)

	fallback := func(note string) (pointcloud.Transform, PCADiagnostics) {
		emit(sink, Event{Stage: "pca", Note: note})
		return pointcloud.Transform{
			R: mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
			T: ct.Sub(cs),
		}, PCADiagnostics{DegenerateAxes: true}
	}

	if errS != nil || errT != nil {
		return fallback("degenerate covariance spectrum: SVD3 breakdown")
	}
	if spectrumNearSingular(specS) || spectrumNearSingular(specT) {
		return fallback("degenerate covariance spectrum: near-singular principal axes")
	}

	r := composeR(vT, vS)
	if pointcloud.Det3(r) < 0 {
		negateLastColumn(vT)
		r = composeR(vT, vS)
	}

	if !rotationEntriesBounded(r, pcaRotationEntryBound) {
		return fallback("degenerate covariance spectrum: rotation entries out of bound")
	}

	translation := ct.Sub(applyRotation(r, cs))
	candidate := pointcloud.Transform{R: r, T: translation}

	if !sampleTransformFinite(candidate, s) {
		return fallback("degenerate covariance spectrum: sampled transform not finite")
	}

	emit(sink, Event{Stage: "pca", Note: "aligned via principal axes"})
	return candidate, PCADiagnostics{}
}

// spectrumNearSingular reports whether the descending singular-value
// column spec of a covariance matrix has collapsed along at least one
// axis, making the principal-axes assignment unreliable.
func spectrumNearSingular(spec *mat.Dense) bool {
	largest := spec.At(0, 0)
	smallest := spec.At(2, 0)
	return largest <= 0 || smallest < largest*pcaSpectrumRatioFloor
}

func composeR(vT, vS *mat.Dense) *mat.Dense {
	var vST mat.Dense
	vST.Mul(vT, vS.T())
	return mat.DenseCopyOf(&vST)
}

func negateLastColumn(v *mat.Dense) {
	for i := 0; i < 3; i++ {
		v.Set(i, 2, -v.At(i, 2))
	}
}

func rotationEntriesBounded(r *mat.Dense, bound float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(r.At(i, j)) > bound {
				return false
			}
		}
	}
	return true
}

func applyRotation(r *mat.Dense, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: r.At(0, 0)*p.X + r.At(0, 1)*p.Y + r.At(0, 2)*p.Z,
		Y: r.At(1, 0)*p.X + r.At(1, 1)*p.Y + r.At(1, 2)*p.Z,
		Z: r.At(2, 0)*p.X + r.At(2, 1)*p.Y + r.At(2, 2)*p.Z,
	}
}

func sampleTransformFinite(tr pointcloud.Transform, s *pointcloud.PointCloud) bool {
	idxs := pointcloud.StrideIndices(s.N(), pcaSampleSize)
	for _, i := range idxs {
		p := pointcloud.ApplyToPoint(tr, s.At(i))
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) ||
			math.IsNaN(p.Y) || math.IsInf(p.Y, 0) ||
			math.IsNaN(p.Z) || math.IsInf(p.Z, 0) {
			return false
		}
	}
	return true
}
