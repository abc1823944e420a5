// Package registration implements the point-cloud registration core: PCA
// coarse alignment, optional RANSAC outlier rejection, ICP refinement, and
// residual metrics, orchestrated by Register.
package registration

import (
	"github.com/viamrobotics/pcregister/pointcloud"
	"github.com/viamrobotics/pcregister/spatialindex"
)

// Result is the aggregated output of Register (spec.md §6 "Output
// contract").
type Result struct {
	Transform pointcloud.Transform
	ICP       ICPResult
	Metrics   Metrics
	PCA       PCADiagnostics
	RANSAC    *RANSACResult // nil unless Params.UseRANSAC
}

// Register orchestrates PCAAligner -> optional RANSACFilter -> ICPRefiner
// -> Metrics over a single shared target index (spec.md §4.9).
func Register(s, t *pointcloud.PointCloud, p Params) (Result, error) {
	if s.N() < 3 || t.N() < 3 {
		return Result{}, ErrInsufficientPoints
	}
	p = p.withDefaults()

	idx, err := spatialindex.Build(t.Buf(), t.N(), p.KDTreeThreshold, p.SpatialGridCellSize)
	if err != nil {
		return Result{}, err
	}

	m0, pcaDiag := PCAAlign(s, t, p.EventSink)

	mr := m0
	var ransacResult *RANSACResult
	if p.UseRANSAC {
		rr, err := RANSACFilter(s, t, m0, idx, p)
		if err != nil {
			return Result{}, err
		}
		mr = rr.Transform
		ransacResult = &rr
	}

	icp, err := ICPRefine(s, t, mr, idx, p)
	if err != nil {
		return Result{}, err
	}

	m, err := ComputeMetrics(s, t, icp.Transform, idx)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Transform: icp.Transform,
		ICP:       icp,
		Metrics:   m,
		PCA:       pcaDiag,
		RANSAC:    ransacResult,
	}, nil
}
