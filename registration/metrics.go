package registration

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"

	"github.com/viamrobotics/pcregister/pointcloud"
	"github.com/viamrobotics/pcregister/spatialindex"
)

// Metrics is the residual-distance summary over a final alignment (spec.md
// §3 "Metrics", §4.8).
type Metrics struct {
	RMSE   float64
	Max    float64
	Mean   float64
	Median float64
}

// ComputeMetrics transforms s in place into scratch by tr, queries idx
// (built over t) for each point's nearest neighbor, and summarizes the
// Euclidean residual distances. idx must have been built over t.
func ComputeMetrics(s, t *pointcloud.PointCloud, tr pointcloud.Transform, idx spatialindex.Index) (Metrics, error) {
	scratch := make([]float32, len(s.Buf()))
	if err := pointcloud.ApplyToCloudInPlace(tr, s, scratch); err != nil {
		return Metrics{}, err
	}

	dists := make([]float64, 0, s.N())
	var sumSq float64
	for i := 0; i < s.N(); i++ {
		o := 3 * i
		q := r3.Vector{X: float64(scratch[o]), Y: float64(scratch[o+1]), Z: float64(scratch[o+2])}
		_, d2, err := idx.Nearest(q)
		if err != nil {
			continue
		}
		d := math.Sqrt(d2)
		dists = append(dists, d)
		sumSq += d2
	}
	if len(dists) == 0 {
		return Metrics{}, ErrInsufficientPoints
	}

	rmse := math.Sqrt(sumSq / float64(len(dists)))
	mean, err := stats.Mean(dists)
	if err != nil {
		return Metrics{}, err
	}
	max, err := stats.Max(dists)
	if err != nil {
		return Metrics{}, err
	}
	median := selectMedian(dists)

	return Metrics{RMSE: rmse, Max: max, Mean: mean, Median: median}, nil
}

// selectMedian finds the median via iterative quickselect (Lomuto
// partition) on a scratch copy, so callers with 100k+ residual sets never
// pay for a full sort (spec.md §4.8).
func selectMedian(d []float64) float64 {
	scratch := make([]float64, len(d))
	copy(scratch, d)
	n := len(scratch)
	if n%2 == 1 {
		return quickselectFloat64(scratch, n/2)
	}
	lo := quickselectFloat64(scratch, n/2-1)
	// scratch is now partitioned around n/2-1; the upper median is the min
	// of the remaining right partition.
	hi := scratch[n/2]
	for i := n/2 + 1; i < n; i++ {
		if scratch[i] < hi {
			hi = scratch[i]
		}
	}
	return (lo + hi) / 2
}

func quickselectFloat64(a []float64, k int) float64 {
	lo, hi := 0, len(a)-1
	for {
		if lo == hi {
			return a[lo]
		}
		p := partitionFloat64(a, lo, hi)
		switch {
		case k == p:
			return a[p]
		case k < p:
			hi = p - 1
		default:
			lo = p + 1
		}
	}
}

func partitionFloat64(a []float64, lo, hi int) int {
	pivot := a[hi]
	i := lo
	for j := lo; j < hi; j++ {
		if a[j] < pivot {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}
