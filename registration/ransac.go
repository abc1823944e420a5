package registration

import (
	"math"
	"math/rand"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/viamrobotics/pcregister/pointcloud"
	"github.com/viamrobotics/pcregister/spatialindex"
)

// RANSACResult is the outcome of RANSACFilter (spec.md §4.7).
type RANSACResult struct {
	Transform     pointcloud.Transform
	InlierIndices []int
	InlierRatio   float64
}

// ransacThresholdSampleSize is the target size of the stride sample
// RANSACFilter draws to estimate whether M0 is a poor initial guess
// (spec.md §4.7 step 2); StrideIndices may return up to twice as many.
const ransacThresholdSampleSize = 64

// RANSACFilter hypothesizes, scores, and selects the best sampled rigid
// transform to reject correspondence outliers ahead of ICP (spec.md §4.7).
// idx must have been built over t.
func RANSACFilter(s, t *pointcloud.PointCloud, m0 pointcloud.Transform, idx spatialindex.Index, p Params) (RANSACResult, error) {
	sampleSize := p.RANSAC.SampleSize
	if sampleSize > s.N() {
		sampleSize = s.N()
	}
	if sampleSize < 3 {
		return RANSACResult{}, ErrSampleTooSmall
	}

	threshold := effectiveThreshold(s, m0, idx, p.RANSAC.InlierThreshold)
	thresholdSq := threshold * threshold

	rng := rand.New(rand.NewSource(p.RANSAC.Seed))

	var best RANSACResult
	bestCount := -1

	for round := 0; round < p.RANSAC.MaxIterations; round++ {
		sampleIdx := distinctSample(rng, s.N(), sampleSize)

		srcPts := make([]r3.Vector, 0, sampleSize)
		tgtPts := make([]r3.Vector, 0, sampleSize)
		ok := true
		for _, si := range sampleIdx {
			p0 := pointcloud.ApplyToPoint(m0, s.At(si))
			ti, _, err := idx.Nearest(p0)
			if err != nil {
				ok = false
				break
			}
			srcPts = append(srcPts, p0)
			tgtPts = append(tgtPts, t.At(ti))
		}
		if !ok || len(srcPts) < 3 {
			continue
		}

		mk, err := kabsch(srcPts, tgtPts)
		if err != nil {
			continue
		}
		candidate := pointcloud.Compose(mk, m0)

		inliers := make([]int, 0, s.N())
		for i := 0; i < s.N(); i++ {
			q := pointcloud.ApplyToPoint(candidate, s.At(i))
			_, d2, err := idx.Nearest(q)
			if err != nil {
				continue
			}
			if d2 < thresholdSq {
				inliers = append(inliers, i)
			}
		}

		emit(p.EventSink, Event{Stage: "ransac", Iteration: round + 1, Note: "round scored"})

		if len(inliers) > bestCount {
			bestCount = len(inliers)
			best = RANSACResult{
				Transform:     candidate,
				InlierIndices: inliers,
				InlierRatio:   float64(len(inliers)) / float64(s.N()),
			}
		}
	}

	if bestCount < 0 {
		// No round produced a usable sample; fall back to the initial guess
		// untouched so the caller still gets a valid transform.
		return RANSACResult{Transform: m0, InlierIndices: nil, InlierRatio: 0}, nil
	}
	return best, nil
}

// effectiveThreshold implements spec.md §4.7 step 2: widen the configured
// inlier threshold when a quick sample under m0 shows M0 is a poor initial
// guess.
func effectiveThreshold(s *pointcloud.PointCloud, m0 pointcloud.Transform, idx spatialindex.Index, configured float64) float64 {
	sampleIdx := pointcloud.StrideIndices(s.N(), ransacThresholdSampleSize)
	residuals := make([]float64, 0, len(sampleIdx))
	for _, si := range sampleIdx {
		q := pointcloud.ApplyToPoint(m0, s.At(si))
		_, d2, err := idx.Nearest(q)
		if err != nil {
			continue
		}
		residuals = append(residuals, math.Sqrt(d2))
	}
	if len(residuals) == 0 {
		return configured
	}
	sort.Float64s(residuals)
	median := residuals[len(residuals)/2]
	if median > configured {
		return configured * (median / configured)
	}
	return configured
}

// distinctSample draws k distinct indices in [0, n) using partial
// Fisher-Yates over a scratch permutation of all n indices. Only k swaps
// are made, but the n-element permutation is allocated and filled on every
// call.
func distinctSample(rng *rand.Rand, n, k int) []int {
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	out := make([]int, k)
	copy(out, pool[:k])
	return out
}
