package registration

import (
	"testing"

	"go.viam.com/test"

	"github.com/viamrobotics/pcregister/pointcloud"
)

func TestRANSACFilterRejectsSampleTooSmall(t *testing.T) {
	s := mustCloud([]float32{0, 0, 0, 1, 1, 1})
	idx := buildIdx(t, s)
	p := DefaultParams()
	p.RANSAC.SampleSize = 2
	_, err := RANSACFilter(s, s, pointcloud.Identity(), idx, p)
	test.That(t, err, test.ShouldEqual, ErrSampleTooSmall)
}

func TestRANSACFilterFindsInliersOnCleanData(t *testing.T) {
	s := mustCloud(cubeBuf())
	idx := buildIdx(t, s)
	p := DefaultParams()
	p.RANSAC.Seed = 42
	p.RANSAC.MaxIterations = 10

	res, err := RANSACFilter(s, s, pointcloud.Identity(), idx, p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.InlierRatio, test.ShouldAlmostEqual, 1.0, 1e-6)
	test.That(t, len(res.InlierIndices), test.ShouldEqual, s.N())
}

func TestDistinctSampleNeverRepeats(t *testing.T) {
	rng := deterministicRand(1)
	idxs := distinctSample(rng, 10, 4)
	seen := map[int]bool{}
	for _, i := range idxs {
		test.That(t, seen[i], test.ShouldBeFalse)
		seen[i] = true
	}
	test.That(t, len(idxs), test.ShouldEqual, 4)
}
