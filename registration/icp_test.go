package registration

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viamrobotics/pcregister/pointcloud"
	"github.com/viamrobotics/pcregister/spatialindex"
)

func buildIdx(t *testing.T, c *pointcloud.PointCloud) spatialindex.Index {
	t.Helper()
	idx, err := spatialindex.Build(c.Buf(), c.N(), spatialindex.DefaultKDTreeThreshold, 0)
	test.That(t, err, test.ShouldBeNil)
	return idx
}

func TestICPRefineIdentityConverges(t *testing.T) {
	s := mustCloud(cubeBuf())
	idx := buildIdx(t, s)
	res, err := ICPRefine(s, s, pointcloud.Identity(), idx, DefaultParams())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Converged, test.ShouldBeTrue)
	test.That(t, res.FinalRMSE < 1e-6, test.ShouldBeTrue)
	test.That(t, res.Iterations >= 1, test.ShouldBeTrue)
}

func TestICPRefineRecoversPureTranslation(t *testing.T) {
	sBuf := cubeBuf()
	tgt := pointcloud.Transform{R: pointcloud.Identity().R, T: r3VectorOf(1, 1, 1)}
	tBuf := transformBuf(sBuf, tgt)

	s := mustCloud(sBuf)
	tCloud := mustCloud(tBuf)
	idx := buildIdx(t, tCloud)

	// Seed near the true offset. From the identity every source corner's
	// nearest target is the same corner (1,1,1), so the translation-only
	// step stalls at half the offset; Register avoids this by seeding ICP
	// with PCA.
	seed := pointcloud.Transform{R: pointcloud.Identity().R, T: r3VectorOf(0.9, 0.9, 0.9)}
	res, err := ICPRefine(s, tCloud, seed, idx, DefaultParams())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.FinalRMSE < 1e-6, test.ShouldBeTrue)
	test.That(t, res.Transform.T.X, test.ShouldAlmostEqual, 1.0, 1e-4)
	test.That(t, res.Transform.T.Y, test.ShouldAlmostEqual, 1.0, 1e-4)
	test.That(t, res.Transform.T.Z, test.ShouldAlmostEqual, 1.0, 1e-4)
}

func TestICPRefineFixesTranslationOffsetFrom90DegreeSeed(t *testing.T) {
	sBuf := cubeBuf()
	rot := pointcloud.Transform{R: rotZBuf(math.Pi / 2), T: r3VectorOf(0, 0, 0)}
	tBuf := transformBuf(sBuf, rot)

	s := mustCloud(sBuf)
	tCloud := mustCloud(tBuf)
	idx := buildIdx(t, tCloud)

	// Seed at the true rotation with a small translation offset; ICP must
	// remove the offset while keeping the rotation.
	seed := pointcloud.Transform{R: rotZBuf(math.Pi / 2), T: r3VectorOf(0.05, 0, 0)}
	res, err := ICPRefine(s, tCloud, seed, idx, DefaultParams())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Converged, test.ShouldBeTrue)
	test.That(t, res.FinalRMSE < 1e-6, test.ShouldBeTrue)
	test.That(t, res.Transform.R.At(0, 0), test.ShouldAlmostEqual, 0.0, 1e-3)
	test.That(t, res.Transform.R.At(0, 1), test.ShouldAlmostEqual, -1.0, 1e-3)
	test.That(t, res.Transform.T.X, test.ShouldAlmostEqual, 0.0, 1e-3)
}

func TestICPRefineRecoversSmallRotationPerturbation(t *testing.T) {
	sBuf := cubeBuf()
	rot := pointcloud.Transform{R: rotZBuf(math.Pi / 2), T: r3VectorOf(0, 0, 0)}
	tBuf := transformBuf(sBuf, rot)

	s := mustCloud(sBuf)
	tCloud := mustCloud(tBuf)
	idx := buildIdx(t, tCloud)

	// Seed slightly off the true rotation; once the residual drops out of
	// the translation-only fallback regime the Kabsch step closes the gap.
	seed := pointcloud.Transform{R: rotZBuf(math.Pi/2 - 0.005), T: r3VectorOf(0, 0, 0)}
	res, err := ICPRefine(s, tCloud, seed, idx, DefaultParams())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.FinalRMSE < 1e-6, test.ShouldBeTrue)
	test.That(t, res.Transform.R.At(0, 0), test.ShouldAlmostEqual, 0.0, 1e-3)
	test.That(t, res.Transform.R.At(0, 1), test.ShouldAlmostEqual, -1.0, 1e-3)
}

func TestICPRefineRejectsTooFewPoints(t *testing.T) {
	s := mustCloud([]float32{0, 0, 0, 1, 1, 1})
	idx := buildIdx(t, s)
	_, err := ICPRefine(s, s, pointcloud.Identity(), idx, DefaultParams())
	test.That(t, err, test.ShouldEqual, ErrInsufficientPoints)
}

func TestICPRefineHonorsCancelToken(t *testing.T) {
	s := mustCloud(cubeBuf())
	idx := buildIdx(t, s)
	cancel := make(chan struct{})
	close(cancel)
	p := DefaultParams()
	p.CancelToken = cancel
	res, err := ICPRefine(s, s, pointcloud.Identity(), idx, p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.TerminationReason, test.ShouldEqual, ReasonUserCancelled)
}

func TestWorkingSetIndicesZeroTriggerDisablesDownsampling(t *testing.T) {
	p := DefaultParams()
	p.DownsampleTrigger = 0
	p.DownsampleLargeTrigger = 0

	// A 40,000-point cloud is above the default mid-size trigger; with the
	// trigger zeroed out every point must survive, early and late alike.
	early := workingSetIndices(40000, 0, p)
	test.That(t, len(early), test.ShouldEqual, 40000)
	late := workingSetIndices(40000, p.MaxIterations-1, p)
	test.That(t, len(late), test.ShouldEqual, 40000)
}

func TestWorkingSetIndicesZeroTriggerSurvivesDefaults(t *testing.T) {
	p := DefaultParams()
	p.DownsampleTrigger = 0
	p = p.withDefaults()
	test.That(t, p.DownsampleTrigger, test.ShouldEqual, 0)

	p = Params{DownsampleTrigger: -1}.withDefaults()
	test.That(t, p.DownsampleTrigger, test.ShouldEqual, DefaultParams().DownsampleTrigger)
}

func TestWorkingSetIndicesMidRegime(t *testing.T) {
	p := DefaultParams()
	p.DownsampleTrigger = 100
	p.DownsampleTarget = 10
	p.MaxIterations = 10
	early := workingSetIndices(1000, 0, p)
	late := workingSetIndices(1000, 9, p)
	test.That(t, len(early) < len(late), test.ShouldBeTrue)
}

func r3VectorOf(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}
