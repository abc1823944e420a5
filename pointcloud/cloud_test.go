package pointcloud

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestNewValidatesLength(t *testing.T) {
	_, err := New([]float32{1, 2, 3, 4})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(nil)
	test.That(t, err, test.ShouldNotBeNil)

	pc, err := New([]float32{0, 0, 0, 1, 1, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.N(), test.ShouldEqual, 2)
}

func TestNewRejectsNonFinite(t *testing.T) {
	_, err := New([]float32{0, 0, 0, float32(math.NaN()), 1, 1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAtAndCentroid(t *testing.T) {
	pc, err := New([]float32{0, 0, 0, 2, 0, 0, 0, 2, 0, 0, 0, 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.At(1), test.ShouldResemble, r3.Vector{X: 2, Y: 0, Z: 0})

	c := pc.Centroid()
	test.That(t, c.X, test.ShouldAlmostEqual, 0.5)
	test.That(t, c.Y, test.ShouldAlmostEqual, 0.5)
	test.That(t, c.Z, test.ShouldAlmostEqual, 0.5)
}

func TestCovarianceOfAxisAlignedCloud(t *testing.T) {
	// Points equally spread along x only: covariance should be diagonal
	// with all the variance on the x axis.
	pc, err := New([]float32{-1, 0, 0, 0, 0, 0, 1, 0, 0})
	test.That(t, err, test.ShouldBeNil)
	sigma := pc.Covariance(pc.Centroid())
	test.That(t, sigma[0][0], test.ShouldBeGreaterThan, 0)
	test.That(t, sigma[1][1], test.ShouldAlmostEqual, 0)
	test.That(t, sigma[2][2], test.ShouldAlmostEqual, 0)
	test.That(t, sigma[0][1], test.ShouldAlmostEqual, 0)
}

func TestStrideIndicesDeterministic(t *testing.T) {
	idx1 := StrideIndices(1000, 100)
	idx2 := StrideIndices(1000, 100)
	test.That(t, idx1, test.ShouldResemble, idx2)
	test.That(t, len(idx1), test.ShouldBeLessThanOrEqualTo, 120)

	all := StrideIndices(10, 0)
	test.That(t, len(all), test.ShouldEqual, 10)
}

func TestCloneIsIndependentBuffer(t *testing.T) {
	pc, err := New([]float32{1, 2, 3})
	test.That(t, err, test.ShouldBeNil)
	clone := pc.Clone()
	clone.Buf()[0] = 99
	test.That(t, pc.Buf()[0], test.ShouldEqual, float32(1))
}
