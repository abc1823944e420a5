package spatialindex

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestBuildSelectsExactBelowThreshold(t *testing.T) {
	idx, err := Build(testBuf(), 8, 60000, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, idx.Kind, test.ShouldEqual, KindExact)

	i, d2, err := idx.Nearest(r3.Vector{X: 3, Y: 3, Z: 3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, i, test.ShouldEqual, 3)
	test.That(t, d2, test.ShouldEqual, 0.0)
}

func TestBuildSelectsApproximateAboveThreshold(t *testing.T) {
	idx, err := Build(testBuf(), 8, 4, 1.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, idx.Kind, test.ShouldEqual, KindApproximate)

	i, _, err := idx.Nearest(r3.Vector{X: 3, Y: 3, Z: 3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, i, test.ShouldEqual, 3)
}
