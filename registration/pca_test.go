package registration

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/viamrobotics/pcregister/pointcloud"
)

func TestPCAAlignIdentityForEqualClouds(t *testing.T) {
	s := mustCloud(cubeBuf())
	tr, diag := PCAAlign(s, s, nil)
	test.That(t, diag.DegenerateAxes, test.ShouldBeFalse)

	p := s.At(0)
	q := pointcloud.ApplyToPoint(tr, p)
	d := p.Sub(q)
	test.That(t, math.Sqrt(d.Dot(d)) < 0.5, test.ShouldBeTrue)
}

func TestPCAAlignRecoversTranslation(t *testing.T) {
	sBuf := cubeBuf()
	translated := make([]float32, len(sBuf))
	copy(translated, sBuf)
	for i := 0; i < len(translated); i += 3 {
		translated[i] += 2
		translated[i+1] += 2
		translated[i+2] += 2
	}
	s := mustCloud(sBuf)
	tt := mustCloud(translated)

	tr, diag := PCAAlign(s, tt, nil)
	test.That(t, diag.DegenerateAxes, test.ShouldBeFalse)
	test.That(t, tr.T.X, test.ShouldAlmostEqual, 2.0, 0.25)
	test.That(t, tr.T.Y, test.ShouldAlmostEqual, 2.0, 0.25)
	test.That(t, tr.T.Z, test.ShouldAlmostEqual, 2.0, 0.25)
}

func TestPCAAlignDegenerateAxesFallback(t *testing.T) {
	s := mustCloud(collinearBuf())
	tr, diag := PCAAlign(s, s, nil)
	test.That(t, diag.DegenerateAxes, test.ShouldBeTrue)
	test.That(t, tr.R.At(0, 0), test.ShouldAlmostEqual, 1.0)
	test.That(t, tr.R.At(1, 1), test.ShouldAlmostEqual, 1.0)
	test.That(t, tr.R.At(2, 2), test.ShouldAlmostEqual, 1.0)
	test.That(t, tr.T.X, test.ShouldAlmostEqual, 0.0)
}

func TestPCAAlignEmitsEventOnFallback(t *testing.T) {
	s := mustCloud(collinearBuf())
	var notes []string
	sink := func(e Event) { notes = append(notes, e.Note) }
	_, diag := PCAAlign(s, s, sink)
	test.That(t, diag.DegenerateAxes, test.ShouldBeTrue)
	test.That(t, len(notes), test.ShouldBeGreaterThanOrEqualTo, 1)
}
