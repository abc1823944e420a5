package registration

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/viamrobotics/pcregister/pointcloud"
)

func deterministicRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// cubeBuf returns the 8-corner unit cube used across registration tests: a
// cloud with a non-degenerate covariance spectrum along all three axes.
func cubeBuf() []float32 {
	return []float32{
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		1, 1, 0,
		1, 0, 1,
		0, 1, 1,
		1, 1, 1,
	}
}

func mustCloud(buf []float32) *pointcloud.PointCloud {
	pc, err := pointcloud.New(buf)
	if err != nil {
		panic(err)
	}
	return pc
}

func rotZBuf(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// transformBuf applies tr to every point in buf and returns a fresh buffer.
func transformBuf(buf []float32, tr pointcloud.Transform) []float32 {
	out := make([]float32, len(buf))
	for i := 0; i < len(buf)/3; i++ {
		o := 3 * i
		p := r3.Vector{X: float64(buf[o]), Y: float64(buf[o+1]), Z: float64(buf[o+2])}
		p2 := pointcloud.ApplyToPoint(tr, p)
		out[o], out[o+1], out[o+2] = float32(p2.X), float32(p2.Y), float32(p2.Z)
	}
	return out
}

// collinearBuf lies entirely on the line y=z=0, a degenerate covariance
// spectrum PCAAlign must fall back on (spec.md §8 scenario 6).
func collinearBuf() []float32 {
	return []float32{
		0, 0, 0,
		1, 0, 0,
		2, 0, 0,
		3, 0, 0,
		4, 0, 0,
	}
}
