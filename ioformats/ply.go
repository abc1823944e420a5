// Package ioformats implements the external point-cloud readers spec.md §6
// places outside the core's scope: ASCII/binary PLY and 3-column CSV,
// producing the flat f32 buffer the registration core consumes.
package ioformats

import (
	"io"
	"math"
	"os"

	"github.com/chenzhekl/goply"
	"github.com/pkg/errors"
)

// ErrTooFewValidPoints marks a reader that produced fewer than 3 usable
// points after skipping malformed rows (spec.md §6 input contract).
var ErrTooFewValidPoints = errors.New("ioformats: fewer than 3 valid points")

// ReadPLY parses an ASCII or binary PLY file's vertex element into a flat
// f32 buffer, reading the `x`, `y`, `z` vertex properties.
func ReadPLY(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "ioformats: opening %s", path)
	}
	defer f.Close()
	return ParsePLY(f)
}

// ParsePLY parses PLY content already available as a reader. goply reports
// malformed documents by panicking, so the panic is converted to an error
// here rather than escaping to the caller.
func ParsePLY(r io.Reader) (buf []float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			buf = nil
			err = errors.Errorf("ioformats: malformed PLY document: %v", rec)
		}
	}()

	doc := goply.New(r)
	vertices := doc.Elements("vertex")
	if len(vertices) == 0 {
		return nil, errors.New("ioformats: PLY document has no vertex element")
	}

	buf = make([]float32, 0, 3*len(vertices))
	for _, v := range vertices {
		x, okX := propFloat(v["x"])
		y, okY := propFloat(v["y"])
		z, okZ := propFloat(v["z"])
		if !okX || !okY || !okZ {
			continue // invalid rows are skipped silently per the input contract
		}
		if !isFinite32(x) || !isFinite32(y) || !isFinite32(z) {
			continue
		}
		buf = append(buf, x, y, z)
	}

	if len(buf) < 3*3 {
		return nil, ErrTooFewValidPoints
	}
	return buf, nil
}

// propFloat coerces a goply property value to float32, accepting the
// float/double encodings `property float x` headers produce.
func propFloat(raw interface{}) (float32, bool) {
	switch v := raw.(type) {
	case float32:
		return v, true
	case float64:
		return float32(v), true
	default:
		return 0, false
	}
}

func isFinite32(f float32) bool {
	f64 := float64(f)
	return !math.IsNaN(f64) && !math.IsInf(f64, 0)
}
