package ioformats

import (
	"strings"
	"testing"

	"go.viam.com/test"
)

const asciiCubePLY = `ply
format ascii 1.0
element vertex 4
property float x
property float y
property float z
end_header
0 0 0
1 0 0
0 1 0
0 0 1
`

func TestParsePLYASCIIVertices(t *testing.T) {
	buf, err := ParsePLY(strings.NewReader(asciiCubePLY))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(buf), test.ShouldEqual, 12)
	test.That(t, buf[3], test.ShouldEqual, float32(1))
	test.That(t, buf[7], test.ShouldEqual, float32(1))
}

func TestParsePLYMalformedDocument(t *testing.T) {
	_, err := ParsePLY(strings.NewReader("not a ply file at all"))
	test.That(t, err, test.ShouldNotBeNil)
}
