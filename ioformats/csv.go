package ioformats

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// ReadCSV parses a 3-column (x,y,z) CSV file into a flat f32 buffer. Rows
// that do not parse as three numeric columns are skipped silently, per the
// input contract (spec.md §6); encoding/csv is the standard library here
// because CSV is a trivial delimited format with no domain-specific parser
// among the example repos' dependencies worth adopting for it.
func ReadCSV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "ioformats: opening %s", path)
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV parses CSV content already available as a reader.
func ParseCSV(r io.Reader) ([]float32, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var buf []float32
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // malformed row, skip
		}
		if len(record) < 3 {
			continue
		}
		x, errX := strconv.ParseFloat(record[0], 32)
		y, errY := strconv.ParseFloat(record[1], 32)
		z, errZ := strconv.ParseFloat(record[2], 32)
		if errX != nil || errY != nil || errZ != nil {
			continue
		}
		buf = append(buf, float32(x), float32(y), float32(z))
	}

	if len(buf) < 3*3 {
		return nil, ErrTooFewValidPoints
	}
	return buf, nil
}
