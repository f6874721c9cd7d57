package pointio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/fsutil"
	"github.com/lmb-freiburg/irocs/internal/shell"
)

// CoordinatesHeader is the header row written by WriteCoordinatesCSV.
var CoordinatesHeader = []string{"x", "y", "z", "axial", "angle", "radial"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// WriteCoordinatesCSV writes each point next to its shell coordinates.
func WriteCoordinatesCSV(w io.Writer, points []r3.Vector, coords []shell.Coordinate) error {
	if len(points) != len(coords) {
		return fmt.Errorf("%d points but %d coordinates", len(points), len(coords))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(CoordinatesHeader); err != nil {
		return err
	}
	row := make([]string, len(CoordinatesHeader))
	for i, p := range points {
		c := coords[i]
		row[0], row[1], row[2] = formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z)
		row[3], row[4], row[5] = formatFloat(c.Axial), formatFloat(c.Angle), formatFloat(c.Radial)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCoordinatesFile writes the coordinates CSV to path.
func WriteCoordinatesFile(fsys fsutil.FileSystem, path string, points []r3.Vector, coords []shell.Coordinate) error {
	return writeFile(fsys, path, func(w io.Writer) error {
		return WriteCoordinatesCSV(w, points, coords)
	})
}
