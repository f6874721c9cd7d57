package pointio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/fsutil"
	"github.com/lmb-freiburg/irocs/internal/monitoring"
)

func isSeparator(r rune) bool {
	return r == ',' || r == ';' || unicode.IsSpace(r)
}

// ReadPoints parses one point per line from r. Columns are separated by
// whitespace, commas or semicolons; the first three are x, y and z and any
// further columns are ignored. Blank lines and lines starting with '#' or
// '//' are skipped, as is a single non-numeric header line before the first
// point.
func ReadPoints(r io.Reader) ([]r3.Vector, error) {
	var (
		points    []r3.Vector
		lineNo    int
		sawHeader bool
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		fields := strings.FieldsFunc(line, isSeparator)
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: line %d: expected at least 3 columns, got %d", ErrFormat, lineNo, len(fields))
		}

		var xyz [3]float64
		var perr error
		for i := range xyz {
			if xyz[i], perr = strconv.ParseFloat(fields[i], 64); perr != nil {
				break
			}
		}
		if perr != nil {
			if len(points) == 0 && !sawHeader {
				sawHeader = true
				continue
			}
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, lineNo, perr)
		}
		p := r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
		if math.IsNaN(p.X+p.Y+p.Z) || math.IsInf(p.X+p.Y+p.Z, 0) {
			return nil, fmt.Errorf("%w: line %d: non-finite coordinate", ErrFormat, lineNo)
		}
		points = append(points, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read points: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrFormat)
	}
	return points, nil
}

// ReadPointsFile reads an XYZ or CSV point cloud from fsys.
func ReadPointsFile(fsys fsutil.FileSystem, path string) ([]r3.Vector, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if format != FormatXYZ && format != FormatCSV {
		return nil, fmt.Errorf("%w: %s is not a point cloud format", ErrFormat, format)
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	points, err := ReadPoints(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if info, err := fsys.Stat(path); err == nil {
		monitoring.Logf("[pointio] read %d points from %s (%d bytes)", len(points), path, info.Size())
	}
	return points, nil
}

// WritePoints writes points in XYZ format with a comment header.
func WritePoints(w io.Writer, points []r3.Vector) error {
	if _, err := fmt.Fprintf(w, "# %d points\n# Format: X Y Z\n", len(points)); err != nil {
		return err
	}
	for _, p := range points {
		if _, err := fmt.Fprintf(w, "%.6f %.6f %.6f\n", p.X, p.Y, p.Z); err != nil {
			return err
		}
	}
	return nil
}

// WritePointsFile writes points to path in XYZ format.
func WritePointsFile(fsys fsutil.FileSystem, path string, points []r3.Vector) error {
	if len(points) == 0 {
		return fmt.Errorf("no points to export")
	}
	return writeFile(fsys, path, func(w io.Writer) error {
		return WritePoints(w, points)
	})
}
