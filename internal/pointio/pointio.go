// Package pointio reads point clouds and writes meshes and shell
// coordinates in the plain text and binary formats common to point cloud
// tools (XYZ/ASC, CSV, Wavefront OBJ, binary STL).
package pointio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/lmb-freiburg/irocs/internal/fsutil"
	"github.com/lmb-freiburg/irocs/internal/monitoring"
)

// ErrFormat reports malformed input or an unsupported file type.
var ErrFormat = errors.New("pointio: bad format")

// Format identifies a file format by its conventional extension.
type Format string

const (
	FormatXYZ Format = "xyz"
	FormatCSV Format = "csv"
	FormatOBJ Format = "obj"
	FormatSTL Format = "stl"
)

// FormatFromPath maps a file extension to a Format. .asc, .txt and .pts
// files are read as XYZ.
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xyz", ".asc", ".txt", ".pts":
		return FormatXYZ, nil
	case ".csv":
		return FormatCSV, nil
	case ".obj":
		return FormatOBJ, nil
	case ".stl":
		return FormatSTL, nil
	default:
		return "", fmt.Errorf("%w: unsupported extension %q", ErrFormat, ext)
	}
}

// writeFile creates path on fsys and streams write through a buffer.
func writeFile(fsys fsutil.FileSystem, path string, write func(io.Writer) error) (err error) {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	monitoring.Logf("[pointio] wrote %s", path)
	return nil
}
