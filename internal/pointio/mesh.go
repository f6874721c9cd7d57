package pointio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/fsutil"
	"github.com/lmb-freiburg/irocs/internal/shell"
)

// WriteOBJ writes m as a Wavefront OBJ with per-vertex normals. OBJ
// indices are 1-based.
func WriteOBJ(w io.Writer, m *shell.Mesh) error {
	if _, err := fmt.Fprintf(w, "# irocs shell surface: %d x %d vertices, %d triangles\n",
		m.Latitudes, m.Longitudes, m.Triangles()); err != nil {
		return err
	}
	for _, v := range m.Vertices {
		if _, err := fmt.Fprintf(w, "v %.6f %.6f %.6f\n", v.X, v.Y, v.Z); err != nil {
			return err
		}
	}
	for _, n := range m.Normals {
		if _, err := fmt.Fprintf(w, "vn %.6f %.6f %.6f\n", n.X, n.Y, n.Z); err != nil {
			return err
		}
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a, b, c := m.Indices[i]+1, m.Indices[i+1]+1, m.Indices[i+2]+1
		if _, err := fmt.Fprintf(w, "f %d//%d %d//%d %d//%d\n", a, a, b, b, c, c); err != nil {
			return err
		}
	}
	return nil
}

// stlTriangle is the 50-byte binary STL record.
type stlTriangle struct {
	Normal    [3]float32
	Vertices  [3][3]float32
	Attribute uint16
}

func float32s(v r3.Vector) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

// WriteSTL writes m as binary little-endian STL. Facet normals are taken
// from the triangle winding.
func WriteSTL(w io.Writer, m *shell.Mesh) error {
	var header [80]byte
	copy(header[:], "irocs shell surface")
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	count := uint32(m.Triangles())
	if err := binary.Write(w, binary.LittleEndian, count); err != nil {
		return fmt.Errorf("failed to write triangle count: %w", err)
	}

	for i := 0; i < int(count); i++ {
		a := m.Vertices[m.Indices[3*i]]
		b := m.Vertices[m.Indices[3*i+1]]
		c := m.Vertices[m.Indices[3*i+2]]
		n := b.Sub(a).Cross(c.Sub(a))
		if norm := n.Norm(); norm > 0 && !math.IsInf(norm, 0) {
			n = n.Mul(1 / norm)
		}
		tri := stlTriangle{
			Normal:   float32s(n),
			Vertices: [3][3]float32{float32s(a), float32s(b), float32s(c)},
		}
		if err := binary.Write(w, binary.LittleEndian, &tri); err != nil {
			return fmt.Errorf("failed to write triangle %d: %w", i, err)
		}
	}
	return nil
}

// WriteMeshFile writes m to path as OBJ or STL, chosen by extension.
func WriteMeshFile(fsys fsutil.FileSystem, path string, m *shell.Mesh) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	var write func(io.Writer, *shell.Mesh) error
	switch format {
	case FormatOBJ:
		write = WriteOBJ
	case FormatSTL:
		write = WriteSTL
	default:
		return fmt.Errorf("%w: %s is not a mesh format", ErrFormat, format)
	}
	return writeFile(fsys, path, func(w io.Writer) error {
		return write(w, m)
	})
}
