package shell

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Mesh is an open triangulated tube surface. Vertex (i, j) is latitude ring
// i and longitude j, stored at index i*Longitudes + j. Indices holds
// counter-clockwise triangles seen from outside the tube.
type Mesh struct {
	Vertices   []r3.Vector
	Normals    []r3.Vector
	Indices    []uint32
	Latitudes  int
	Longitudes int
}

// Triangles returns the number of triangles.
func (m *Mesh) Triangles() int { return len(m.Indices) / 3 }

type meshKey struct {
	latitudes, longitudes int
	generation            uint64
}

// Surface returns the fitted tube surface sampled at latitudes rings along
// the axis and longitudes vertices per ring. The ends are left open. The
// result is cached per (latitudes, longitudes, generation) and shared
// between callers, who must not modify it.
func (t *Transform) Surface(latitudes, longitudes int) (*Mesh, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	if latitudes < 2 || longitudes < 3 {
		return nil, fmt.Errorf("%w: surface needs at least 2 latitudes and 3 longitudes, got %d x %d",
			ErrInvalidArgument, latitudes, longitudes)
	}

	key := meshKey{latitudes: latitudes, longitudes: longitudes, generation: t.generation}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mesh != nil && t.meshKey == key {
		return t.mesh, nil
	}
	m, err := t.buildSurface(latitudes, longitudes)
	if err != nil {
		return nil, err
	}
	t.mesh, t.meshKey = m, key
	return m, nil
}

func (t *Transform) buildSurface(latitudes, longitudes int) (*Mesh, error) {
	m := &Mesh{
		Vertices:   make([]r3.Vector, 0, latitudes*longitudes),
		Normals:    make([]r3.Vector, latitudes*longitudes),
		Indices:    make([]uint32, 0, 6*(latitudes-1)*longitudes),
		Latitudes:  latitudes,
		Longitudes: longitudes,
	}

	for i := 0; i < latitudes; i++ {
		s, err := t.AxisSample(float64(i) / float64(latitudes-1))
		if err != nil {
			return nil, err
		}
		for j := 0; j < longitudes; j++ {
			phi := 2 * math.Pi * float64(j) / float64(longitudes)
			cos, sin := math.Cos(phi), math.Sin(phi)
			lambda := boundaryScale(s.Q, phi)
			lateral := r3.Vector{Y: s.Ellipse.CX + lambda*cos, Z: s.Ellipse.CY + lambda*sin}
			m.Vertices = append(m.Vertices, s.Position.Add(s.Frame.MulVec(lateral)))
		}
	}

	idx := func(i, j int) uint32 { return uint32(i*longitudes + j%longitudes) }
	for i := 0; i+1 < latitudes; i++ {
		for j := 0; j < longitudes; j++ {
			v00, v01 := idx(i, j), idx(i, j+1)
			v10, v11 := idx(i+1, j), idx(i+1, j+1)
			m.Indices = append(m.Indices, v00, v01, v10, v01, v11, v10)
		}
	}

	// Area-weighted vertex normals: the unnormalized face normal has length
	// twice the triangle area.
	for k := 0; k < len(m.Indices); k += 3 {
		a, b, c := m.Indices[k], m.Indices[k+1], m.Indices[k+2]
		n := m.Vertices[b].Sub(m.Vertices[a]).Cross(m.Vertices[c].Sub(m.Vertices[a]))
		m.Normals[a] = m.Normals[a].Add(n)
		m.Normals[b] = m.Normals[b].Add(n)
		m.Normals[c] = m.Normals[c].Add(n)
	}
	for k, n := range m.Normals {
		m.Normals[k] = n.Normalize()
	}
	return m, nil
}
