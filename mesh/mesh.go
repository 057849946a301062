// Package mesh defines the triangle mesh model shared by the GLB decoder and
// the format exporters, plus the exporters themselves (binary STL, Wavefront
// OBJ).
package mesh

import (
	"fmt"
)

// TriangleMesh is an indexed triangle mesh. Normals are optional; when
// present their length equals the number of positions.
type TriangleMesh struct {
	Positions []Vec3
	Normals   []Vec3
	Indices   []uint32
}

// VertexCount returns the number of vertices.
func (m *TriangleMesh) VertexCount() int {
	return len(m.Positions)
}

// TriangleCount returns the number of triangles.
func (m *TriangleMesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// HasNormals reports whether per-vertex normals are present.
func (m *TriangleMesh) HasNormals() bool {
	return len(m.Normals) > 0
}

// IsEmpty reports whether the mesh has no vertices or no triangles.
func (m *TriangleMesh) IsEmpty() bool {
	return len(m.Positions) == 0 || len(m.Indices) < 3
}

// Validate checks structural integrity: index ranges, triangle alignment,
// normal count and finite coordinates.
func (m *TriangleMesh) Validate() error {
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("index count %d is not a multiple of 3", len(m.Indices))
	}
	if m.HasNormals() && len(m.Normals) != len(m.Positions) {
		return fmt.Errorf("normal count %d does not match vertex count %d", len(m.Normals), len(m.Positions))
	}
	n := uint32(len(m.Positions))
	for i, idx := range m.Indices {
		if idx >= n {
			return fmt.Errorf("index %d at position %d out of range (%d vertices)", idx, i, n)
		}
	}
	for i, p := range m.Positions {
		if !p.IsFinite() {
			return fmt.Errorf("vertex %d has a non-finite coordinate", i)
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of the mesh. ok is false for
// a mesh without vertices.
func (m *TriangleMesh) Bounds() (min, max Vec3, ok bool) {
	if len(m.Positions) == 0 {
		return Vec3{}, Vec3{}, false
	}
	min, max = m.Positions[0], m.Positions[0]
	for _, p := range m.Positions[1:] {
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.Z < min.Z {
			min.Z = p.Z
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
		if p.Z > max.Z {
			max.Z = p.Z
		}
	}
	return min, max, true
}

// FaceNormal returns the unit normal of triangle t, computed from its vertex
// positions with right-handed winding.
func (m *TriangleMesh) FaceNormal(t int) Vec3 {
	a := m.Positions[m.Indices[t*3]]
	b := m.Positions[m.Indices[t*3+1]]
	c := m.Positions[m.Indices[t*3+2]]
	return b.Sub(a).Cross(c.Sub(a)).Normalize()
}

// ComputeNormals fills per-vertex normals by area-weighted accumulation of
// face normals. Existing normals are replaced.
func (m *TriangleMesh) ComputeNormals() {
	acc := make([]Vec3, len(m.Positions))
	for t := 0; t < m.TriangleCount(); t++ {
		a := m.Positions[m.Indices[t*3]]
		b := m.Positions[m.Indices[t*3+1]]
		c := m.Positions[m.Indices[t*3+2]]
		// Unnormalized cross product weights by twice the triangle area.
		fn := b.Sub(a).Cross(c.Sub(a))
		for k := 0; k < 3; k++ {
			i := m.Indices[t*3+k]
			acc[i] = acc[i].Add(fn)
		}
	}
	for i := range acc {
		acc[i] = acc[i].Normalize()
	}
	m.Normals = acc
}

// Transform applies a matrix to all positions and normals in place.
func (m *TriangleMesh) Transform(mat Mat4) {
	for i, p := range m.Positions {
		m.Positions[i] = mat.TransformPoint(p)
	}
	for i, n := range m.Normals {
		m.Normals[i] = mat.TransformDirection(n)
	}
}

// Merge concatenates meshes into a single mesh, rebasing indices. The result
// carries normals only when every non-empty input carries them; otherwise
// normals are dropped and can be recomputed.
func Merge(meshes ...*TriangleMesh) *TriangleMesh {
	totalV, totalI := 0, 0
	allNormals := true
	for _, m := range meshes {
		if m == nil || len(m.Positions) == 0 {
			continue
		}
		totalV += len(m.Positions)
		totalI += len(m.Indices)
		if !m.HasNormals() {
			allNormals = false
		}
	}

	out := &TriangleMesh{
		Positions: make([]Vec3, 0, totalV),
		Indices:   make([]uint32, 0, totalI),
	}
	if allNormals {
		out.Normals = make([]Vec3, 0, totalV)
	}

	for _, m := range meshes {
		if m == nil || len(m.Positions) == 0 {
			continue
		}
		base := uint32(len(out.Positions))
		out.Positions = append(out.Positions, m.Positions...)
		if allNormals {
			out.Normals = append(out.Normals, m.Normals...)
		}
		for _, idx := range m.Indices {
			out.Indices = append(out.Indices, base+idx)
		}
	}
	return out
}
