package mesh

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// randomMesh builds a structurally valid mesh with the given shape from a
// deterministic seed.
func randomMesh(vertices, triangles int, seed int64) *TriangleMesh {
	rng := rand.New(rand.NewSource(seed))
	m := &TriangleMesh{
		Positions: make([]Vec3, vertices),
		Indices:   make([]uint32, 0, triangles*3),
	}
	for i := range m.Positions {
		m.Positions[i] = Vec3{
			X: rng.Float32()*200 - 100,
			Y: rng.Float32()*200 - 100,
			Z: rng.Float32()*200 - 100,
		}
	}
	for t := 0; t < triangles; t++ {
		for k := 0; k < 3; k++ {
			m.Indices = append(m.Indices, uint32(rng.Intn(vertices)))
		}
	}
	return m
}

func TestProperty_MergePreservesCounts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("merge sums vertex and triangle counts and stays valid", prop.ForAll(
		func(v1, t1, v2, t2 int, seed int64) bool {
			a := randomMesh(v1, t1, seed)
			b := randomMesh(v2, t2, seed+1)

			merged := Merge(a, b)
			if merged.VertexCount() != a.VertexCount()+b.VertexCount() {
				return false
			}
			if merged.TriangleCount() != a.TriangleCount()+b.TriangleCount() {
				return false
			}
			return merged.Validate() == nil
		},
		gen.IntRange(1, 50),
		gen.IntRange(1, 80),
		gen.IntRange(1, 50),
		gen.IntRange(1, 80),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestProperty_STLSizeMatchesTriangleCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("binary STL output is exactly 84 + 50*triangles bytes", prop.ForAll(
		func(vertices, triangles int, seed int64) bool {
			m := randomMesh(vertices, triangles, seed)

			var buf bytes.Buffer
			if err := (STLExporter{}).Export(&buf, m); err != nil {
				t.Logf("export failed: %v", err)
				return false
			}
			return buf.Len() == 84+50*m.TriangleCount()
		},
		gen.IntRange(1, 40),
		gen.IntRange(1, 60),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestProperty_ComputedNormalsAreUnitOrZero(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("computed vertex normals have length 1 or 0", prop.ForAll(
		func(vertices, triangles int, seed int64) bool {
			m := randomMesh(vertices, triangles, seed)
			m.ComputeNormals()

			if len(m.Normals) != len(m.Positions) {
				return false
			}
			for _, n := range m.Normals {
				l := n.Length()
				// Unreferenced or fully degenerate vertices keep a zero normal.
				if l > 1e-3 && (l < 0.999 || l > 1.001) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 40),
		gen.IntRange(1, 60),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
