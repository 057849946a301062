package gltf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/meshflow/testutil/fixtures"
	"github.com/BaSui01/meshflow/types"
)

func TestDecode_SingleTriangle(t *testing.T) {
	res, err := Decode(fixtures.TriangleGLB())
	require.NoError(t, err)

	assert.Equal(t, "meshflow-fixture", res.Generator)
	assert.Equal(t, 1, res.Primitives)
	assert.Equal(t, 0, res.SkippedPrimitives)
	assert.Equal(t, 3, res.Mesh.VertexCount())
	assert.Equal(t, 1, res.Mesh.TriangleCount())
	require.NoError(t, res.Mesh.Validate())
}

func TestDecode_MergesNodesWithTransforms(t *testing.T) {
	res, err := Decode(fixtures.TwoNodeGLB())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Primitives)
	assert.Equal(t, 6, res.Mesh.VertexCount())
	assert.Equal(t, 2, res.Mesh.TriangleCount())

	// Second node carries translation [10 0 0]; its first vertex lands at x=10.
	assert.InDelta(t, 10, res.Mesh.Positions[3].X, 1e-5)
	assert.InDelta(t, 0, res.Mesh.Positions[0].X, 1e-5)
}

func TestDecode_EmptyScene(t *testing.T) {
	_, err := Decode(fixtures.EmptySceneGLB())
	require.Error(t, err)
	assert.Equal(t, types.ErrEmptyScene, types.GetErrorCode(err))
}

func TestDecode_NonTrianglePrimitivesAreSkipped(t *testing.T) {
	_, err := Decode(fixtures.PointsOnlyGLB())
	// The only primitive is skipped, so the scene has no triangle geometry.
	require.Error(t, err)
	assert.Equal(t, types.ErrEmptyScene, types.GetErrorCode(err))
}

func TestDecode_ZeroVertexPrimitive(t *testing.T) {
	res, err := Decode(fixtures.NoVerticesGLB())
	require.NoError(t, err)
	assert.True(t, res.Mesh.IsEmpty())
}

func TestDecode_CorruptPayloads(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"bad magic", fixtures.CorruptGLB()},
		{"truncated", fixtures.TruncatedGLB()},
		{"json garbage", fixtures.GLB([]byte("{not json"), nil)},
		{"plain bytes", []byte("definitely not a glb")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.Equal(t, types.ErrDecodeError, types.GetErrorCode(err))

			var typed *types.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, 400, typed.HTTPStatus)
		})
	}
}

func TestDecode_ExternalBufferRefused(t *testing.T) {
	doc := `{
		"asset": {"version": "2.0"},
		"scenes": [{"nodes": [0]}],
		"nodes": [{"mesh": 0}],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 1, "type": "VEC3"}],
		"bufferViews": [{"buffer": 0, "byteOffset": 0, "byteLength": 12}],
		"buffers": [{"byteLength": 12, "uri": "http://evil.example.com/buffer.bin"}]
	}`
	_, err := Decode(fixtures.GLB([]byte(doc), nil))
	require.Error(t, err)
	assert.Equal(t, types.ErrDecodeError, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "external URI")
}

func TestDecode_DataURIBuffer(t *testing.T) {
	// Single triangle with the buffer inlined as a base64 data URI:
	// 3 float32 vertices, non-indexed.
	doc := `{
		"asset": {"version": "2.0"},
		"scenes": [{"nodes": [0]}],
		"nodes": [{"mesh": 0}],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"}],
		"bufferViews": [{"buffer": 0, "byteOffset": 0, "byteLength": 36}],
		"buffers": [{"byteLength": 36, "uri": "data:application/octet-stream;base64,AACAPwAAAAAAAAAAAAAAAAAAgD8AAAAAAAAAAAAAAAAAAIA/"}]
	}`
	res, err := Decode(fixtures.GLB([]byte(doc), nil))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Mesh.VertexCount())
	assert.Equal(t, 1, res.Mesh.TriangleCount())
	assert.InDelta(t, 1, res.Mesh.Positions[0].X, 1e-6)
}

func TestDecode_AccessorOverrun(t *testing.T) {
	// Accessor claims more elements than its bufferView holds.
	doc := `{
		"asset": {"version": "2.0"},
		"scenes": [{"nodes": [0]}],
		"nodes": [{"mesh": 0}],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 100, "type": "VEC3"}],
		"bufferViews": [{"buffer": 0, "byteOffset": 0, "byteLength": 12}],
		"buffers": [{"byteLength": 12}]
	}`
	_, err := Decode(fixtures.GLB([]byte(doc), make([]byte, 12)))
	require.Error(t, err)
	assert.Equal(t, types.ErrDecodeError, types.GetErrorCode(err))
}

func TestDecode_NodeCycle(t *testing.T) {
	doc := `{
		"asset": {"version": "2.0"},
		"scenes": [{"nodes": [0]}],
		"nodes": [
			{"children": [1]},
			{"children": [0], "mesh": 0}
		],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 1, "type": "VEC3"}],
		"bufferViews": [{"buffer": 0, "byteOffset": 0, "byteLength": 12}],
		"buffers": [{"byteLength": 12}]
	}`
	_, err := Decode(fixtures.GLB([]byte(doc), make([]byte, 12)))
	require.Error(t, err)
	assert.Equal(t, types.ErrDecodeError, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "referenced more than once")
}

func TestDecode_NoScenesFallsBackToRootNodes(t *testing.T) {
	// Same triangle as TriangleGLB but without a scenes array.
	positions := fixtures.Floats(0, 0, 0, 1, 0, 0, 0, 1, 0)
	doc := `{
		"asset": {"version": "2.0"},
		"nodes": [{"mesh": 0}],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"}],
		"bufferViews": [{"buffer": 0, "byteOffset": 0, "byteLength": 36}],
		"buffers": [{"byteLength": 36}]
	}`
	res, err := Decode(fixtures.GLB([]byte(doc), positions))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Mesh.TriangleCount())
}

func TestDecode_NormalizedAttributes(t *testing.T) {
	// Positions stored as normalized unsigned bytes: 255 maps to 1.0.
	bin := []byte{
		255, 0, 0,
		0, 255, 0,
		0, 0, 255,
	}
	doc := `{
		"asset": {"version": "2.0"},
		"scenes": [{"nodes": [0]}],
		"nodes": [{"mesh": 0}],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
		"accessors": [{"bufferView": 0, "componentType": 5121, "normalized": true, "count": 3, "type": "VEC3"}],
		"bufferViews": [{"buffer": 0, "byteOffset": 0, "byteLength": 9}],
		"buffers": [{"byteLength": 9}]
	}`
	res, err := Decode(fixtures.GLB([]byte(doc), bin))
	require.NoError(t, err)
	assert.InDelta(t, 1, res.Mesh.Positions[0].X, 1e-6)
	assert.InDelta(t, 0, res.Mesh.Positions[0].Y, 1e-6)
}
