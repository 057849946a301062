package gltf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/meshflow/testutil/fixtures"
)

func TestGLBChunks_Valid(t *testing.T) {
	data := fixtures.TriangleGLB()

	jsonChunk, binChunk, err := glbChunks(data)
	require.NoError(t, err)
	assert.NotEmpty(t, jsonChunk)
	assert.NotEmpty(t, binChunk)
	assert.Contains(t, string(jsonChunk), `"asset"`)
}

func TestGLBChunks_JSONOnly(t *testing.T) {
	data := fixtures.EmptySceneGLB()

	jsonChunk, binChunk, err := glbChunks(data)
	require.NoError(t, err)
	assert.NotEmpty(t, jsonChunk)
	assert.Nil(t, binChunk)
}

func TestGLBChunks_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{"empty payload", nil, "too short"},
		{"short payload", []byte{0x67, 0x6C}, "too short"},
		{"bad magic", fixtures.CorruptGLB(), "bad magic"},
		{"declared length beyond payload", fixtures.TruncatedGLB(), "exceeds payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := glbChunks(tt.data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGLBChunks_UnsupportedVersion(t *testing.T) {
	data := fixtures.TriangleGLB()
	mutated := make([]byte, len(data))
	copy(mutated, data)
	binary.LittleEndian.PutUint32(mutated[4:8], 1)

	_, _, err := glbChunks(mutated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestGLBChunks_ChunkOverrun(t *testing.T) {
	data := fixtures.TriangleGLB()
	mutated := make([]byte, len(data))
	copy(mutated, data)
	// Inflate the JSON chunk length beyond the container.
	binary.LittleEndian.PutUint32(mutated[12:16], 1<<30)

	_, _, err := glbChunks(mutated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk length")
}

func TestGLBChunks_MissingJSONChunk(t *testing.T) {
	// A container whose only chunk is binary.
	bin := fixtures.GLB([]byte("{}"), []byte{1, 2, 3, 4})
	// Rewrite the JSON chunk type to an unknown tag so it is skipped.
	binary.LittleEndian.PutUint32(bin[16:20], 0x12345678)

	_, _, err := glbChunks(bin)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing JSON chunk")
}
