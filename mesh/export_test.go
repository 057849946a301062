package mesh

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/meshflow/types"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"stl", FormatSTL, false},
		{"STL", FormatSTL, false},
		{"  Obj ", FormatOBJ, false},
		{"obj", FormatOBJ, false},
		{"fbx", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run("in="+tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.ErrUnsupportedFormat, types.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatNames(t *testing.T) {
	assert.Equal(t, []string{"obj", "stl"}, FormatNames())
}

func TestSTLExporter_Layout(t *testing.T) {
	m := unitQuad()

	var buf bytes.Buffer
	require.NoError(t, STLExporter{}.Export(&buf, m))

	data := buf.Bytes()
	// 80-byte header + 4-byte count + 50 bytes per triangle.
	require.Len(t, data, 84+50*m.TriangleCount())

	count := binary.LittleEndian.Uint32(data[80:84])
	assert.Equal(t, uint32(m.TriangleCount()), count)

	// First record normal is +Z for the XY quad.
	nz := readFloat32(data, 84+8)
	assert.InDelta(t, 1, nz, 1e-6)

	// Attribute byte count of the first record is zero.
	attr := binary.LittleEndian.Uint16(data[84+48 : 84+50])
	assert.Equal(t, uint16(0), attr)
}

func TestSTLExporter_RejectsInvalidMesh(t *testing.T) {
	m := unitQuad()
	m.Indices[0] = 42

	var buf bytes.Buffer
	err := STLExporter{}.Export(&buf, m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestOBJExporter_Output(t *testing.T) {
	m := unitQuad()

	var buf bytes.Buffer
	require.NoError(t, OBJExporter{}.Export(&buf, m))
	out := buf.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// 1 comment + 4 vertices + 2 faces.
	require.Len(t, lines, 7)
	assert.Equal(t, "v 0 0 0", lines[1])
	assert.Equal(t, "v 1 0 0", lines[2])
	assert.Equal(t, "f 1 2 3", lines[5])
	assert.Equal(t, "f 1 3 4", lines[6])
}

func TestOBJExporter_WithNormals(t *testing.T) {
	m := unitQuad()
	m.ComputeNormals()

	var buf bytes.Buffer
	require.NoError(t, OBJExporter{}.Export(&buf, m))
	out := buf.String()

	assert.Contains(t, out, "vn 0 0 1")
	assert.Contains(t, out, "f 1//1 2//2 3//3")
}

func TestExporters_ContentTypes(t *testing.T) {
	stl, ok := ExporterFor(FormatSTL)
	require.True(t, ok)
	assert.Equal(t, "model/stl", stl.ContentType())
	assert.Equal(t, "stl", stl.Extension())

	obj, ok := ExporterFor(FormatOBJ)
	require.True(t, ok)
	assert.Equal(t, "application/octet-stream", obj.ContentType())
	assert.Equal(t, "obj", obj.Extension())
}

func readFloat32(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
}
