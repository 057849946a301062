package mesh

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// OBJExporter writes Wavefront OBJ text: v/vn/f lines with 1-based indices.
type OBJExporter struct{}

// ContentType returns the media type served for OBJ downloads.
func (OBJExporter) ContentType() string { return "application/octet-stream" }

// Extension returns the file extension without the dot.
func (OBJExporter) Extension() string { return "obj" }

// Export writes m to w as Wavefront OBJ. When vertex normals are present,
// faces reference them in the v//vn form.
func (OBJExporter) Export(w io.Writer, m *TriangleMesh) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("obj export: %w", err)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("# exported by meshflow\n"); err != nil {
		return fmt.Errorf("obj export: %w", err)
	}

	buf := make([]byte, 0, 64)
	for _, p := range m.Positions {
		buf = append(buf[:0], 'v')
		buf = appendCoord(buf, p)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("obj export: %w", err)
		}
	}

	withNormals := m.HasNormals()
	if withNormals {
		for _, n := range m.Normals {
			buf = append(buf[:0], 'v', 'n')
			buf = appendCoord(buf, n)
			buf = append(buf, '\n')
			if _, err := bw.Write(buf); err != nil {
				return fmt.Errorf("obj export: %w", err)
			}
		}
	}

	for t := 0; t < m.TriangleCount(); t++ {
		buf = append(buf[:0], 'f')
		for k := 0; k < 3; k++ {
			// OBJ indices are 1-based.
			idx := uint64(m.Indices[t*3+k]) + 1
			buf = append(buf, ' ')
			buf = strconv.AppendUint(buf, idx, 10)
			if withNormals {
				buf = append(buf, '/', '/')
				buf = strconv.AppendUint(buf, idx, 10)
			}
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("obj export: %w", err)
		}
	}

	return bw.Flush()
}

func appendCoord(buf []byte, v Vec3) []byte {
	for _, c := range [3]float32{v.X, v.Y, v.Z} {
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, float64(c), 'g', -1, 32)
	}
	return buf
}
