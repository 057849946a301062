package mesh

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// stlHeaderText is written into the fixed 80-byte binary STL header.
const stlHeaderText = "meshflow binary STL export"

// STLExporter writes binary STL (little-endian: 80-byte header, uint32
// triangle count, 50 bytes per triangle).
type STLExporter struct{}

// ContentType returns the media type served for STL downloads.
func (STLExporter) ContentType() string { return "model/stl" }

// Extension returns the file extension without the dot.
func (STLExporter) Extension() string { return "stl" }

// Export writes m to w as binary STL. Face normals are taken from the
// geometry, not from stored vertex normals, matching common STL tooling.
func (STLExporter) Export(w io.Writer, m *TriangleMesh) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("stl export: %w", err)
	}

	bw := bufio.NewWriter(w)

	var header [80]byte
	copy(header[:], stlHeaderText)
	if _, err := bw.Write(header[:]); err != nil {
		return fmt.Errorf("stl export: write header: %w", err)
	}

	count := m.TriangleCount()
	if uint64(count) > math.MaxUint32 {
		return fmt.Errorf("stl export: %d triangles exceed the format limit", count)
	}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(count))
	if _, err := bw.Write(countBuf[:]); err != nil {
		return fmt.Errorf("stl export: write triangle count: %w", err)
	}

	// normal(12) + 3 vertices(36) + attribute(2)
	var rec [50]byte
	for t := 0; t < count; t++ {
		putVec3(rec[0:], m.FaceNormal(t))
		for k := 0; k < 3; k++ {
			putVec3(rec[12+k*12:], m.Positions[m.Indices[t*3+k]])
		}
		rec[48], rec[49] = 0, 0
		if _, err := bw.Write(rec[:]); err != nil {
			return fmt.Errorf("stl export: write triangle %d: %w", t, err)
		}
	}

	return bw.Flush()
}

func putVec3(b []byte, v Vec3) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v.X))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v.Z))
}
