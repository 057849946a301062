package mesh

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BaSui01/meshflow/types"
)

// Format identifies an export format. Values are lowercase extensions.
type Format string

const (
	FormatSTL Format = "stl"
	FormatOBJ Format = "obj"
)

// Exporter serializes a triangle mesh into an output format.
type Exporter interface {
	// Export writes the mesh to w.
	Export(w io.Writer, m *TriangleMesh) error
	// ContentType returns the HTTP media type of the output.
	ContentType() string
	// Extension returns the file extension without the dot.
	Extension() string
}

var exporters = map[Format]Exporter{
	FormatSTL: STLExporter{},
	FormatOBJ: OBJExporter{},
}

// ParseFormat normalizes and validates a requested output format. Matching
// is case-insensitive, so "STL" and "stl" are the same format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := exporters[f]; !ok {
		return "", types.NewError(types.ErrUnsupportedFormat,
			fmt.Sprintf("invalid output_format %q, must be one of: %s", s, strings.Join(FormatNames(), ", "))).
			WithHTTPStatus(400)
	}
	return f, nil
}

// ExporterFor returns the exporter registered for a format.
func ExporterFor(f Format) (Exporter, bool) {
	e, ok := exporters[f]
	return e, ok
}

// FormatNames returns the supported format names, sorted.
func FormatNames() []string {
	names := make([]string, 0, len(exporters))
	for f := range exporters {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}
