package gltf

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/BaSui01/meshflow/mesh"
)

// resolveBuffers materializes every buffer: buffer 0 may be the GLB binary
// chunk, data: URIs are decoded inline, external URIs are refused so a
// conversion never follows references outside the fetched payload.
func resolveBuffers(doc *Document, binChunk []byte) ([][]byte, error) {
	buffers := make([][]byte, len(doc.Buffers))
	for i, b := range doc.Buffers {
		switch {
		case b.URI == "":
			if i != 0 || binChunk == nil {
				return nil, fmt.Errorf("buffer %d has no URI and no binary chunk backs it", i)
			}
			if b.ByteLength > len(binChunk) {
				return nil, fmt.Errorf("buffer %d declares %d bytes, binary chunk has %d", i, b.ByteLength, len(binChunk))
			}
			// The binary chunk may carry up to 3 padding bytes.
			buffers[i] = binChunk[:b.ByteLength]
		case strings.HasPrefix(b.URI, "data:"):
			data, err := decodeDataURI(b.URI)
			if err != nil {
				return nil, fmt.Errorf("buffer %d: %w", i, err)
			}
			if b.ByteLength > len(data) {
				return nil, fmt.Errorf("buffer %d declares %d bytes, data URI has %d", i, b.ByteLength, len(data))
			}
			buffers[i] = data[:b.ByteLength]
		default:
			return nil, fmt.Errorf("buffer %d references external URI %q", i, b.URI)
		}
	}
	return buffers, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URI")
	}
	meta, payload := uri[len("data:"):comma], uri[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data URI without base64 encoding")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data URI: %w", err)
	}
	return data, nil
}

// accessorView locates accessor data and returns its base slice and element
// stride, with every extent checked against the underlying buffer.
func accessorView(doc *Document, buffers [][]byte, acc Accessor) (data []byte, stride int, err error) {
	if acc.Sparse != nil {
		return nil, 0, fmt.Errorf("sparse accessors are not supported")
	}
	compSize := componentSize(acc.ComponentType)
	if compSize == 0 {
		return nil, 0, fmt.Errorf("unknown component type %d", acc.ComponentType)
	}
	compCount := componentCount(acc.Type)
	if compCount == 0 {
		return nil, 0, fmt.Errorf("unknown accessor type %q", acc.Type)
	}
	if acc.Count < 0 {
		return nil, 0, fmt.Errorf("negative accessor count %d", acc.Count)
	}
	elemSize := compSize * compCount

	if acc.BufferView == nil {
		// Spec: absent bufferView means all-zero data.
		return nil, elemSize, nil
	}
	bvIdx := *acc.BufferView
	if bvIdx < 0 || bvIdx >= len(doc.BufferViews) {
		return nil, 0, fmt.Errorf("bufferView index %d out of range", bvIdx)
	}
	bv := doc.BufferViews[bvIdx]
	if bv.Buffer < 0 || bv.Buffer >= len(buffers) {
		return nil, 0, fmt.Errorf("buffer index %d out of range", bv.Buffer)
	}
	buf := buffers[bv.Buffer]
	if bv.ByteOffset < 0 || bv.ByteLength < 0 || bv.ByteOffset+bv.ByteLength > len(buf) {
		return nil, 0, fmt.Errorf("bufferView %d extent [%d,%d) exceeds buffer size %d",
			bvIdx, bv.ByteOffset, bv.ByteOffset+bv.ByteLength, len(buf))
	}

	stride = bv.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	if stride < elemSize {
		return nil, 0, fmt.Errorf("bufferView %d stride %d smaller than element size %d", bvIdx, stride, elemSize)
	}
	if acc.ByteOffset < 0 || acc.ByteOffset > bv.ByteLength {
		return nil, 0, fmt.Errorf("accessor byteOffset %d outside bufferView %d", acc.ByteOffset, bvIdx)
	}
	if acc.Count > 0 {
		need := acc.ByteOffset + (acc.Count-1)*stride + elemSize
		if need > bv.ByteLength {
			return nil, 0, fmt.Errorf("accessor needs %d bytes, bufferView %d holds %d", need, bvIdx, bv.ByteLength)
		}
	}

	view := buf[bv.ByteOffset : bv.ByteOffset+bv.ByteLength]
	return view[acc.ByteOffset:], stride, nil
}

// readVec3 reads a VEC3 accessor as positions or normals, converting
// normalized integer storage per the glTF normalization rules.
func readVec3(doc *Document, buffers [][]byte, accIdx int) ([]mesh.Vec3, error) {
	if accIdx < 0 || accIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", accIdx)
	}
	acc := doc.Accessors[accIdx]
	if acc.Type != "VEC3" {
		return nil, fmt.Errorf("accessor %d: expected VEC3, got %q", accIdx, acc.Type)
	}

	data, stride, err := accessorView(doc, buffers, acc)
	if err != nil {
		return nil, fmt.Errorf("accessor %d: %w", accIdx, err)
	}

	out := make([]mesh.Vec3, acc.Count)
	if data == nil {
		return out, nil
	}

	for i := 0; i < acc.Count; i++ {
		base := i * stride
		var c [3]float32
		for k := 0; k < 3; k++ {
			v, err := readComponent(data, base, k, acc)
			if err != nil {
				return nil, fmt.Errorf("accessor %d element %d: %w", accIdx, i, err)
			}
			c[k] = v
		}
		out[i] = mesh.Vec3{X: c[0], Y: c[1], Z: c[2]}
	}
	return out, nil
}

func readComponent(data []byte, base, k int, acc Accessor) (float32, error) {
	size := componentSize(acc.ComponentType)
	off := base + k*size
	if off+size > len(data) {
		return 0, fmt.Errorf("read past buffer end")
	}
	switch acc.ComponentType {
	case ComponentFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(data[off:])), nil
	case ComponentUnsignedByte:
		v := float32(data[off])
		if acc.Normalized {
			v /= 255
		}
		return v, nil
	case ComponentByte:
		v := float32(int8(data[off]))
		if acc.Normalized {
			v = max32(v/127, -1)
		}
		return v, nil
	case ComponentUnsignedShort:
		v := float32(binary.LittleEndian.Uint16(data[off:]))
		if acc.Normalized {
			v /= 65535
		}
		return v, nil
	case ComponentShort:
		v := float32(int16(binary.LittleEndian.Uint16(data[off:])))
		if acc.Normalized {
			v = max32(v/32767, -1)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("component type %d not valid for vertex data", acc.ComponentType)
	}
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// readIndices reads a SCALAR accessor holding triangle indices.
func readIndices(doc *Document, buffers [][]byte, accIdx int) ([]uint32, error) {
	if accIdx < 0 || accIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", accIdx)
	}
	acc := doc.Accessors[accIdx]
	if acc.Type != "SCALAR" {
		return nil, fmt.Errorf("accessor %d: expected SCALAR indices, got %q", accIdx, acc.Type)
	}

	data, stride, err := accessorView(doc, buffers, acc)
	if err != nil {
		return nil, fmt.Errorf("accessor %d: %w", accIdx, err)
	}

	out := make([]uint32, acc.Count)
	if data == nil {
		return out, nil
	}

	for i := 0; i < acc.Count; i++ {
		off := i * stride
		switch acc.ComponentType {
		case ComponentUnsignedByte:
			out[i] = uint32(data[off])
		case ComponentUnsignedShort:
			out[i] = uint32(binary.LittleEndian.Uint16(data[off:]))
		case ComponentUnsignedInt:
			out[i] = binary.LittleEndian.Uint32(data[off:])
		default:
			return nil, fmt.Errorf("accessor %d: component type %d not valid for indices", accIdx, acc.ComponentType)
		}
	}
	return out, nil
}
