// Package gltf decodes binary glTF (GLB) payloads into the service's
// triangle mesh model. It covers the glTF 2.0 subset needed for geometry
// extraction: scenes, node transforms, mesh primitives, accessors and
// buffer views. Materials, animations, skins and textures are ignored.
package gltf

import (
	"encoding/binary"
	"fmt"
)

// GLB container constants from the glTF 2.0 specification.
const (
	glbMagic     = 0x46546C67 // "glTF" little-endian
	glbVersion   = 2
	chunkJSON    = 0x4E4F534A // "JSON"
	chunkBinary  = 0x004E4942 // "BIN\x00"
	glbHeaderLen = 12
	chunkHdrLen  = 8
)

// maxChunkCount bounds the chunk walk; a valid GLB has at most two chunks,
// but unknown chunk types must be skipped, not rejected.
const maxChunkCount = 8

// glbChunks splits a GLB container into its JSON document chunk and the
// optional binary chunk. The returned slices alias data.
func glbChunks(data []byte) (jsonChunk, binChunk []byte, err error) {
	if len(data) < glbHeaderLen {
		return nil, nil, fmt.Errorf("container too short: %d bytes", len(data))
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != glbMagic {
		return nil, nil, fmt.Errorf("bad magic 0x%08x", magic)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != glbVersion {
		return nil, nil, fmt.Errorf("unsupported glTF version %d", version)
	}
	total := binary.LittleEndian.Uint32(data[8:12])
	if int(total) > len(data) {
		return nil, nil, fmt.Errorf("declared length %d exceeds payload %d", total, len(data))
	}
	if total < glbHeaderLen {
		return nil, nil, fmt.Errorf("declared length %d shorter than header", total)
	}

	body := data[glbHeaderLen:total]
	for i := 0; len(body) > 0 && i < maxChunkCount; i++ {
		if len(body) < chunkHdrLen {
			return nil, nil, fmt.Errorf("truncated chunk header")
		}
		clen := binary.LittleEndian.Uint32(body[0:4])
		ctype := binary.LittleEndian.Uint32(body[4:8])
		body = body[chunkHdrLen:]
		if int(clen) > len(body) {
			return nil, nil, fmt.Errorf("chunk length %d exceeds remaining %d bytes", clen, len(body))
		}

		payload := body[:clen]
		switch ctype {
		case chunkJSON:
			if jsonChunk != nil {
				return nil, nil, fmt.Errorf("duplicate JSON chunk")
			}
			if binChunk != nil {
				return nil, nil, fmt.Errorf("JSON chunk after binary chunk")
			}
			jsonChunk = payload
		case chunkBinary:
			if binChunk != nil {
				return nil, nil, fmt.Errorf("duplicate binary chunk")
			}
			binChunk = payload
		default:
			// Unknown chunk types are skipped per the container spec.
		}
		body = body[clen:]
	}

	if jsonChunk == nil {
		return nil, nil, fmt.Errorf("missing JSON chunk")
	}
	return jsonChunk, binChunk, nil
}
