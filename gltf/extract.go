package gltf

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/meshflow/mesh"
	"github.com/BaSui01/meshflow/types"
)

// Result is the outcome of decoding a GLB payload.
type Result struct {
	// Mesh is the merged world-space geometry of the scene.
	Mesh *mesh.TriangleMesh
	// Generator echoes asset.generator from the document, when present.
	Generator string
	// Primitives counts the primitives that contributed geometry.
	Primitives int
	// SkippedPrimitives counts primitives left out (non-triangle modes,
	// missing POSITION attribute).
	SkippedPrimitives int
}

// Decode parses a GLB payload and extracts its scene geometry as a single
// merged triangle mesh. Structural failures return a DECODE_ERROR; a
// well-formed file without any scene geometry returns EMPTY_SCENE. Both map
// to HTTP 400.
func Decode(data []byte) (*Result, error) {
	jsonChunk, binChunk, err := glbChunks(data)
	if err != nil {
		return nil, decodeError(err)
	}

	var doc Document
	if err := json.Unmarshal(jsonChunk, &doc); err != nil {
		return nil, decodeError(fmt.Errorf("parse JSON chunk: %w", err))
	}

	buffers, err := resolveBuffers(&doc, binChunk)
	if err != nil {
		return nil, decodeError(err)
	}

	res, err := extractScene(&doc, buffers)
	if err != nil {
		return nil, decodeError(err)
	}
	res.Generator = doc.Asset.Generator

	if res.Primitives == 0 {
		return nil, types.NewError(types.ErrEmptyScene, "GLB scene is empty, no objects found").
			WithHTTPStatus(400)
	}
	return res, nil
}

func decodeError(cause error) error {
	return types.NewError(types.ErrDecodeError, "invalid or corrupt GLB file").
		WithHTTPStatus(400).
		WithCause(cause)
}

// extractScene walks the scene graph and merges all triangle primitives
// into world space.
func extractScene(doc *Document, buffers [][]byte) (*Result, error) {
	res := &Result{}
	var parts []*mesh.TriangleMesh

	visited := make(map[int]bool)
	var walk func(nodeIdx int, parent mesh.Mat4) error
	walk = func(nodeIdx int, parent mesh.Mat4) error {
		if nodeIdx < 0 || nodeIdx >= len(doc.Nodes) {
			return fmt.Errorf("node index %d out of range", nodeIdx)
		}
		if visited[nodeIdx] {
			// Spec allows a node to have at most one parent; a revisit
			// means a cycle or a shared subtree in a corrupt file.
			return fmt.Errorf("node %d referenced more than once", nodeIdx)
		}
		visited[nodeIdx] = true

		node := doc.Nodes[nodeIdx]
		world := parent.Mul(nodeTransform(node))

		if node.Mesh != nil {
			part, err := extractMesh(doc, buffers, *node.Mesh, world, res)
			if err != nil {
				return err
			}
			if part != nil {
				parts = append(parts, part)
			}
		}
		for _, child := range node.Children {
			if err := walk(child, world); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range sceneRoots(doc) {
		if err := walk(root, mesh.Mat4Identity()); err != nil {
			return nil, err
		}
	}

	res.Mesh = mesh.Merge(parts...)
	return res, nil
}

// sceneRoots returns the root nodes of the active scene. Documents without
// a scenes array fall back to nodes that no other node references.
func sceneRoots(doc *Document) []int {
	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
			idx = *doc.Scene
		}
		return doc.Scenes[idx].Nodes
	}

	child := make(map[int]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			child[c] = true
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !child[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func nodeTransform(n Node) mesh.Mat4 {
	if n.Matrix != nil {
		var m mesh.Mat4
		copy(m[:], n.Matrix[:])
		return m
	}

	t := mesh.Vec3{}
	if n.Translation != nil {
		t = mesh.Vec3{X: n.Translation[0], Y: n.Translation[1], Z: n.Translation[2]}
	}
	r := mesh.QuatIdentity()
	if n.Rotation != nil {
		r = mesh.Quat{X: n.Rotation[0], Y: n.Rotation[1], Z: n.Rotation[2], W: n.Rotation[3]}
	}
	s := mesh.Vec3{X: 1, Y: 1, Z: 1}
	if n.Scale != nil {
		s = mesh.Vec3{X: n.Scale[0], Y: n.Scale[1], Z: n.Scale[2]}
	}
	return mesh.ComposeTRS(t, r, s)
}

// extractMesh reads every triangle primitive of one glTF mesh and returns
// the merged part in world space. Non-triangle primitives count as skipped.
func extractMesh(doc *Document, buffers [][]byte, meshIdx int, world mesh.Mat4, res *Result) (*mesh.TriangleMesh, error) {
	if meshIdx < 0 || meshIdx >= len(doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", meshIdx)
	}

	var parts []*mesh.TriangleMesh
	for pi, prim := range doc.Meshes[meshIdx].Primitives {
		if prim.ModeOrDefault() != ModeTriangles {
			res.SkippedPrimitives++
			continue
		}
		posIdx, ok := prim.Attributes["POSITION"]
		if !ok {
			res.SkippedPrimitives++
			continue
		}

		positions, err := readVec3(doc, buffers, posIdx)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: POSITION: %w", meshIdx, pi, err)
		}

		var normals []mesh.Vec3
		if nIdx, ok := prim.Attributes["NORMAL"]; ok {
			normals, err = readVec3(doc, buffers, nIdx)
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d: NORMAL: %w", meshIdx, pi, err)
			}
			if len(normals) != len(positions) {
				return nil, fmt.Errorf("mesh %d primitive %d: %d normals for %d positions",
					meshIdx, pi, len(normals), len(positions))
			}
		}

		var indices []uint32
		if prim.Indices != nil {
			indices, err = readIndices(doc, buffers, *prim.Indices)
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d: indices: %w", meshIdx, pi, err)
			}
		} else {
			// Non-indexed triangles: consecutive vertex triples.
			n := len(positions) - len(positions)%3
			indices = make([]uint32, n)
			for i := range indices {
				indices[i] = uint32(i)
			}
		}
		// Trailing indices that do not form a full triangle are dropped.
		indices = indices[:len(indices)-len(indices)%3]

		part := &mesh.TriangleMesh{Positions: positions, Normals: normals, Indices: indices}
		if err := part.Validate(); err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", meshIdx, pi, err)
		}
		part.Transform(world)
		parts = append(parts, part)
		res.Primitives++
	}

	if len(parts) == 0 {
		return nil, nil
	}
	return mesh.Merge(parts...), nil
}
