// =============================================================================
// 📦 测试数据工厂 - GLB 样本构造
// =============================================================================
// 以字节级构造合法与非法的 GLB 容器，供解码器、转换管线和 API 测试使用
// =============================================================================
package fixtures

import (
	"bytes"
	"encoding/binary"
	"math"
)

// glTF 容器常量
const (
	glbMagic    = 0x46546C67
	glbVersion  = 2
	chunkJSON   = 0x4E4F534A
	chunkBinary = 0x004E4942
)

// GLB 将 JSON 文档与可选二进制块组装为符合规范的 GLB 容器，
// JSON 块以空格补齐到 4 字节对齐，二进制块以零字节补齐。
func GLB(jsonDoc []byte, bin []byte) []byte {
	jsonPadded := pad(jsonDoc, ' ')

	var buf bytes.Buffer
	writeU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}

	total := 12 + 8 + len(jsonPadded)
	var binPadded []byte
	if bin != nil {
		binPadded = pad(bin, 0)
		total += 8 + len(binPadded)
	}

	writeU32(glbMagic)
	writeU32(glbVersion)
	writeU32(uint32(total))

	writeU32(uint32(len(jsonPadded)))
	writeU32(chunkJSON)
	buf.Write(jsonPadded)

	if bin != nil {
		writeU32(uint32(len(binPadded)))
		writeU32(chunkBinary)
		buf.Write(binPadded)
	}

	return buf.Bytes()
}

func pad(b []byte, fill byte) []byte {
	if len(b)%4 == 0 {
		return b
	}
	padded := make([]byte, len(b)+(4-len(b)%4))
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = fill
	}
	return padded
}

// Floats 将 float32 序列编码为小端字节
func Floats(vals ...float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// U16s 将 uint16 序列编码为小端字节
func U16s(vals ...uint16) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

// TriangleGLB 返回一个包含单个三角形的最小合法 GLB：
// 三个 float32 顶点 + uint16 索引，几何位于 XY 平面。
func TriangleGLB() []byte {
	positions := Floats(
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
	)
	indices := U16s(0, 1, 2)

	bin := make([]byte, 0, len(positions)+len(indices))
	bin = append(bin, positions...)
	bin = append(bin, indices...)

	doc := `{
		"asset": {"version": "2.0", "generator": "meshflow-fixture"},
		"scene": 0,
		"scenes": [{"nodes": [0]}],
		"nodes": [{"mesh": 0}],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}, "indices": 1}]}],
		"accessors": [
			{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"},
			{"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
		],
		"bufferViews": [
			{"buffer": 0, "byteOffset": 0, "byteLength": 36},
			{"buffer": 0, "byteOffset": 36, "byteLength": 6}
		],
		"buffers": [{"byteLength": 42}]
	}`
	return GLB([]byte(doc), bin)
}

// TwoNodeGLB 返回含两个节点、两个网格的 GLB，
// 第二个节点带平移变换，用于验证场景合并与世界变换。
func TwoNodeGLB() []byte {
	positions := Floats(
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
	)
	indices := U16s(0, 1, 2)

	bin := make([]byte, 0, len(positions)+len(indices))
	bin = append(bin, positions...)
	bin = append(bin, indices...)

	doc := `{
		"asset": {"version": "2.0"},
		"scene": 0,
		"scenes": [{"nodes": [0, 1]}],
		"nodes": [
			{"mesh": 0},
			{"mesh": 1, "translation": [10, 0, 0]}
		],
		"meshes": [
			{"primitives": [{"attributes": {"POSITION": 0}, "indices": 1}]},
			{"primitives": [{"attributes": {"POSITION": 0}, "indices": 1}]}
		],
		"accessors": [
			{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"},
			{"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
		],
		"bufferViews": [
			{"buffer": 0, "byteOffset": 0, "byteLength": 36},
			{"buffer": 0, "byteOffset": 36, "byteLength": 6}
		],
		"buffers": [{"byteLength": 42}]
	}`
	return GLB([]byte(doc), bin)
}

// EmptySceneGLB 返回合法但不含任何几何的 GLB（空场景）
func EmptySceneGLB() []byte {
	doc := `{"asset": {"version": "2.0"}, "scene": 0, "scenes": [{"nodes": []}]}`
	return GLB([]byte(doc), nil)
}

// PointsOnlyGLB 返回仅含点图元的 GLB，三角形提取后场景为空
func PointsOnlyGLB() []byte {
	positions := Floats(0, 0, 0, 1, 1, 1)

	doc := `{
		"asset": {"version": "2.0"},
		"scene": 0,
		"scenes": [{"nodes": [0]}],
		"nodes": [{"mesh": 0}],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}, "mode": 0}]}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 2, "type": "VEC3"}],
		"bufferViews": [{"buffer": 0, "byteOffset": 0, "byteLength": 24}],
		"buffers": [{"byteLength": 24}]
	}`
	return GLB([]byte(doc), positions)
}

// NoVerticesGLB 返回图元存在但顶点数为零的 GLB
func NoVerticesGLB() []byte {
	doc := `{
		"asset": {"version": "2.0"},
		"scene": 0,
		"scenes": [{"nodes": [0]}],
		"nodes": [{"mesh": 0}],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 0, "type": "VEC3"}],
		"bufferViews": [{"buffer": 0, "byteOffset": 0, "byteLength": 0}],
		"buffers": [{"byteLength": 0}]
	}`
	return GLB([]byte(doc), []byte{})
}

// CorruptGLB 返回魔数错误的载荷
func CorruptGLB() []byte {
	data := TriangleGLB()
	out := make([]byte, len(data))
	copy(out, data)
	out[0], out[1], out[2], out[3] = 'n', 'o', 'p', 'e'
	return out
}

// TruncatedGLB 返回声明长度超出实际载荷的 GLB
func TruncatedGLB() []byte {
	data := TriangleGLB()
	return data[:len(data)-10]
}
