// Package pool external-sorts and deduplicates the vertex and node
// streams every serialization worker emits for interior (non-endpoint)
// line/polygon vertices, and materializes the shared_nodes membership
// structure downstream simplification consults before collapsing a
// vertex. Ported in architecture from the source project's string-pool
// merge in pool.go and the index merge-list in main.go's
// mergeSplits/insert/indexcmp, re-keyed from (ix, seq) records to vertex
// and node records.
package pool

import "encoding/binary"

const vertexSize = 24

// Vertex is a line/polygon interior vertex together with its two
// neighbours, written by a serialization worker for any vertex that is
// not a line/ring endpoint.
type Vertex struct {
	Mid, P1, P2 uint64
}

// Node is the spatial key of a point detected as geometrically shared
// between two different vertex contexts; membership in the resulting
// shared-node set forbids simplification across that point.
type Node struct {
	Index uint64
}

// EncodeVertex writes v in the fixed 24-byte little-endian layout every
// per-worker vertex stream uses, matching the fixed-width record
// convention internal/feature.IndexEntry already established for this
// pipeline (see DESIGN.md) in place of the teacher's unsafe.Pointer
// struct overlays.
func EncodeVertex(v Vertex) [vertexSize]byte {
	var b [vertexSize]byte
	binary.LittleEndian.PutUint64(b[0:8], v.Mid)
	binary.LittleEndian.PutUint64(b[8:16], v.P1)
	binary.LittleEndian.PutUint64(b[16:24], v.P2)
	return b
}

// DecodeVertex reverses EncodeVertex. b must be at least vertexSize bytes.
func DecodeVertex(b []byte) Vertex {
	return Vertex{
		Mid: binary.LittleEndian.Uint64(b[0:8]),
		P1:  binary.LittleEndian.Uint64(b[8:16]),
		P2:  binary.LittleEndian.Uint64(b[16:24]),
	}
}

func vertexLess(a, b Vertex) bool {
	if a.Mid != b.Mid {
		return a.Mid < b.Mid
	}
	if a.P1 != b.P1 {
		return a.P1 < b.P1
	}
	return a.P2 < b.P2
}
