package pool

import (
	"bytes"
	"io"
	"sort"

	"github.com/tilercore/pipeline/internal/tempstore"
)

// LoadSortedStream reads every Vertex record a worker's TempStore
// accumulated during ingest, sorts it by (Mid, P1, P2), and returns it as
// an in-memory io.ReaderAt ready for VertexDedup.Run's k-way merge.
//
// The source project's equivalent merge ran entirely against on-disk
// split files (mergeSplits/insert/indexcmp in main.go), because a single
// worker's point cloud could dwarf memory. A worker's *interior* vertex
// stream is a small fraction of its geometry stream (most points in a
// line or ring are not interior vertices at all, endpoints are excluded,
// and points contribute none), so sorting it in memory per worker before
// handing it to the k-way merge is a deliberate simplification over
// re-running the bucket-radix external sort a second time for a
// secondary, much smaller stream.
func LoadSortedStream(ts *tempstore.TempStore) (io.ReaderAt, error) {
	ts.Rewind()
	raw, err := io.ReadAll(ts.File())
	if err != nil {
		return nil, err
	}

	n := len(raw) / vertexSize
	vs := make([]Vertex, n)
	for i := 0; i < n; i++ {
		vs[i] = DecodeVertex(raw[i*vertexSize : (i+1)*vertexSize])
	}
	sort.Slice(vs, func(i, j int) bool { return vertexLess(vs[i], vs[j]) })

	buf := make([]byte, len(raw))
	for i, v := range vs {
		b := EncodeVertex(v)
		copy(buf[i*vertexSize:], b[:])
	}
	return bytes.NewReader(buf), nil
}
