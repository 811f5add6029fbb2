package pool_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/tilercore/pipeline/internal/pool"
)

func encodeStream(vs []pool.Vertex) io.ReaderAt {
	var buf bytes.Buffer
	for _, v := range vs {
		b := pool.EncodeVertex(v)
		buf.Write(b[:])
	}
	return bytes.NewReader(buf.Bytes())
}

func TestVertexDedupDetectsSharedPoint(t *testing.T) {
	// Worker A has vertex (mid=5) with neighbours (1,2); worker B has the
	// same mid=5 with different neighbours (3,4) — the point is shared
	// between two distinct vertex contexts.
	a := encodeStream([]pool.Vertex{{Mid: 5, P1: 1, P2: 2}})
	b := encodeStream([]pool.Vertex{{Mid: 5, P1: 3, P2: 4}})

	nodes, err := pool.VertexDedup{}.Run([]io.ReaderAt{a, b})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Index != 5 {
		t.Fatalf("expected exactly one Node{Index:5}, got %v", nodes)
	}
}

func TestVertexDedupIgnoresConsistentNeighbours(t *testing.T) {
	a := encodeStream([]pool.Vertex{{Mid: 5, P1: 1, P2: 2}})
	b := encodeStream([]pool.Vertex{{Mid: 5, P1: 1, P2: 2}})

	nodes, err := pool.VertexDedup{}.Run([]io.ReaderAt{a, b})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected no shared nodes when neighbours agree, got %v", nodes)
	}
}

func TestVertexDedupMergesMultipleStreamsInOrder(t *testing.T) {
	a := encodeStream([]pool.Vertex{{Mid: 1, P1: 0, P2: 1}, {Mid: 10, P1: 0, P2: 1}})
	b := encodeStream([]pool.Vertex{{Mid: 5, P1: 0, P2: 1}, {Mid: 5, P1: 2, P2: 3}})

	nodes, err := pool.VertexDedup{}.Run([]io.ReaderAt{a, b})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Index != 5 {
		t.Fatalf("expected exactly one shared node at mid=5, got %v", nodes)
	}
}

func TestNodeDedupSortsDedupesAndBuildsBloom(t *testing.T) {
	raw := []uint64{100, 5, 5, 42, 100, 7}
	table, err := pool.NodeDedup{}.Run(raw)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(table.Keys) != 4 {
		t.Fatalf("expected 4 deduped keys, got %d: %v", len(table.Keys), table.Keys)
	}
	for i := 1; i < len(table.Keys); i++ {
		if table.Keys[i] <= table.Keys[i-1] {
			t.Fatalf("keys not strictly ascending: %v", table.Keys)
		}
	}

	for _, k := range table.Keys {
		if !table.Contains(k) {
			t.Fatalf("expected Contains(%d) to be true", k)
		}
	}
	if table.Contains(999999) {
		t.Fatalf("did not expect Contains(999999) to be true")
	}
}

func TestNodeDedupExactTableRoundTrips(t *testing.T) {
	raw := []uint64{9, 3, 7, 1}
	table, err := pool.NodeDedup{}.Run(raw)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, k := range []uint64{1, 3, 7, 9} {
		if _, err := table.Table.Get(k); err != nil {
			t.Fatalf("Table.Get(%d): %v", k, err)
		}
	}
	if _, err := table.Table.Get(1000); err == nil {
		t.Fatalf("expected an error looking up a key never written")
	}
}
