package ingest

import (
	"io"
	"testing"

	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/feature"
	"github.com/tilercore/pipeline/internal/pool"
)

func TestSerializeFeaturePolygonEmitsOneVertexPerRingPoint(t *testing.T) {
	cfg := config.Default()
	sst := NewSerializationState(cfg)
	r := NewReader(t.TempDir(), 0)
	defer r.Close()

	square := feature.DrawSeq{
		{X: 0, Y: 0, Op: feature.OpMoveTo},
		{X: 10, Y: 0, Op: feature.OpLineTo},
		{X: 10, Y: 10, Op: feature.OpLineTo},
		{X: 0, Y: 10, Op: feature.OpLineTo},
		{Op: feature.OpClosePath},
	}
	ok := SerializeFeature(sst, r, cfg, RawFeature{Type: feature.Polygon, LayerName: "poly", Geometry: square})
	if !ok {
		t.Fatalf("SerializeFeature dropped a valid polygon")
	}

	if got, want := r.Vertex.Pos(), int64(4)*24; got != want {
		t.Fatalf("vertex stream has %d bytes, want %d (one per ring point)", got, want)
	}
}

func TestSerializeFeatureLineExcludesEndpoints(t *testing.T) {
	cfg := config.Default()
	sst := NewSerializationState(cfg)
	r := NewReader(t.TempDir(), 0)
	defer r.Close()

	line := feature.DrawSeq{
		{X: 0, Y: 0, Op: feature.OpMoveTo},
		{X: 5, Y: 5, Op: feature.OpLineTo},
		{X: 10, Y: 10, Op: feature.OpLineTo},
		{X: 20, Y: 20, Op: feature.OpLineTo},
	}
	ok := SerializeFeature(sst, r, cfg, RawFeature{Type: feature.Line, LayerName: "lines", Geometry: line})
	if !ok {
		t.Fatalf("SerializeFeature dropped a valid line")
	}

	if got, want := r.Vertex.Pos(), int64(2)*24; got != want {
		t.Fatalf("vertex stream has %d bytes, want %d (endpoints excluded)", got, want)
	}
}

func TestSerializeFeaturePointEmitsNoVertices(t *testing.T) {
	cfg := config.Default()
	sst := NewSerializationState(cfg)
	r := NewReader(t.TempDir(), 0)
	defer r.Close()

	ok := SerializeFeature(sst, r, cfg, RawFeature{
		Type:      feature.Point,
		LayerName: "pts",
		Geometry:  feature.DrawSeq{{X: 1, Y: 1, Op: feature.OpMoveTo}},
	})
	if !ok {
		t.Fatalf("SerializeFeature dropped a valid point")
	}
	if r.Vertex.Pos() != 0 {
		t.Fatalf("point features must not emit vertex records, got %d bytes", r.Vertex.Pos())
	}
}

func TestLoadSortedStreamRoundTripsAndSorts(t *testing.T) {
	cfg := config.Default()
	sst := NewSerializationState(cfg)
	r := NewReader(t.TempDir(), 0)
	defer r.Close()

	square := feature.DrawSeq{
		{X: 0, Y: 0, Op: feature.OpMoveTo},
		{X: 10, Y: 0, Op: feature.OpLineTo},
		{X: 10, Y: 10, Op: feature.OpLineTo},
		{X: 0, Y: 10, Op: feature.OpLineTo},
		{Op: feature.OpClosePath},
	}
	if ok := SerializeFeature(sst, r, cfg, RawFeature{Type: feature.Polygon, LayerName: "poly", Geometry: square}); !ok {
		t.Fatalf("SerializeFeature dropped a valid polygon")
	}

	stream, err := pool.LoadSortedStream(r.Vertex)
	if err != nil {
		t.Fatalf("LoadSortedStream: %v", err)
	}

	raw := make([]byte, r.Vertex.Pos())
	if _, err := stream.ReadAt(raw, 0); err != nil {
		t.Fatalf("sorted stream lost records: %v", err)
	}
	for i := 24; i < len(raw); i += 24 {
		if pool.DecodeVertex(raw[i:]).Mid < pool.DecodeVertex(raw[i-24:]).Mid {
			t.Fatalf("sorted stream out of Mid order at record %d", i/24)
		}
	}

	nodes, err := (pool.VertexDedup{}).Run([]io.ReaderAt{stream})
	if err != nil {
		t.Fatalf("VertexDedup.Run: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("a lone square's four distinct corners gave %d shared nodes, want 0", len(nodes))
	}
}
