package ingest

import (
	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/feature"
	"github.com/tilercore/pipeline/internal/pool"
	"github.com/tilercore/pipeline/internal/spatialkey"
)

// emitVertices walks every ring/linestring in geom and appends one
// pool.Vertex record per vertex that is not a line's endpoint, to r.Vertex.
// A closed ring (polygon) has no endpoints at all, so every one of its
// vertices is interior. This is the producer side of the shared-point
// detection internal/pool.VertexDedup consumes; the source project never
// separated this concern from SerializeFeature, so there is no single
// function to port it from — it is rebuilt from the Vertex/Node
// definitions in the specification, walked the way ScaleGeometry and
// RingArea already walk a DrawSeq's OpMoveTo/OpLineTo/OpClosePath runs.
func emitVertices(r *Reader, cfg config.Config, typ feature.GeomType, geom feature.DrawSeq) {
	if typ != feature.Line && typ != feature.Polygon {
		return
	}
	for i := 0; i < len(geom); {
		if geom[i].Op != feature.OpMoveTo {
			i++
			continue
		}
		start := i
		j := i + 1
		for j < len(geom) && geom[j].Op == feature.OpLineTo {
			j++
		}
		closed := typ == feature.Polygon && j < len(geom) && geom[j].Op == feature.OpClosePath
		emitRingVertices(r, cfg, geom[start:j], closed)
		if closed {
			i = j + 1
		} else {
			i = j
		}
	}
}

func emitRingVertices(r *Reader, cfg config.Config, pts feature.DrawSeq, closed bool) {
	n := len(pts)
	if n < 3 {
		return
	}
	key := func(k int) uint64 {
		return spatialkey.Encode(cfg.Curve, uint32(pts[k].X), uint32(pts[k].Y))
	}
	appendVertex := func(mid, p1, p2 uint64) {
		b := pool.EncodeVertex(pool.Vertex{Mid: mid, P1: p1, P2: p2})
		r.Vertex.Append(b[:])
	}
	if closed {
		for k := 0; k < n; k++ {
			appendVertex(key(k), key((k-1+n)%n), key((k+1)%n))
		}
		return
	}
	for k := 1; k < n-1; k++ {
		appendVertex(key(k), key(k-1), key(k+1))
	}
}
