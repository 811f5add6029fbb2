// Package feature implements the intermediate geometry encoding: geometry
// types, the coordinate-shift used to keep every ordinate non-negative
// through the pipeline, and the per-ring area calculation the drop policy
// and density stages rely on. Ported from the source project's geometry.go
// and the geometry-handling portions of serial.go.
package feature

import (
	"math"
	"strconv"
)

// GeomType is a feature's geometry kind.
type GeomType int8

const (
	Point GeomType = iota + 1
	Line
	Polygon
)

// DrawOp is a single drawing command's opcode, mirroring the MVT command
// set closely enough that WriteGeom's varint stream can be replayed
// directly against a tile encoder.
type DrawOp int8

const (
	OpEnd       DrawOp = 0
	OpMoveTo    DrawOp = 1
	OpLineTo    DrawOp = 2
	OpClosePath DrawOp = 7
)

// Draw is one vertex of a feature's geometry in shifted (non-negative)
// tile-plane coordinates.
type Draw struct {
	X, Y      int64
	Op        DrawOp
	Necessary bool
}

func (a Draw) LessThan(b Draw) bool {
	return a.Y < b.Y || (a.Y == b.Y && a.X < b.X)
}

func (a Draw) Equal(b Draw) bool { return a.X == b.X && a.Y == b.Y }

// DrawSeq is an ordered sequence of vertices composing one or more rings
// or line strings within a single feature.
type DrawSeq []Draw

// ValueKind tags an attribute value's MVT-compatible type, also used (per
// stringpool.Pool) to distinguish interned keys from interned values of
// differing type that happen to share the same text.
type ValueKind int

const (
	KindString ValueKind = iota
	KindFloat
	KindDouble
	KindInt
	KindUint
	KindSint
	KindBool
	KindNull
)

// KeyKind is the pseudo-kind used to intern attribute keys, distinct from
// every ValueKind so a key "name" never collides with a string value
// "name".
const KeyKind ValueKind = -1

// Value is a typed attribute value awaiting string-pool interning.
type Value struct {
	Kind ValueKind
	S    string
}

// CoordOffset shifts every ordinate into the non-negative range so a
// feature spanning the antimeridian never needs a signed comparison.
// geometryScale quantizes the full 32-bit plane down by droppable low
// bits when -B/--full-detail trims precision at low zooms.
const CoordOffset int64 = 4 << 32

// ShiftRight removes CoordOffset and geometryScale, producing a
// signed, full-resolution ordinate from the pipeline's internal encoding.
func ShiftRight(a int64, geometryScale uint) int64 {
	return ((a + CoordOffset) >> geometryScale) - (CoordOffset >> geometryScale)
}

// ShiftLeft is ShiftRight's inverse.
func ShiftLeft(a int64, geometryScale uint) int64 {
	return ((a + (CoordOffset >> geometryScale)) << geometryScale) - CoordOffset
}

// BBox is a feature's bounding box in shifted plane coordinates,
// [minX, minY, maxX, maxY].
type BBox [4]int64

// EmptyBBox returns a bounding box ready to be widened by Extend.
func EmptyBBox() BBox {
	return BBox{math.MaxInt64, math.MaxInt64, math.MinInt64, math.MinInt64}
}

// Extend widens bb to include (x, y).
func (bb *BBox) Extend(x, y int64) {
	if x < bb[0] {
		bb[0] = x
	}
	if y < bb[1] {
		bb[1] = y
	}
	if x > bb[2] {
		bb[2] = x
	}
	if y > bb[3] {
		bb[3] = y
	}
}

// Valid reports whether the box was ever extended.
func (bb BBox) Valid() bool { return bb[0] <= bb[2] && bb[1] <= bb[3] }

// Centroid returns the (masked, wraparound-safe) midpoint used as the
// feature's spatial sort key.
func (bb BBox) Centroid() (x, y uint32) {
	midx := (bb[0]/2 + bb[2]/2) & ((1 << 32) - 1)
	midy := (bb[1]/2 + bb[3]/2) & ((1 << 32) - 1)
	return uint32(midx), uint32(midy)
}

// RingArea computes the signed shoelace area of geom[i:j), used both to
// decide ring winding and to rank polygons/lines by size for the
// "drop smallest as needed" policy.
func RingArea(geom DrawSeq, i, j int) float64 {
	var area float64
	n := j - i
	if n == 0 {
		return 0
	}
	for k := i; k < j; k++ {
		next := i + (k-i+1)%n
		area += float64(geom[k].X) * float64(geom[next].Y)
		area -= float64(geom[k].Y) * float64(geom[next].X)
	}
	return area / 2
}

// LineLength sums the Euclidean length of every LineTo segment in geom,
// used by "drop smallest as needed" for line features.
func LineLength(geom DrawSeq) float64 {
	var length float64
	for i := 1; i < len(geom); i++ {
		if geom[i].Op == OpLineTo {
			xd := float64(geom[i].X - geom[i-1].X)
			yd := float64(geom[i].Y - geom[i-1].Y)
			length += math.Sqrt(xd*xd + yd*yd)
		}
	}
	return length
}

// CoerceValue normalizes val against the attribute type declared for key
// in attrTypes, if any; an attribute with no declared type passes through
// unchanged. Ported from the source project's serial.go CoerceValue.
func CoerceValue(key string, kind ValueKind, val string, attrTypes map[string]ValueKind) (ValueKind, string) {
	declared, ok := attrTypes[key]
	if !ok {
		return kind, val
	}
	switch declared {
	case KindString:
		return KindString, val
	case KindFloat:
		return KindDouble, val
	case KindInt:
		if val == "" {
			val = "0"
		}
		fv, _ := strconv.ParseFloat(val, 64)
		return KindDouble, strconv.FormatInt(int64(math.Round(fv)), 10)
	case KindBool:
		if val == "false" || val == "0" || val == "null" || val == "" {
			return KindBool, "false"
		}
		return KindBool, "true"
	default:
		return kind, val
	}
}
