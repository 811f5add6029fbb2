package feature

import (
	"encoding/binary"
	"io"

	"github.com/tilercore/pipeline/internal/logging"
)

// SerialFeature is one feature as it travels from ingest through the
// spatial sort: a compact record written once to an append-only geometry
// file and read back, possibly many times, during tiling. Ported from the
// source project's serial.go SerialFeature struct.
type SerialFeature struct {
	Layer   int
	Segment int
	Seq     int64

	Type           GeomType
	FeatureMinzoom int8

	HasID bool
	ID    int64

	HasMinzoom bool
	Minzoom    int
	HasMaxzoom bool
	Maxzoom    int

	Geometry DrawSeq
	// Index is the feature's spatial sort key (its bbox centroid under
	// the configured curve), 0 when the sort pass doesn't need one.
	Index  uint64
	Extent int64

	// Keys/Values hold string-pool offsets when the attribute set is
	// stored inline; Metapos >= 0 means the attributes instead live at
	// that offset in the external metadata file (large-feature path).
	Keys    []int64
	Values  []int64
	Metapos int64

	BBox BBox
}

// header bit layout, low to high: hasMaxzoom, hasMinzoom, hasID, hasExtent,
// hasIndex, hasSeq. Layer occupies the remaining high bits.
const (
	bitMaxzoom = 1 << iota
	bitMinzoom
	bitID
	bitExtent
	bitIndex
	bitSeq
)

func varintFieldBits() int { return 6 }

// MinzoomOffset is the fixed byte offset of FeatureMinzoom within a
// record written by WriteTo, relative to the record's start (the type
// byte at offset 0, the minzoom byte at offset 1). SpatialSorter only
// learns a feature's minzoom after the whole file has been read and
// spatially ordered, so the orchestrator's drop-policy rewrite pass needs
// to flip this one byte in place, by mmap, without re-parsing the rest
// of the varint stream — mirroring the source project's single-byte
// tippecanoe_minzoom patch in its post-sort fixup loop.
const MinzoomOffset = 1

// WriteTo serializes sf onto w, returning the number of bytes written.
// Coordinates are delta-encoded against the (wx, wy) reference point -
// the file-wide initial coordinate, per the source project's
// SerializeFeatureGeom(wx=InitialX, wy=InitialY) - not a per-feature
// running cursor, so out-of-order features never corrupt later deltas.
func (sf *SerialFeature) WriteTo(w io.Writer, wx, wy int64) (n int64, ox, oy int64) {
	var written int64
	buf := make([]byte, binary.MaxVarintLen64)

	writeByte := func(b byte) {
		nn, err := w.Write([]byte{b})
		if err != nil {
			logging.Fatal(logging.Write, "feature: write geom byte: %v", err)
		}
		written += int64(nn)
	}
	writeVarint := func(v int64) {
		m := binary.PutVarint(buf, v)
		nn, err := w.Write(buf[:m])
		if err != nil {
			logging.Fatal(logging.Write, "feature: write geom varint: %v", err)
		}
		written += int64(nn)
	}

	writeByte(byte(sf.Type))
	writeByte(byte(sf.FeatureMinzoom))

	var header int64
	header |= int64(sf.Layer) << varintFieldBits()
	if sf.Seq != 0 {
		header |= bitSeq
	}
	if sf.Index != 0 {
		header |= bitIndex
	}
	if sf.Extent != 0 {
		header |= bitExtent
	}
	if sf.HasID {
		header |= bitID
	}
	if sf.HasMinzoom {
		header |= bitMinzoom
	}
	if sf.HasMaxzoom {
		header |= bitMaxzoom
	}
	writeVarint(header)

	if sf.Seq != 0 {
		writeVarint(sf.Seq)
	}
	if sf.HasMinzoom {
		writeVarint(int64(sf.Minzoom))
	}
	if sf.HasMaxzoom {
		writeVarint(int64(sf.Maxzoom))
	}
	if sf.HasID {
		writeVarint(sf.ID)
	}
	writeVarint(int64(sf.Segment))

	// The source project's WriteGeom never recorded how many ops it
	// wrote, which is why its own DeserializeFeature never got past a
	// single length-prefix read (see serial.go) — it could locate a
	// record's start via the external index but had no way to know
	// where the geometry sub-stream inside it ended. Recording the op
	// count here is the minimal addition needed for a real round trip.
	writeVarint(int64(len(sf.Geometry)))
	gn, gx, gy := WriteGeom(sf.Geometry, w, wx, wy)
	written += gn
	wx, wy = gx, gy

	if sf.Index != 0 {
		writeVarint(int64(sf.Index))
	}
	if sf.Extent != 0 {
		writeVarint(sf.Extent)
	}
	writeVarint(sf.Metapos)

	if sf.Metapos < 0 {
		writeVarint(int64(len(sf.Keys)))
		for i := range sf.Keys {
			writeVarint(sf.Keys[i])
			writeVarint(sf.Values[i])
		}
	}
	return written, wx, wy
}

// WriteGeom writes dv as a stream of opcode bytes interleaved with
// delta-encoded varint coordinates for MoveTo/LineTo commands, the same
// wire shape SerializeFeatureGeom/WriteGeom in the source project produce.
func WriteGeom(dv DrawSeq, w io.Writer, wx, wy int64) (n int64, ox, oy int64) {
	buf := make([]byte, binary.MaxVarintLen64)
	for i := range dv {
		nn, err := w.Write([]byte{byte(dv[i].Op)})
		if err != nil {
			logging.Fatal(logging.Write, "feature: write geom op: %v", err)
		}
		n += int64(nn)
		if dv[i].Op == OpMoveTo || dv[i].Op == OpLineTo {
			m := binary.PutVarint(buf, dv[i].X-wx)
			nn, err = w.Write(buf[:m])
			if err != nil {
				logging.Fatal(logging.Write, "feature: write geom dx: %v", err)
			}
			n += int64(nn)
			m = binary.PutVarint(buf, dv[i].Y-wy)
			nn, err = w.Write(buf[:m])
			if err != nil {
				logging.Fatal(logging.Write, "feature: write geom dy: %v", err)
			}
			n += int64(nn)
			wx, wy = dv[i].X, dv[i].Y
		}
	}
	return n, wx, wy
}

// ScaleGeometry applies the coordinate shift (and, for --grid-low-zooms,
// power-of-two quantization) to geom in place and widens bb to its extent.
// Ported from the source project's serial.go ScaleGeometry.
func ScaleGeometry(geom DrawSeq, bb *BBox, geometryScale uint, gridLowZooms bool) {
	scale := 1.0 / float64(int64(1)<<geometryScale)
	for i := range geom {
		if geom[i].Op != OpMoveTo && geom[i].Op != OpLineTo {
			continue
		}
		x, y := geom[i].X, geom[i].Y
		bb.Extend(x, y)
		if gridLowZooms {
			geom[i].X = round(float64(x) * scale)
			geom[i].Y = round(float64(y) * scale)
		} else {
			geom[i].X = ShiftRight(x, geometryScale)
			geom[i].Y = ShiftRight(y, geometryScale)
		}
	}
}

func round(f float64) int64 {
	if f >= 0 {
		return int64(f + 0.5)
	}
	return int64(f - 0.5)
}
