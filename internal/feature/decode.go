package feature

import (
	"bufio"
	"encoding/binary"
)

// ReadFeature decodes one record written by SerialFeature.WriteTo, with
// (wx, wy) the delta-coordinate reference point the record was written
// against and (ox, oy) the last decoded vertex, mirroring WriteTo's own
// return values. ingest.SerializeFeature writes every record against the
// worker's fixed InitialX/InitialY, so each call on such a stream takes
// that same point, not the previous call's (ox, oy).
// Ported from the source project's serial.go deserialization half of
// SerializeFeatureGeom/GetFeature, which the Go teacher never carried over
// at all (its tiling stage was the part left unported) — rebuilt here
// field-for-field against WriteTo's encoding in serialize.go.
func ReadFeature(r *bufio.Reader, wx, wy int64) (sf SerialFeature, ox, oy int64, err error) {
	typeByte, err := r.ReadByte()
	if err != nil {
		return SerialFeature{}, wx, wy, err
	}
	sf.Type = GeomType(typeByte)

	mz, err := r.ReadByte()
	if err != nil {
		return SerialFeature{}, wx, wy, err
	}
	sf.FeatureMinzoom = int8(mz)

	header, err := binary.ReadVarint(r)
	if err != nil {
		return SerialFeature{}, wx, wy, err
	}
	sf.Layer = int(header >> varintFieldBits())
	hasSeq := header&bitSeq != 0
	hasIndex := header&bitIndex != 0
	hasExtent := header&bitExtent != 0
	sf.HasID = header&bitID != 0
	sf.HasMinzoom = header&bitMinzoom != 0
	sf.HasMaxzoom = header&bitMaxzoom != 0

	if hasSeq {
		if sf.Seq, err = binary.ReadVarint(r); err != nil {
			return SerialFeature{}, wx, wy, err
		}
	}
	if sf.HasMinzoom {
		v, err := binary.ReadVarint(r)
		if err != nil {
			return SerialFeature{}, wx, wy, err
		}
		sf.Minzoom = int(v)
	}
	if sf.HasMaxzoom {
		v, err := binary.ReadVarint(r)
		if err != nil {
			return SerialFeature{}, wx, wy, err
		}
		sf.Maxzoom = int(v)
	}
	if sf.HasID {
		if sf.ID, err = binary.ReadVarint(r); err != nil {
			return SerialFeature{}, wx, wy, err
		}
	}
	seg, err := binary.ReadVarint(r)
	if err != nil {
		return SerialFeature{}, wx, wy, err
	}
	sf.Segment = int(seg)

	geomLen, err := binary.ReadVarint(r)
	if err != nil {
		return SerialFeature{}, wx, wy, err
	}
	geom, gx, gy, err := readGeom(r, int(geomLen), wx, wy)
	if err != nil {
		return SerialFeature{}, wx, wy, err
	}
	sf.Geometry = geom
	wx, wy = gx, gy

	if hasIndex {
		v, err := binary.ReadVarint(r)
		if err != nil {
			return SerialFeature{}, wx, wy, err
		}
		sf.Index = uint64(v)
	}
	if hasExtent {
		if sf.Extent, err = binary.ReadVarint(r); err != nil {
			return SerialFeature{}, wx, wy, err
		}
	}
	if sf.Metapos, err = binary.ReadVarint(r); err != nil {
		return SerialFeature{}, wx, wy, err
	}
	if sf.Metapos < 0 {
		count, err := binary.ReadVarint(r)
		if err != nil {
			return SerialFeature{}, wx, wy, err
		}
		sf.Keys = make([]int64, count)
		sf.Values = make([]int64, count)
		for i := int64(0); i < count; i++ {
			if sf.Keys[i], err = binary.ReadVarint(r); err != nil {
				return SerialFeature{}, wx, wy, err
			}
			if sf.Values[i], err = binary.ReadVarint(r); err != nil {
				return SerialFeature{}, wx, wy, err
			}
		}
	}
	return sf, wx, wy, nil
}

// readGeom is WriteGeom's inverse: it reads exactly count opcode/
// delta-coordinate entries, trusting the explicit count WriteTo now
// writes ahead of the geometry bytes rather than any in-band terminator
// (WriteGeom never wrote one, and rings/parts can't be told apart from
// plain OpClosePath bytes alone without it).
func readGeom(r *bufio.Reader, count int, wx, wy int64) (DrawSeq, int64, int64, error) {
	if count == 0 {
		return nil, wx, wy, nil
	}
	geom := make(DrawSeq, 0, count)
	for i := 0; i < count; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, wx, wy, err
		}
		op := DrawOp(b)
		d := Draw{Op: op}
		if op == OpMoveTo || op == OpLineTo {
			dx, err := binary.ReadVarint(r)
			if err != nil {
				return nil, wx, wy, err
			}
			dy, err := binary.ReadVarint(r)
			if err != nil {
				return nil, wx, wy, err
			}
			wx += dx
			wy += dy
			d.X, d.Y = wx, wy
		}
		geom = append(geom, d)
	}
	return geom, wx, wy, nil
}
