package feature

import "encoding/binary"

// IndexSize is the fixed width of one IndexEntry on disk: start(8) +
// end(8) + spatial key(8) + segment(8) + geom type(1) + seq(8) = 41 bytes,
// so entries can be addressed by index*IndexSize without a length table.
const IndexSize = 41

// IndexEntry locates one feature's encoded bytes within a geometry file
// and carries its spatial sort key, so the external sort can reorder
// entries without touching the (much larger) geometry bytes themselves.
// Ported from the source project's main.go Index struct.
type IndexEntry struct {
	Start   int64
	End     int64
	Key     uint64
	Segment int64
	Type    GeomType
	Seq     int64
}

// Marshal encodes e into a fixed IndexSize-byte record.
func (e IndexEntry) Marshal() [IndexSize]byte {
	var b [IndexSize]byte
	binary.LittleEndian.PutUint64(b[0:8], uint64(e.Start))
	binary.LittleEndian.PutUint64(b[8:16], uint64(e.End))
	binary.LittleEndian.PutUint64(b[16:24], e.Key)
	binary.LittleEndian.PutUint64(b[24:32], uint64(e.Segment))
	b[32] = byte(e.Type)
	binary.LittleEndian.PutUint64(b[33:41], uint64(e.Seq))
	return b
}

// UnmarshalIndexEntry decodes a fixed IndexSize-byte record.
func UnmarshalIndexEntry(b []byte) IndexEntry {
	return IndexEntry{
		Start:   int64(binary.LittleEndian.Uint64(b[0:8])),
		End:     int64(binary.LittleEndian.Uint64(b[8:16])),
		Key:     binary.LittleEndian.Uint64(b[16:24]),
		Segment: int64(binary.LittleEndian.Uint64(b[24:32])),
		Type:    GeomType(b[32]),
		Seq:     int64(binary.LittleEndian.Uint64(b[33:41])),
	}
}
